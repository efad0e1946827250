// Package fields holds the declared supplier field set: which fields exist,
// the order they are collected in, and the canonical question asked for each.
// The set is deployment configuration, not engine code.
package fields

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/spf13/viper"

	_ "embed"
)

//go:embed fields.yaml
var defaultFieldsYAML []byte

var (
	ErrEmptySet       = errors.New("field set is empty")
	ErrDuplicateField = errors.New("duplicate field name")
)

// Field describes one supplier attribute to collect.
type Field struct {
	Name     string `mapstructure:"name"`
	Question string `mapstructure:"question"`
	Default  string `mapstructure:"default"`
	Optional bool   `mapstructure:"optional"`
}

// Set is an ordered, immutable field declaration. Order is collection order.
type Set struct {
	fields   []Field
	required []string
	index    map[string]Field
}

// Load reads the field set from the given YAML file, or from the embedded
// default declaration when path is empty.
func Load(path string) (*Set, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read field config: %w", err)
		}
	} else if err := v.ReadConfig(bytes.NewReader(defaultFieldsYAML)); err != nil {
		return nil, fmt.Errorf("read embedded field config: %w", err)
	}

	var declared []Field
	if err := v.UnmarshalKey("fields", &declared); err != nil {
		return nil, fmt.Errorf("unmarshal field config: %w", err)
	}
	return New(declared)
}

// New builds a Set from an explicit declaration. Used directly by tests.
func New(declared []Field) (*Set, error) {
	if len(declared) == 0 {
		return nil, ErrEmptySet
	}

	s := &Set{
		fields: make([]Field, 0, len(declared)),
		index:  make(map[string]Field, len(declared)),
	}
	for _, f := range declared {
		f.Name = strings.TrimSpace(f.Name)
		if f.Name == "" {
			return nil, errors.New("field name is empty")
		}
		if _, exists := s.index[f.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateField, f.Name)
		}
		if strings.TrimSpace(f.Question) == "" {
			f.Question = fmt.Sprintf("Please provide %s.", f.Name)
		}
		s.fields = append(s.fields, f)
		s.index[f.Name] = f
		if !f.Optional {
			s.required = append(s.required, f.Name)
		}
	}
	if len(s.required) == 0 {
		return nil, errors.New("field set has no required fields")
	}
	return s, nil
}

// Names returns every declared field name, required and optional, in order.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		names = append(names, f.Name)
	}
	return names
}

// Required returns required field names in declared order.
func (s *Set) Required() []string {
	return append([]string(nil), s.required...)
}

// Contains reports whether name is a declared field (required or optional).
func (s *Set) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// IsRequired reports whether name is a declared required field.
func (s *Set) IsRequired(name string) bool {
	f, ok := s.index[name]
	return ok && !f.Optional
}

// Question returns the canonical prompt for a declared field.
func (s *Set) Question(name string) string {
	return s.index[name].Question
}

// RequiredAt resolves a 1-based edit-menu index to a required field name.
func (s *Set) RequiredAt(position int) (string, bool) {
	if position < 1 || position > len(s.required) {
		return "", false
	}
	return s.required[position-1], true
}

// Defaults builds a fresh record holding every declared field, with configured
// default values pre-populated.
func (s *Set) Defaults() contract.Record {
	rec := make(contract.Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = f.Default
	}
	return rec
}

// Missing returns required fields not yet filled, in declared order. This is
// always a prefix scan of the declared order: it never skips ahead and never
// revisits a filled field.
func (s *Set) Missing(rec contract.Record) []string {
	var missing []string
	for _, name := range s.required {
		if !rec.Filled(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
