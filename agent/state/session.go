// Package state holds the in-flight conversation model and its persistence
// contract. A Session is exclusively owned by a Store; the engine borrows it
// for exactly one transition and hands it back.
package state

import (
	"fmt"
	"strings"
	"time"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/fields"
)

// Phase is where a conversation currently is in the intake flow.
type Phase string

const (
	PhaseCollecting Phase = "COLLECTING"
	PhaseConfirm    Phase = "CONFIRM"
	PhaseEdit       Phase = "EDIT"
)

func (p Phase) Known() bool {
	switch p {
	case PhaseCollecting, PhaseConfirm, PhaseEdit:
		return true
	}
	return false
}

// Session is one user's in-flight supplier intake conversation.
type Session struct {
	ID           string          `json:"id"`
	Phase        Phase           `json:"phase"`
	Record       contract.Record `json:"record"`
	PendingField string          `json:"pending_field,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewSession starts a conversation in COLLECTING with a defaults-populated
// record and the first missing required field pending.
func NewSession(id string, set *fields.Set, now time.Time) *Session {
	s := &Session{
		ID:        id,
		Phase:     PhaseCollecting,
		Record:    set.Defaults(),
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
	if missing := set.Missing(s.Record); len(missing) > 0 {
		s.PendingField = missing[0]
	}
	return s
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Clone returns an independent copy so store and caller never alias a record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Record = s.Record.Clone()
	return &out
}

// SetAnswer stores a literal user answer into a field.
func (s *Session) SetAnswer(field, value string) {
	if s.Record == nil {
		s.Record = make(contract.Record)
	}
	s.Record[field] = strings.TrimSpace(value)
}

// Merge folds extractor output into the record without overwriting anything
// already collected. First write wins: merging fills gaps, it never corrects
// prior answers. Keys the field set does not declare are dropped.
func (s *Session) Merge(extracted map[string]string, set *fields.Set) {
	for name, value := range extracted {
		value = strings.TrimSpace(value)
		if value == "" || !set.Contains(name) {
			continue
		}
		if !s.Record.Filled(name) {
			s.Record[name] = value
		}
	}
}

// Validate rejects states that should never have been persisted.
func (s *Session) Validate() error {
	if s == nil {
		return contract.ErrNilSession
	}
	if strings.TrimSpace(s.ID) == "" {
		return contract.ErrInvalidSession
	}
	if !s.Phase.Known() {
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	if s.PendingField != "" {
		if _, ok := s.Record[s.PendingField]; !ok {
			return fmt.Errorf("%w: pending field %q not in record", contract.ErrUnknownField, s.PendingField)
		}
	}
	return nil
}
