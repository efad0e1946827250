// Package extractor turns free text into partial supplier fields using an
// OpenAI-compatible chat model. It is strictly best effort: the model only
// reports fields the user actually mentioned, and every failure mode resolves
// to "nothing extracted" at the engine boundary.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fusionworks/supplier-intake-agent/agent/fields"

	_ "embed"
)

//go:embed prompt.txt
var systemPromptRaw string

// LLM implements contract.Extractor over an openai-go client.
type LLM struct {
	client *openai.Client
	model  string
	fields *fields.Set
	prompt string
	logger zerolog.Logger
}

func NewLLM(client *openai.Client, model string, set *fields.Set) (*LLM, error) {
	if client == nil {
		return nil, errors.New("chat client is required")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("extraction model is required")
	}
	if set == nil {
		return nil, errors.New("field set is required")
	}

	prompt := strings.TrimSpace(systemPromptRaw) + "\n\nFields:\n" + strings.Join(set.Names(), "\n")

	return &LLM{
		client: client,
		model:  model,
		fields: set,
		prompt: prompt,
		logger: log.With().Str("component", "extractor").Logger(),
	}, nil
}

func (l *LLM) Extract(ctx context.Context, text string) (map[string]string, error) {
	resp, err := l.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(l.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(l.prompt),
			openai.UserMessage(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extract fields: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("extract fields: empty completion")
	}

	extracted, err := ParsePayload(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	// Drop anything the deployment never declared.
	for name := range extracted {
		if !l.fields.Contains(name) {
			l.logger.Debug().Str("field", name).Msg("dropping undeclared extracted field")
			delete(extracted, name)
		}
	}
	return extracted, nil
}

// ParsePayload decodes the model's JSON answer, tolerating markdown code
// fences and non-string scalar values.
func ParsePayload(raw string) (map[string]string, error) {
	raw = stripFences(strings.TrimSpace(raw))
	if raw == "" {
		return map[string]string{}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction payload: %w", err)
	}

	out := make(map[string]string, len(parsed))
	for k, v := range parsed {
		switch val := v.(type) {
		case nil:
		case string:
			if trimmed := strings.TrimSpace(val); trimmed != "" {
				out[k] = trimmed
			}
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out, nil
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
