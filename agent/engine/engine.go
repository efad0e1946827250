// Package engine implements the conversation state machine for supplier
// intake. HandleTurn is a pure transition: current session plus one line of
// user input in, next session plus reply out. The engine never touches the
// store; the transport owns persistence around each turn.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/fields"
	"github.com/fusionworks/supplier-intake-agent/agent/state"
)

const defaultExtractTokenThreshold = 3

// Config carries the deployment's conversation policies.
type Config struct {
	// TriggerPhrase gates session creation behind a literal utterance when
	// non-empty (e.g. "create supplier"). Empty means any first message
	// opens a session.
	TriggerPhrase string `envconfig:"TRIGGER_PHRASE" split_words:"true"`

	// ExtractFirstMessage runs the extractor against the opening utterance
	// before computing the first pending field.
	ExtractFirstMessage bool `envconfig:"EXTRACT_FIRST_MESSAGE" split_words:"true" default:"true"`

	// MergeExtraction enables extractor merging of long answers while
	// collecting. Short answers always go verbatim into the pending field.
	MergeExtraction bool `envconfig:"MERGE_EXTRACTION" split_words:"true" default:"true"`

	// ExtractTokenThreshold is the word count above which an answer is
	// considered "long" enough to be worth an extractor call.
	ExtractTokenThreshold int `envconfig:"EXTRACT_TOKEN_THRESHOLD" split_words:"true" default:"3"`
}

func (c Config) threshold() int {
	if c.ExtractTokenThreshold > 0 {
		return c.ExtractTokenThreshold
	}
	return defaultExtractTokenThreshold
}

// Result is the engine's verdict for one turn.
type Result struct {
	Status  contract.TurnStatus
	Reply   string
	Data    map[string]string
	Details any

	// End marks the session as finished: the transport must delete it
	// instead of saving, and the id is no longer resumable.
	End bool
}

// Engine drives the COLLECTING -> CONFIRM -> EDIT flow over injected
// collaborators. Safe for concurrent use across distinct sessions; the
// transport serializes turns that share a session id.
type Engine struct {
	fields    *fields.Set
	extractor contract.Extractor
	validator contract.Validator
	submitter contract.Submitter
	audit     contract.AuditRecorder
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithAudit attaches a submission audit recorder.
func WithAudit(rec contract.AuditRecorder) Option {
	return func(e *Engine) {
		e.audit = rec
	}
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(
	set *fields.Set,
	extractor contract.Extractor,
	validator contract.Validator,
	submitter contract.Submitter,
	cfg Config,
	opts ...Option,
) (*Engine, error) {
	if set == nil {
		return nil, errors.New("field set is required")
	}
	if validator == nil {
		return nil, errors.New("validator is required")
	}
	if submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if extractor == nil && (cfg.ExtractFirstMessage || cfg.MergeExtraction) {
		return nil, errors.New("extractor is required when extraction is enabled")
	}

	e := &Engine{
		fields:    set,
		extractor: extractor,
		validator: validator,
		submitter: submitter,
		cfg:       cfg,
		logger:    log.With().Str("component", "engine").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// HandleTurn advances one conversation by one user message. A nil session
// means no conversation exists yet under sessionID; the engine decides
// whether this turn opens one. The returned session is nil when no session
// exists after the turn (not opened, or ended by Result.End).
func (e *Engine) HandleTurn(ctx context.Context, sessionID string, sess *state.Session, message string) (*state.Session, Result) {
	input := strings.TrimSpace(message)

	if sess == nil {
		return e.start(ctx, sessionID, input)
	}

	sess.Touch(e.now())

	var res Result
	switch sess.Phase {
	case state.PhaseCollecting:
		res = e.collect(ctx, sess, input)
	case state.PhaseConfirm:
		res = e.confirm(ctx, sess, input)
	case state.PhaseEdit:
		res = e.edit(sess, input)
	default:
		// A phase this engine does not know is a corrupt session; restart
		// collection deterministically rather than dropping the turn.
		e.logger.Warn().Str("session_id", sess.ID).Str("phase", string(sess.Phase)).Msg("unknown phase, restarting collection")
		sess.Phase = state.PhaseCollecting
		sess.PendingField = ""
		res = e.finishCollection(sess)
	}

	if res.End {
		return nil, res
	}
	return sess, res
}

// start handles the implicit NO_SESSION state.
func (e *Engine) start(ctx context.Context, sessionID string, input string) (*state.Session, Result) {
	if e.cfg.TriggerPhrase != "" && !strings.EqualFold(input, e.cfg.TriggerPhrase) {
		return nil, Result{
			Status: contract.StatusInProgress,
			Reply:  "Send \"" + e.cfg.TriggerPhrase + "\" to start creating a supplier.",
		}
	}

	sess := state.NewSession(sessionID, e.fields, e.now())

	if e.cfg.ExtractFirstMessage && input != "" && !strings.EqualFold(input, e.cfg.TriggerPhrase) {
		sess.Merge(e.extract(ctx, input), e.fields)
	}

	sess.PendingField = ""
	res := e.finishCollection(sess)
	if res.End {
		return nil, res
	}
	return sess, res
}

// extract shields the turn from the extractor: any failure degrades to "no
// fields extracted" and the conversation continues on literal input.
func (e *Engine) extract(ctx context.Context, text string) map[string]string {
	if e.extractor == nil {
		return nil
	}
	extracted, err := e.extractor.Extract(ctx, text)
	if err != nil {
		e.logger.Warn().Err(err).Msg("field extraction failed, falling back to literal input")
		return nil
	}
	return extracted
}
