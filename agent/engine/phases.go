package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/state"
)

// collect absorbs one answer into the record, then routes to the next
// question, a validation retry, or confirmation.
func (e *Engine) collect(ctx context.Context, sess *state.Session, input string) Result {
	if sess.PendingField != "" {
		if e.cfg.MergeExtraction && tokenCount(input) > e.cfg.threshold() {
			sess.Merge(e.extract(ctx, input), e.fields)
			// Extraction is best effort; the pending field still gets the
			// literal input when nothing landed in it.
			if !sess.Record.Filled(sess.PendingField) {
				sess.SetAnswer(sess.PendingField, input)
			}
		} else {
			sess.SetAnswer(sess.PendingField, input)
		}
	}
	sess.PendingField = ""
	return e.finishCollection(sess)
}

// finishCollection decides what the conversation needs next: the ordered
// missing scan first, then full-record validation, then the confirm summary.
func (e *Engine) finishCollection(sess *state.Session) Result {
	if missing := e.fields.Missing(sess.Record); len(missing) > 0 {
		sess.PendingField = missing[0]
		return Result{
			Status: contract.StatusInProgress,
			Reply:  e.fields.Question(missing[0]),
		}
	}

	if violations := e.validator.Validate(sess.Record); len(violations) > 0 {
		target := violations[0].Field
		if !e.fields.IsRequired(target) {
			// Validator pointed at a field we cannot solicit; restart from
			// the head of the declared order.
			target = e.fields.Required()[0]
		}
		sess.PendingField = target

		lines := make([]string, 0, len(violations))
		for _, v := range violations {
			lines = append(lines, v.Message)
		}
		return Result{
			Status:  contract.StatusError,
			Reply:   "Input validation failed:\n" + strings.Join(lines, "\n") + "\n\n" + e.fields.Question(target),
			Details: violations,
		}
	}

	sess.Phase = state.PhaseConfirm
	sess.PendingField = ""
	return Result{
		Status: contract.StatusInProgress,
		Reply:  e.renderSummary(sess.Record),
	}
}

// confirm handles the yes / edit / cancel decision.
func (e *Engine) confirm(ctx context.Context, sess *state.Session, input string) Result {
	switch strings.ToLower(input) {
	case "yes":
		return e.submit(ctx, sess)

	case "edit":
		sess.Phase = state.PhaseEdit
		return Result{
			Status: contract.StatusInProgress,
			Reply:  "Which field do you want to edit? (Enter number)\n\n" + e.renderFieldMenu(),
		}

	case "cancel":
		return Result{
			Status: contract.StatusError,
			Reply:  "Supplier creation cancelled by user",
			End:    true,
		}

	default:
		return Result{
			Status: contract.StatusInProgress,
			Reply:  "Invalid option. Please type yes, edit, or cancel.",
		}
	}
}

// submit runs the one-and-only creation attempt. Failure policy is strict:
// the session ends either way, so a stale confirmation can never resubmit.
func (e *Engine) submit(ctx context.Context, sess *state.Session) Result {
	result, err := e.submitter.Submit(ctx, sess.Record.Clone())
	if err != nil {
		e.logger.Error().Err(err).Str("session_id", sess.ID).Msg("supplier submission failed")
		result = contract.SubmissionResult{Detail: err.Error()}
	}
	if e.audit != nil {
		e.audit.RecordSubmission(ctx, sess.ID, sess.Record.Clone(), result)
	}

	if !result.Created {
		return Result{
			Status:  contract.StatusError,
			Reply:   "Supplier creation failed",
			Details: result.Detail,
			End:     true,
		}
	}

	e.logger.Info().
		Str("session_id", sess.ID).
		Str("supplier_id", result.SupplierID).
		Str("supplier_number", result.SupplierNumber).
		Msg("supplier created")

	return Result{
		Status: contract.StatusSuccess,
		Reply:  "Supplier created successfully",
		Data: map[string]string{
			"SupplierId":     result.SupplierID,
			"SupplierNumber": result.SupplierNumber,
		},
		End: true,
	}
}

// edit resolves a 1-based menu choice back into collection.
func (e *Engine) edit(sess *state.Session, input string) Result {
	position, err := strconv.Atoi(input)
	if err == nil {
		if field, ok := e.fields.RequiredAt(position); ok {
			sess.PendingField = field
			sess.Phase = state.PhaseCollecting
			return Result{
				Status: contract.StatusInProgress,
				Reply:  e.fields.Question(field),
			}
		}
	}
	return Result{
		Status: contract.StatusInProgress,
		Reply:  fmt.Sprintf("Invalid choice. Enter a number between 1 and %d.", len(e.fields.Required())),
	}
}

// renderSummary shows every required field in declared order with exactly the
// values last written.
func (e *Engine) renderSummary(rec contract.Record) string {
	var b strings.Builder
	b.WriteString("Please review the supplier details:\n\n")
	for i, name := range e.fields.Required() {
		fmt.Fprintf(&b, "%d. %s: %s\n", i+1, name, rec[name])
	}
	b.WriteString("\nConfirm? (yes / edit / cancel)")
	return b.String()
}

func (e *Engine) renderFieldMenu() string {
	lines := make([]string, 0, len(e.fields.Required()))
	for i, name := range e.fields.Required() {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	return strings.Join(lines, "\n")
}

func tokenCount(s string) int {
	return len(strings.Fields(s))
}
