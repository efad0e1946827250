package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fusionworks/supplier-intake-agent/agent/contract"
	"github.com/fusionworks/supplier-intake-agent/agent/fields"
	"github.com/fusionworks/supplier-intake-agent/agent/state"
)

type fakeExtractor struct {
	out      map[string]string
	err      error
	calls    int
	lastText string
}

func (f *fakeExtractor) Extract(ctx context.Context, text string) (map[string]string, error) {
	f.calls++
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeValidator struct {
	fn    func(contract.Record) []contract.ValidationError
	calls int
}

func (f *fakeValidator) Validate(record contract.Record) []contract.ValidationError {
	f.calls++
	if f.fn == nil {
		return nil
	}
	return f.fn(record)
}

type fakeSubmitter struct {
	result contract.SubmissionResult
	err    error
	calls  int
	last   contract.Record
}

func (f *fakeSubmitter) Submit(ctx context.Context, record contract.Record) (contract.SubmissionResult, error) {
	f.calls++
	f.last = record
	if f.err != nil {
		return contract.SubmissionResult{}, f.err
	}
	return f.result, nil
}

func testFieldSet(t *testing.T) *fields.Set {
	t.Helper()
	set, err := fields.New([]fields.Field{
		{Name: "A", Question: "Question A?"},
		{Name: "B", Question: "Question B?"},
	})
	if err != nil {
		t.Fatalf("build field set: %v", err)
	}
	return set
}

func newTestEngine(t *testing.T, set *fields.Set, ex *fakeExtractor, val *fakeValidator, sub *fakeSubmitter, cfg Config) *Engine {
	t.Helper()
	var extractor contract.Extractor
	if ex != nil {
		extractor = ex
	}
	eng, err := New(set, extractor, val, sub, cfg, WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	return eng
}

func confirmSession(record contract.Record) *state.Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &state.Session{
		ID:        "sess-1",
		Phase:     state.PhaseConfirm,
		Record:    record,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCollectionFlowWithoutExtraction(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	val := &fakeValidator{}
	sub := &fakeSubmitter{}
	eng := newTestEngine(t, set, nil, val, sub, Config{})

	sess, res := eng.HandleTurn(ctx, "sess-1", nil, "start")
	if sess == nil {
		t.Fatal("expected a session after first turn")
	}
	if res.Status != contract.StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", res.Status)
	}
	if res.Reply != "Question A?" {
		t.Fatalf("reply = %q, want question for A", res.Reply)
	}
	if sess.PendingField != "A" {
		t.Fatalf("pending = %q, want A", sess.PendingField)
	}

	sess, res = eng.HandleTurn(ctx, sess.ID, sess, "foo")
	if res.Reply != "Question B?" {
		t.Fatalf("reply = %q, want question for B", res.Reply)
	}
	if sess.Record["A"] != "foo" {
		t.Fatalf("A = %q, want foo", sess.Record["A"])
	}

	sess, res = eng.HandleTurn(ctx, sess.ID, sess, "bar")
	if sess.Phase != state.PhaseConfirm {
		t.Fatalf("phase = %s, want CONFIRM", sess.Phase)
	}
	for _, want := range []string{"1. A: foo", "2. B: bar", "Confirm? (yes / edit / cancel)"} {
		if !strings.Contains(res.Reply, want) {
			t.Fatalf("summary %q missing %q", res.Reply, want)
		}
	}
	if val.calls != 1 {
		t.Fatalf("validator calls = %d, want 1", val.calls)
	}
	if sub.calls != 0 {
		t.Fatal("submitter must not run before confirmation")
	}
}

func TestCollectingNeverReasksFilledFields(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	sess := state.NewSession("sess-1", set, time.Now())
	sess.Record["A"] = "done"
	sess.PendingField = ""
	sess.Phase = state.PhaseCollecting

	// The ordered scan must land on B, never revisit A.
	got, res := eng.HandleTurn(ctx, sess.ID, sess, "")
	if got.PendingField != "B" {
		t.Fatalf("pending = %q, want B", got.PendingField)
	}
	if res.Reply != "Question B?" {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEmptyInputIsLiteralEmptyAnswer(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	sess := state.NewSession("sess-1", set, time.Now())
	got, res := eng.HandleTurn(ctx, sess.ID, sess, "   ")
	if got.PendingField != "A" {
		t.Fatalf("pending = %q, want A re-solicited", got.PendingField)
	}
	if res.Status != contract.StatusInProgress {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestTriggerPhraseGatesSessionCreation(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{TriggerPhrase: "create supplier"})

	sess, res := eng.HandleTurn(ctx, "sess-1", nil, "hello there")
	if sess != nil {
		t.Fatal("no session should open before the trigger phrase")
	}
	if !strings.Contains(res.Reply, "create supplier") {
		t.Fatalf("reply %q should mention the trigger phrase", res.Reply)
	}

	sess, res = eng.HandleTurn(ctx, "sess-1", nil, "Create Supplier")
	if sess == nil {
		t.Fatal("trigger phrase should open a session")
	}
	if res.Reply != "Question A?" {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestFirstUtteranceExtraction(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	ex := &fakeExtractor{out: map[string]string{"A": "Acme", "B": "Widgets"}}
	val := &fakeValidator{}
	eng := newTestEngine(t, set, ex, val, &fakeSubmitter{}, Config{ExtractFirstMessage: true, MergeExtraction: true})

	sess, res := eng.HandleTurn(ctx, "sess-1", nil, "register Acme selling Widgets please")
	if ex.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1", ex.calls)
	}
	if sess.Phase != state.PhaseConfirm {
		t.Fatalf("phase = %s, want CONFIRM when extraction fills everything", sess.Phase)
	}
	if !strings.Contains(res.Reply, "1. A: Acme") {
		t.Fatalf("summary %q missing extracted value", res.Reply)
	}
}

func TestMergeIsFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	ex := &fakeExtractor{out: map[string]string{"A": "extracted-a", "B": "extracted-b"}}
	eng := newTestEngine(t, set, ex, &fakeValidator{}, &fakeSubmitter{}, Config{MergeExtraction: true})

	sess := state.NewSession("sess-1", set, time.Now())
	sess.Record["B"] = "already-there"
	sess.PendingField = "A"

	got, _ := eng.HandleTurn(ctx, sess.ID, sess, "a long answer with many tokens")
	if got.Record["A"] != "extracted-a" {
		t.Fatalf("A = %q, want extracted value", got.Record["A"])
	}
	if got.Record["B"] != "already-there" {
		t.Fatalf("B = %q, merge must never overwrite a filled field", got.Record["B"])
	}
}

func TestShortInputSkipsExtractor(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	ex := &fakeExtractor{out: map[string]string{"B": "nope"}}
	eng := newTestEngine(t, set, ex, &fakeValidator{}, &fakeSubmitter{}, Config{MergeExtraction: true})

	sess := state.NewSession("sess-1", set, time.Now())
	got, _ := eng.HandleTurn(ctx, sess.ID, sess, "two words")
	if ex.calls != 0 {
		t.Fatalf("extractor calls = %d, want 0 for short input", ex.calls)
	}
	if got.Record["A"] != "two words" {
		t.Fatalf("A = %q, want literal input", got.Record["A"])
	}
}

func TestExtractionFailureFallsBackToLiteralInput(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	ex := &fakeExtractor{err: errors.New("model unavailable")}
	eng := newTestEngine(t, set, ex, &fakeValidator{}, &fakeSubmitter{}, Config{MergeExtraction: true})

	sess := state.NewSession("sess-1", set, time.Now())
	got, res := eng.HandleTurn(ctx, sess.ID, sess, "the supplier is called Acme Industrial")
	if got.Record["A"] != "the supplier is called Acme Industrial" {
		t.Fatalf("A = %q, want literal fallback", got.Record["A"])
	}
	if res.Status != contract.StatusInProgress {
		t.Fatalf("extraction failure must not surface as an error, got %s", res.Status)
	}
}

func TestValidationViolationRoutesToOffendingField(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	val := &fakeValidator{fn: func(r contract.Record) []contract.ValidationError {
		if r["A"] == "x" {
			return []contract.ValidationError{{Field: "A", Message: "A must not be x"}}
		}
		return nil
	}}
	eng := newTestEngine(t, set, nil, val, &fakeSubmitter{}, Config{})

	sess := state.NewSession("sess-1", set, time.Now())
	sess.Record["B"] = "filled"
	sess.PendingField = "A"

	got, res := eng.HandleTurn(ctx, sess.ID, sess, "x")
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Reply, "A must not be x") || !strings.Contains(res.Reply, "Question A?") {
		t.Fatalf("reply %q should carry the violation then re-ask A", res.Reply)
	}
	if got.PendingField != "A" {
		t.Fatalf("pending = %q, want A", got.PendingField)
	}
	if got.Phase != state.PhaseCollecting {
		t.Fatalf("phase = %s, want COLLECTING", got.Phase)
	}
}

func TestUnresolvableViolationFieldDefaultsToFirstRequired(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	val := &fakeValidator{fn: func(contract.Record) []contract.ValidationError {
		return []contract.ValidationError{{Field: "Z", Message: "Z is wrong"}}
	}}
	eng := newTestEngine(t, set, nil, val, &fakeSubmitter{}, Config{})

	sess := state.NewSession("sess-1", set, time.Now())
	sess.Record["B"] = "filled"
	sess.PendingField = "A"

	got, _ := eng.HandleTurn(ctx, sess.ID, sess, "anything")
	if got.PendingField != "A" {
		t.Fatalf("pending = %q, want fallback to first required field", got.PendingField)
	}
}

func TestConfirmYesSubmitsAndEndsSession(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	sub := &fakeSubmitter{result: contract.SubmissionResult{
		Created:        true,
		SupplierID:     "300000001",
		SupplierNumber: "12345",
	}}
	eng := newTestEngine(t, set, nil, &fakeValidator{}, sub, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	next, res := eng.HandleTurn(ctx, sess.ID, sess, "YES")
	if next != nil {
		t.Fatal("session must end after successful submission")
	}
	if !res.End || res.Status != contract.StatusSuccess {
		t.Fatalf("result = %+v, want terminal SUCCESS", res)
	}
	if res.Data["SupplierId"] != "300000001" || res.Data["SupplierNumber"] != "12345" {
		t.Fatalf("data = %v", res.Data)
	}
	if sub.calls != 1 {
		t.Fatalf("submitter calls = %d, want exactly 1", sub.calls)
	}
	if sub.last["A"] != "foo" || sub.last["B"] != "bar" {
		t.Fatalf("submitted record = %v", sub.last)
	}
}

func TestConfirmYesSubmissionFailureDestroysSession(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	sub := &fakeSubmitter{result: contract.SubmissionResult{Created: false, Detail: "duplicate supplier"}}
	eng := newTestEngine(t, set, nil, &fakeValidator{}, sub, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	next, res := eng.HandleTurn(ctx, sess.ID, sess, "yes")
	if next != nil || !res.End {
		t.Fatal("failed submission must still terminate the session")
	}
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if res.Details != "duplicate supplier" {
		t.Fatalf("details = %v", res.Details)
	}
	if sub.calls != 1 {
		t.Fatalf("submitter calls = %d, failure must never auto-retry", sub.calls)
	}
}

func TestConfirmCancelDestroysSession(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	sub := &fakeSubmitter{}
	eng := newTestEngine(t, set, nil, &fakeValidator{}, sub, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	next, res := eng.HandleTurn(ctx, sess.ID, sess, "cancel")
	if next != nil || !res.End {
		t.Fatal("cancel must end the session")
	}
	if res.Status != contract.StatusError {
		t.Fatalf("status = %s, want ERROR", res.Status)
	}
	if !strings.Contains(res.Reply, "cancelled") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if sub.calls != 0 {
		t.Fatal("cancel must not submit")
	}
}

func TestConfirmUnrecognizedInputReprompts(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	next, res := eng.HandleTurn(ctx, sess.ID, sess, "maybe")
	if next == nil || next.Phase != state.PhaseConfirm {
		t.Fatal("unrecognized confirm input must not change state")
	}
	if !strings.Contains(res.Reply, "yes, edit, or cancel") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEditFlow(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	next, res := eng.HandleTurn(ctx, sess.ID, sess, "edit")
	if next.Phase != state.PhaseEdit {
		t.Fatalf("phase = %s, want EDIT", next.Phase)
	}
	if !strings.Contains(res.Reply, "1. A") || !strings.Contains(res.Reply, "2. B") {
		t.Fatalf("edit menu %q must list fields by number", res.Reply)
	}

	next, res = eng.HandleTurn(ctx, next.ID, next, "1")
	if next.Phase != state.PhaseCollecting || next.PendingField != "A" {
		t.Fatalf("phase=%s pending=%q, want COLLECTING/A", next.Phase, next.PendingField)
	}
	if res.Reply != "Question A?" {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEditRejectsInvalidChoices(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	for _, input := range []string{"0", "9", "abc", ""} {
		sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
		sess.Phase = state.PhaseEdit

		next, res := eng.HandleTurn(ctx, sess.ID, sess, input)
		if next == nil || next.Phase != state.PhaseEdit {
			t.Fatalf("input %q: invalid choice must not change state", input)
		}
		if !strings.Contains(res.Reply, "Invalid choice") {
			t.Fatalf("input %q: reply = %q", input, res.Reply)
		}
	}
}

func TestEditedValueShowsInSummary(t *testing.T) {
	ctx := context.Background()
	set := testFieldSet(t)
	eng := newTestEngine(t, set, nil, &fakeValidator{}, &fakeSubmitter{}, Config{})

	sess := confirmSession(contract.Record{"A": "foo", "B": "bar"})
	sess, _ = eng.HandleTurn(ctx, sess.ID, sess, "edit")
	sess, _ = eng.HandleTurn(ctx, sess.ID, sess, "2")
	sess, res := eng.HandleTurn(ctx, sess.ID, sess, "baz")

	if sess.Phase != state.PhaseConfirm {
		t.Fatalf("phase = %s, want CONFIRM after re-collection", sess.Phase)
	}
	if !strings.Contains(res.Reply, "2. B: baz") || !strings.Contains(res.Reply, "1. A: foo") {
		t.Fatalf("summary %q must render the edited value", res.Reply)
	}
}
