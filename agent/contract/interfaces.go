package contract

import "context"

// Extractor converts free text into a partial field mapping. Best effort: an
// empty map is a valid answer, and implementations must confine upstream
// failures to the returned error so a turn can degrade to literal input.
type Extractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}

// Validator checks a completed record against ERP business rules. It must be
// deterministic and side-effect-free; violations come back in a stable order.
type Validator interface {
	Validate(record Record) []ValidationError
}

// Submitter attempts creation in the external system of record. Called at most
// once per explicit user confirmation, never retried automatically.
type Submitter interface {
	Submit(ctx context.Context, record Record) (SubmissionResult, error)
}

// AuditRecorder persists a trace of submission attempts. Implementations are
// fire-and-forget from the engine's point of view.
type AuditRecorder interface {
	RecordSubmission(ctx context.Context, sessionID string, record Record, result SubmissionResult)
}
