package contract

// Record is the supplier payload under construction. Keys come from the
// deployment's declared field set; an empty value means "not collected yet".
type Record map[string]string

// Clone returns a deep copy so callers can mutate freely.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Filled reports whether the field holds a non-empty value.
func (r Record) Filled(field string) bool {
	return r[field] != ""
}

// ValidationError names the offending field explicitly. Field identity always
// travels structured; nothing downstream parses it back out of Message.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SubmissionResult is the outcome of one create attempt against the ERP.
type SubmissionResult struct {
	Created        bool   `json:"created"`
	SupplierID     string `json:"supplier_id,omitempty"`
	SupplierNumber string `json:"supplier_number,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

// TurnStatus tags the reply envelope of one conversation turn.
type TurnStatus string

const (
	StatusInProgress TurnStatus = "IN_PROGRESS"
	StatusSuccess    TurnStatus = "SUCCESS"
	StatusError      TurnStatus = "ERROR"
)
