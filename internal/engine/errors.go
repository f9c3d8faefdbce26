package engine

import "fmt"

// DataSourceError wraps a failed collaborator fetch. The façade recovers from
// it by serving the last fresh snapshot when one exists.
type DataSourceError struct {
	Op  string
	Err error
}

func (e *DataSourceError) Error() string { return fmt.Sprintf("data source: %s: %v", e.Op, e.Err) }

func (e *DataSourceError) Unwrap() error { return e.Err }

// ValidationError marks malformed input. It aborts the query immediately and
// is never coerced or cached.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ComputationError is an internal invariant violation on a single record. The
// offending record is skipped and the violation reported as a Diagnostic; the
// rest of the batch proceeds.
type ComputationError struct {
	EquipmentID EquipmentID
	Reason      string
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation: equipment %d: %s", e.EquipmentID, e.Reason)
}
