package errs

// Store operations reported in StoreError.Op.
const (
	OpSave    = "save"
	OpCheck   = "check"
	OpDelete  = "delete"
	OpLoad    = "load"
	OpRefresh = "refresh"
)

// StoreError reports a failed durable store call together with the step it
// belonged to. It matches ErrStore and the underlying driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return "store " + e.Op + ": " + e.Err.Error() }

// Unwrap exposes both ErrStore and the driver error to errors.Is/As.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }
