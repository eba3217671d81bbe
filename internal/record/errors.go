package record

import (
	"errors"
	"fmt"

	"devhub/internal/domain"
	"devhub/internal/store"
)

// ErrNotFound is returned when an operation targets a record that does not exist.
var ErrNotFound = store.ErrNotFound

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failure of the underlying store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ImportError points at the first spreadsheet row that could not be imported. Row is the
// 1-based worksheet row and Column the spreadsheet header.
type ImportError struct {
	Row    int
	Column string
	Err    error
}

func (e *ImportError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, column %s: %v", e.Row, e.Column, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	var ve *ValidationError
	if errors.Is(err, ErrNotFound) || errors.As(err, &pe) || errors.As(err, &ve) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// validate checks the enumerated fields of rec, when it has any, then empties the fields
// holding an Unknown variant so the write leaves their stored value alone.
func validate(rec any) error {
	v, ok := rec.(domain.Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		if c, ok := rec.(domain.UnknownClearer); ok {
			c.ClearUnknown()
		}
		return nil
	}
	var ee *domain.EnumError
	if errors.As(err, &ee) {
		reason := ee.Reason
		if reason == "" {
			reason = fmt.Sprintf("unknown value %q", ee.Value)
		}
		return &ValidationError{Field: ee.Field, Reason: reason}
	}
	return &ValidationError{Reason: err.Error()}
}
