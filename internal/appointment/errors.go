package appointment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCrossSalon              = errors.New("staff and service must belong to the same salon")
	ErrConflict                = errors.New("staff member has conflicting appointments")
	ErrAccessDenied            = errors.New("access denied")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrStaffBusy               = errors.New("staff schedule is currently being modified, please retry")
)

type FieldError struct {
	Field   string
	Message string
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// ValidationError reports input the caller can correct. Err, when set, names
// a more specific cause such as ErrCrossSalon.
type ValidationError struct {
	Fields []FieldError
	Err    error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	msg := "validation failed: " + strings.Join(parts, "; ")
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// ConflictError carries the appointments that blocked a write. Conflicts may
// be empty when the storage constraint caught a race the checker missed.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return ErrConflict.Error()
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, fmt.Sprintf("#%d (%s-%s)", c.ID, c.StartTime.Format(clockLayout), c.EndTime.Format(clockLayout)))
	}
	return ErrConflict.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
