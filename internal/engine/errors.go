package engine

import (
	"errors"
	"fmt"
	"strings"

	"whygo/internal/engine/auth"
	"whygo/internal/ids"
	"whygo/internal/repo"
)

var (
	ErrAlreadyApproved   = errors.New("goal already approved")
	ErrInvalidTransition = errors.New("invalid status transition")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError
}

func (e ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, format string, args ...any) {
	v.fields = append(v.fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return ValidationError{Fields: v.fields}
}

// StoreWriteError wraps a failed store write.
type StoreWriteError struct {
	Op  string
	Err error
}

func (e StoreWriteError) Error() string {
	return fmt.Sprintf("%s: store write failed: %v", e.Op, e.Err)
}

func (e StoreWriteError) Unwrap() error { return e.Err }

// CascadeError reports a goal delete that stopped part way. Remaining holds
// the document ids still present; calling DeleteGoal again finishes the job.
type CascadeError struct {
	GoalID    string
	Remaining []string
	Err       error
}

func (e CascadeError) Error() string {
	return fmt.Sprintf("delete goal %s incomplete, %d documents remain: %v", e.GoalID, len(e.Remaining), e.Err)
}

func (e CascadeError) Unwrap() error { return e.Err }

type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindForbidden  ErrorKind = "permission_denied"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindInvalidID  ErrorKind = "invalid_id"
	KindStoreWrite ErrorKind = "store_write_error"
	KindInternal   ErrorKind = "internal"
)

// Kind classifies err into one of the service error kinds.
func Kind(err error) ErrorKind {
	var (
		verr ValidationError
		ferr auth.ForbiddenError
		serr StoreWriteError
		cerr CascadeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return KindValidation
	case errors.As(err, &ferr):
		return KindForbidden
	case errors.Is(err, ids.ErrInvalidIDFormat):
		return KindInvalidID
	case errors.Is(err, ErrAlreadyApproved), errors.Is(err, ErrInvalidTransition), errors.Is(err, repo.ErrAlreadyExists):
		return KindConflict
	case errors.As(err, &cerr), errors.As(err, &serr):
		return KindStoreWrite
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}
