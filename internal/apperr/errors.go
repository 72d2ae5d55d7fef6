package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error so transport code can map it to a
// status without inspecting message text.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
)

// FieldError points at a specific invalid input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// Error is the engine's error type. Fields is only set for validation
// errors.
type Error struct {
	Kind   Kind
	Msg    string
	Fields []FieldError
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

func Conflict(msg string) error {
	return &Error{Kind: KindConflict, Msg: msg}
}

func Validation(msg string, fields ...FieldError) error {
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields}
}

func Validationf(field, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Kind: KindValidation, Msg: msg, Fields: []FieldError{{Field: field, Error: msg}}}
}

// Internal wraps an unexpected storage or infrastructure failure. The
// wrapped detail is for logs; callers only see a generic message.
func Internal(msg string, err error) error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// KindOf extracts the kind of err, defaulting to KindInternal for
// errors the engine did not classify.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
