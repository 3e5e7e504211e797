package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies errors so handlers can map them to HTTP status codes
// without inspecting message text.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindProvider
	KindTraining
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

func Validationf(format string, a ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, a...)}
}
func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

func Provider(msg string, err error) *Error {
	return &Error{Kind: KindProvider, Msg: msg, Err: err}
}

func Training(msg string, err error) *Error {
	return &Error{Kind: KindTraining, Msg: msg, Err: err}
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
