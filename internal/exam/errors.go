package exam

import (
	"fmt"
)

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidState
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidState:
		return "invalid_state"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation_error"
	}
	return "unknown"
}

// Error is a domain failure. Reason is short and machine readable; Details
// holds whatever a caller needs to render a message (e.g. passing_marks).
type Error struct {
	Kind    Kind
	Reason  string
	Msg     string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Msg
}

// Is matches on Kind so callers can test errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrValidation   = &Error{Kind: KindValidation}
)

func notFound(reason, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func invalidState(reason, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func forbidden(reason, format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func validationErr(reason, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) with(k string, v any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[k] = v
	return e
}
