package gateway

import "errors"

// Kind is the error taxonomy shared by every gateway operation.
type Kind int

const (
	KindIO Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "io"
	}
}

// Error carries a user-facing message next to its kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any gateway error of the same kind, so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

var (
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrValidation   = &Error{Kind: KindValidation}

	errSignInRequired = &Error{Kind: KindUnauthorized, Msg: "Please sign in"}
	errNotAuthor      = &Error{Kind: KindUnauthorized, Msg: "Not authorized"}
)

func invalid(msg string) error  { return &Error{Kind: KindValidation, Msg: msg} }
func notFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

func ioErr(op string, err error) error {
	return &Error{Kind: KindIO, Msg: op, Err: err}
}

func Classify(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}

// Message returns the text to show the user, or fallback for I/O failures.
func Message(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindIO && e.Msg != "" {
		return e.Msg
	}
	return fallback
}
