package errs

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can pick a UI state without
// matching on error strings.
type Kind int

const (
	KindUnknown Kind = iota
	KindRateLimited
	KindTransient
	KindDataInvalid
	KindConfigMissing
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindDataInvalid:
		return "data_invalid"
	case KindConfigMissing:
		return "config_missing"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind   Kind
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RateLimited is the error surfaced once upstream throttling outlasts the
// retry budget.
func RateLimited(op string) *Error {
	return &Error{Kind: KindRateLimited, Op: op, Err: errRateLimited}
}

var errRateLimited = errors.New("API rate limit exceeded, please try again later")
