package pipeline

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindInvalidURL        Kind = "invalid_url"
	KindInvalidDimensions Kind = "invalid_dimensions"
	KindAccessDenied      Kind = "access_denied"
	KindTransport         Kind = "transport"
	KindUpstreamStatus    Kind = "upstream_status"
	KindDecode            Kind = "decode"
	KindEncode            Kind = "encode"
	KindUnknown           Kind = "unknown"
)

// Error carries the failure kind of a pipeline stage. The HTTP layer maps
// kinds to status codes; nothing below it knows about HTTP statuses.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with kind. Callers outside the pipeline use it for
// request validation that happens before Process, such as size parsing.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindUnknown
}

// UpstreamStatusError is the cause attached to KindUpstreamStatus errors.
type UpstreamStatusError struct {
	Status int
	URL    string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status=%d for %s", e.Status, e.URL)
}
