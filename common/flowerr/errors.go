package flowerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an engine error. Kinds are stable strings so retry policies
// and API responses can match on them.
type Kind string

const (
	KindInvalidWorkflow   Kind = "InvalidWorkflow"
	KindUnknownNodeType   Kind = "UnknownNodeType"
	KindHandlerFailure    Kind = "HandlerFailure"
	KindTimeout           Kind = "Timeout"
	KindCancelled         Kind = "Cancelled"
	KindRateLimited       Kind = "RateLimited"
	KindCredentialMissing Kind = "CredentialMissing"
	KindRecursion         Kind = "Recursion"
	KindExternalFailure   Kind = "ExternalFailure"
)

// Error is a classified engine error with an optional cause chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// StatusCode and BodySnippet are set for ExternalFailure errors
	StatusCode  int
	BodySnippet string
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates an error of the given kind with a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// External creates an ExternalFailure carrying the upstream status and a body
// snippet for diagnostics.
func External(statusCode int, body string, format string, args ...any) *Error {
	if len(body) > 512 {
		body = body[:512]
	}
	return &Error{
		Kind:        KindExternalFailure,
		Message:     fmt.Sprintf(format, args...),
		StatusCode:  statusCode,
		BodySnippet: body,
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind so callers can use errors.Is with a kind sentinel.
func (e *Error) Is(target error) bool {
	var fe *Error
	if errors.As(target, &fe) {
		return fe.Kind == e.Kind && (fe.Message == "" || fe.Message == e.Message)
	}
	return false
}

// KindOf returns the kind of err, walking the wrap chain. Context errors map
// to Cancelled and Timeout; anything else is a HandlerFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindHandlerFailure
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
