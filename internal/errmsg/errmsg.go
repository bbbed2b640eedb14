// Package errmsg classifies playback errors and formats consistent
// user-facing messages for them.
package errmsg

import (
	"errors"
	"fmt"
)

// Kind is the user-facing classification of a load failure.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindRateLimit: the server is throttling requests; retryable.
	KindRateLimit
	// KindAuth: credentials rejected or session expired.
	KindAuth
	// KindGeneric: network failure, decode failure, anything else.
	KindGeneric
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindRateLimit:
		return "RateLimit"
	case KindAuth:
		return "Auth"
	case KindGeneric:
		return "Generic"
	default:
		return "Unknown"
	}
}

// Message returns the user-facing message for the kind.
func (k Kind) Message() string {
	switch k {
	case KindNone:
		return ""
	case KindRateLimit:
		return "The server is rate limiting requests. Try again shortly."
	case KindAuth:
		return "Authentication failed. Please re-enter your credentials."
	default:
		return "Could not load track. Tap to retry."
	}
}

// Classifier is implemented by errors that carry their own kind, such
// as the catalog client's status errors.
type Classifier interface {
	ErrorKind() Kind
}

// Classify maps an error onto the taxonomy. Errors that do not declare
// a kind are generic load failures.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var c Classifier
	if errors.As(err, &c) {
		return c.ErrorKind()
	}
	return KindGeneric
}

type kinded struct {
	kind Kind
	err  error
}

func (e *kinded) Error() string   { return e.err.Error() }
func (e *kinded) Unwrap() error   { return e.err }
func (e *kinded) ErrorKind() Kind { return e.kind }

// WithKind attaches a classification to an error.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kinded{kind: kind, err: err}
}

// Op represents an operation that can fail.
type Op string

// Operation constants - grouped by domain.
const (
	// Playback operations
	OpLoadTrack     Op = "load track"
	OpScrobble      Op = "scrobble track"
	OpFetchStream   Op = "fetch stream"
	OpDecodeStream  Op = "decode stream"
	OpQueueRestore  Op = "restore queue"
	OpQueuePersist  Op = "save queue"
	OpCatalogPing   Op = "reach server"
	OpCatalogSearch Op = "fetch tracks"

	// Initialization
	OpInitialize Op = "initialize application"
)

// Format creates a user-friendly error message.
func Format(op Op, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Failed to %s: %v", op, err)
}

// FormatWith creates an error message with additional context.
func FormatWith(op Op, context string, err error) string {
	if err == nil {
		return ""
	}
	if context == "" {
		return Format(op, err)
	}
	return fmt.Sprintf("Failed to %s '%s': %v", op, context, err)
}
