package core

// errors.go defines the engine's error taxonomy.
//
// Every failure path returns a typed *GridError so the caller decides whether
// to log, retry, or display. The kinds map directly onto how the grid reacts:
//
//	KindTransient  - fetch failed; shown as a collection-scoped banner, retried
//	                 only by the next state-driven refetch.
//	KindSuperseded - a newer fetch was issued before this one resolved; dropped
//	                 silently, never surfaced.
//	KindValidation - a single import row or edit value was rejected; collected
//	                 per item, never aborts the surrounding batch.
//	KindCommit     - a single row's edit save failed; pending edits for that
//	                 row are preserved for retry.
//	KindSchema     - an unexpected or missing field; rendering degrades to a
//	                 literal fallback instead of failing.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an engine error for handling decisions.
type ErrorKind int

const (
	KindTransient ErrorKind = iota
	KindSuperseded
	KindValidation
	KindCommit
	KindSchema
)

// String returns a stable code for the kind, quotable in support requests.
func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "GRID_TRANSIENT"
	case KindSuperseded:
		return "GRID_SUPERSEDED"
	case KindValidation:
		return "GRID_VALIDATION"
	case KindCommit:
		return "GRID_COMMIT"
	case KindSchema:
		return "GRID_SCHEMA"
	default:
		return "GRID_UNKNOWN"
	}
}

// GridError is an engine error scoped to a collection.
type GridError struct {
	Kind       ErrorKind
	Collection string
	Err        error
}

func (e *GridError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s: %s: %v", e.Collection, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *GridError) Unwrap() error { return e.Err }

// NewGridError wraps err with a kind and collection scope.
func NewGridError(kind ErrorKind, collection string, err error) *GridError {
	return &GridError{Kind: kind, Collection: collection, Err: err}
}

// KindOf extracts the error kind, defaulting to KindTransient for plain errors.
func KindOf(err error) ErrorKind {
	var ge *GridError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// IsSuperseded reports whether the error is a silently droppable stale
// response. Context cancellation on teardown is treated the same way:
// aborts are raised only on teardown and are filtered out of error
// reporting paths.
func IsSuperseded(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == KindSuperseded {
		return true
	}
	return errors.Is(err, context.Canceled)
}

// UserMessage is a user-facing rendering of an error with a stable code.
type UserMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

// MapError converts an engine error into a user-facing message.
// Technical detail stays server-side; the client gets the sanitized form.
func MapError(err error) UserMessage {
	var ge *GridError
	if errors.As(err, &ge) {
		switch ge.Kind {
		case KindValidation:
			return UserMessage{
				Code:    ge.Kind.String(),
				Message: "Some values were rejected during validation.",
				Action:  "Review the reported rows and correct the values.",
			}
		case KindCommit:
			return UserMessage{
				Code:    ge.Kind.String(),
				Message: "Saving one or more edited rows failed.",
				Action:  "Your pending edits are preserved; retry or discard them.",
			}
		case KindSchema:
			return UserMessage{
				Code:    ge.Kind.String(),
				Message: "The collection schema did not match the loaded data.",
				Action:  "Reload the collection to refresh its schema.",
			}
		case KindSuperseded:
			return UserMessage{Code: ge.Kind.String(), Message: "Request superseded."}
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return UserMessage{
			Code:    "DB_DUPLICATE",
			Message: "A record with this key already exists.",
			Action:  "Check for duplicate entries.",
		}
	case strings.Contains(msg, "foreign key"):
		return UserMessage{
			Code:    "DB_FOREIGN_KEY",
			Message: "A referenced record does not exist.",
			Action:  "Import or create the referenced records first.",
		}
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return UserMessage{
			Code:    "DB_TIMEOUT",
			Message: "The operation timed out.",
			Action:  "Please try again in a few moments.",
		}
	case strings.Contains(msg, "connection"):
		return UserMessage{
			Code:    "DB_CONNECTION",
			Message: "The data backend is unreachable.",
			Action:  "Please try again in a few moments.",
		}
	}

	return UserMessage{
		Code:    KindTransient.String(),
		Message: "Loading the collection failed.",
		Action:  "The grid will retry on the next refresh.",
	}
}
