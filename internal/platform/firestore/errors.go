package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies Firestore failures so callers can branch on the kind of
// failure without importing grpc status codes.
type Error struct {
	op   string
	err  error
	kind errKind
}

type errKind int

const (
	kindUnknown errKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool {
	return e != nil && e.kind == kindNotFound
}

// IsConflict reports whether the error represents a conflicting update.
func (e *Error) IsConflict() bool {
	return e != nil && e.kind == kindConflict
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.kind == kindUnavailable
}

func classify(code codes.Code) errKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return kindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	}
	return kindUnknown
}

// NewConflict builds a conflict error for guard failures detected in
// application code, such as a stale status precondition inside a transaction.
func NewConflict(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{op: op, err: err, kind: kindConflict}
}

// NewNotFound builds a not-found error for lookups that complete without a match.
func NewNotFound(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{op: op, err: err, kind: kindNotFound}
}

// WrapError annotates a Firestore SDK error with repository semantics.
// Cancellations surface as the plain context errors so retry loops and
// HTTP handlers treat them uniformly.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var classified *Error
	if errors.As(err, &classified) {
		if op != "" && classified.op == "" {
			classified.op = op
		}
		return classified
	}

	return &Error{op: op, err: err, kind: classify(status.Code(err))}
}
