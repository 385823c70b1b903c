package letsearch

import (
	"errors"
	"fmt"
)

// ErrKind identifies the taxonomy of errors this module surfaces to
// callers: recoverable lookup failures, bad input, or fatal
// on-disk/model failures.
type ErrKind int

const (
	KindUnknownCollection ErrKind = iota
	KindUnknownColumn
	KindUnknownModel
	KindUnknownHandle
	KindAlreadyExists
	KindBadRequest
	KindCorruptIndex
	KindCorruptConfig
	KindDimMismatch
	KindNotInitialized
	KindColumnNotIndexed
	KindIO
	KindStorage
	KindModel
)

func (k ErrKind) String() string {
	switch k {
	case KindUnknownCollection:
		return "unknown_collection"
	case KindUnknownColumn:
		return "unknown_column"
	case KindUnknownModel:
		return "unknown_model"
	case KindUnknownHandle:
		return "unknown_handle"
	case KindAlreadyExists:
		return "already_exists"
	case KindBadRequest:
		return "bad_request"
	case KindCorruptIndex:
		return "corrupt_index"
	case KindCorruptConfig:
		return "corrupt_config"
	case KindDimMismatch:
		return "dim_mismatch"
	case KindNotInitialized:
		return "not_initialized"
	case KindColumnNotIndexed:
		return "column_not_indexed"
	case KindIO:
		return "io_error"
	case KindStorage:
		return "storage_error"
	case KindModel:
		return "model_error"
	default:
		return "unknown"
	}
}

// Error is the error type returned from every operation in this module.
// Op names the failing operation (e.g. "Collection.Search"); Err is the
// underlying cause, if any, and is reachable via errors.Unwrap.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr constructs an *Error, wrapping cause when non-nil.
func newErr(op string, kind ErrKind, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the ErrKind carried by err, or false if err isn't one of
// ours (or is nil).
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Is404 reports whether err should be surfaced as an HTTP 404-equivalent
// (one of the lookup-failure kinds).
func Is404(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindUnknownCollection, KindUnknownColumn, KindUnknownModel, KindUnknownHandle, KindColumnNotIndexed:
		return true
	default:
		return false
	}
}

// Is400 reports whether err should be surfaced as an HTTP 400-equivalent.
func Is400(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBadRequest
}
