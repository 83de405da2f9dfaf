package snapshot

import (
	"context"
	"errors"

	errorslib "github.com/goliatone/go-errors"
)

// ErrorKind defines snapshot error kinds.
type ErrorKind string

const (
	KindConfig     ErrorKind = "config"
	KindCatalog    ErrorKind = "catalog"
	KindQuery      ErrorKind = "query"
	KindIO         ErrorKind = "io"
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindConflict   ErrorKind = "conflict"
	KindTimeout    ErrorKind = "timeout"
	KindCanceled   ErrorKind = "canceled"
	KindInternal   ErrorKind = "internal"
)

// SnapshotError wraps errors with a kind.
type SnapshotError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *SnapshotError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// NewError creates a new snapshot error.
func NewError(kind ErrorKind, msg string, err error) *SnapshotError {
	return &SnapshotError{Kind: kind, Msg: msg, Err: err}
}

// AsGoError maps an error into a go-errors error.
func AsGoError(err error) *errorslib.Error {
	if err == nil {
		return nil
	}

	var ge *errorslib.Error
	if errors.As(err, &ge) {
		return ge
	}

	kind := KindFromError(err)
	msg := err.Error()

	var snapErr *SnapshotError
	if errors.As(err, &snapErr) && snapErr.Msg != "" {
		msg = snapErr.Msg
	}

	switch kind {
	case KindConfig:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("config")
	case KindValidation:
		return errorslib.New(msg, errorslib.CategoryValidation).WithTextCode("validation")
	case KindCatalog:
		return errorslib.New(msg, errorslib.CategoryExternal).WithTextCode("catalog")
	case KindQuery:
		return errorslib.New(msg, errorslib.CategoryExternal).WithTextCode("query")
	case KindIO:
		return errorslib.New(msg, errorslib.CategoryExternal).WithTextCode("io")
	case KindNotFound:
		return errorslib.New(msg, errorslib.CategoryNotFound).WithTextCode("not_found")
	case KindConflict:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("conflict")
	case KindTimeout:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("timeout")
	case KindCanceled:
		return errorslib.New(msg, errorslib.CategoryOperation).WithTextCode("canceled")
	default:
		return errorslib.New(msg, errorslib.CategoryInternal).WithTextCode("internal")
	}
}

// KindFromError maps an error to its snapshot error kind.
func KindFromError(err error) ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var snapErr *SnapshotError
	if errors.As(err, &snapErr) {
		return snapErr.Kind
	}

	return KindInternal
}
