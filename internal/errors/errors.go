package errors

import (
	"github.com/cockroachdb/errors"
)

// Sentinel errors used to classify failures across the engine. Callers mark
// errors with one of these via the builder and branch with the Is* helpers;
// the HTTP layer maps them to status codes.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrConflict           = errors.New("conditional write conflict")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrProcessorDeclined  = errors.New("payment declined by processor")
	ErrProcessorTransient = errors.New("transient processor error")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDatabase           = errors.New("database error")
	ErrInternal           = errors.New("internal error")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsConflict reports whether err is a lost conditional write. Per the engine's
// concurrency model these are treated as retry-safe no-ops, never escalated.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidSignature(err error) bool {
	return errors.Is(err, ErrInvalidSignature)
}

func IsProcessorDeclined(err error) bool {
	return errors.Is(err, ErrProcessorDeclined)
}

func IsProcessorTransient(err error) bool {
	return errors.Is(err, ErrProcessorTransient)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}
