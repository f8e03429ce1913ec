package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// ErrorBuilder builds classified errors fluently:
//
//	ierr.NewError("billing account not found").
//		WithHint("Billing account does not exist").
//		WithReportableDetails(map[string]interface{}{"id": id}).
//		Mark(ierr.ErrNotFound)
type ErrorBuilder struct {
	err     error
	hint    string
	details map[string]interface{}
}

// NewError starts a builder from a fresh message.
func NewError(message string) *ErrorBuilder {
	return &ErrorBuilder{err: errors.New(message)}
}

// NewErrorf starts a builder from a formatted message.
func NewErrorf(format string, args ...interface{}) *ErrorBuilder {
	return &ErrorBuilder{err: errors.Newf(format, args...)}
}

// WithError starts a builder wrapping an existing error.
func WithError(err error) *ErrorBuilder {
	if err == nil {
		err = errors.New("unknown error")
	}
	return &ErrorBuilder{err: err}
}

// WithHint attaches a user-facing hint. Hints are safe to surface to API
// callers; the underlying error message is not.
func (b *ErrorBuilder) WithHint(hint string) *ErrorBuilder {
	b.hint = hint
	return b
}

// WithHintf attaches a formatted user-facing hint.
func (b *ErrorBuilder) WithHintf(format string, args ...interface{}) *ErrorBuilder {
	b.hint = fmt.Sprintf(format, args...)
	return b
}

// WithReportableDetails attaches structured details included in API error
// responses and logs.
func (b *ErrorBuilder) WithReportableDetails(details map[string]interface{}) *ErrorBuilder {
	b.details = details
	return b
}

// Mark finalizes the builder, marking the error with the given sentinel so
// errors.Is checks and the HTTP status mapping work on the result.
func (b *ErrorBuilder) Mark(sentinel error) error {
	err := b.err
	if b.hint != "" {
		err = errors.WithHint(err, b.hint)
	}
	if len(b.details) > 0 {
		err = errors.WithDetailf(err, "details: %v", b.details)
	}
	return errors.Mark(err, sentinel)
}

// Hint extracts the first hint attached to err, if any.
func Hint(err error) string {
	hints := errors.GetAllHints(err)
	if len(hints) == 0 {
		return ""
	}
	return hints[0]
}

// HTTPStatus maps a classified error to the HTTP status the API layer should
// return. Unclassified errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case IsInvalidSignature(err):
		return http.StatusUnauthorized
	case IsPermissionDenied(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	case IsAlreadyExists(err), IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
