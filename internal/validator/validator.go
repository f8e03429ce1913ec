package validator

import (
	"sync"

	"github.com/go-playground/validator/v10"

	ierr "github.com/reliabill/reliabill/internal/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// GetValidator returns the shared validator instance
func GetValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ValidateRequest validates a request struct against its validate tags.
func ValidateRequest(req interface{}) error {
	if err := GetValidator().Struct(req); err != nil {
		return ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation)
	}
	return nil
}
