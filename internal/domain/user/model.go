package user

import (
	"time"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// User is the slice of the user record the billing engine owns: contact
// details for dunning notifications and the premium entitlement flags that
// suspension and cancellation strip.
type User struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Phone            string     `json:"phone,omitempty"`
	Name             string     `json:"name,omitempty"`
	PremiumActive    bool       `json:"premium_active"`
	PremiumExpiresAt *time.Time `json:"premium_expires_at,omitempty"`
	types.BaseModel
}

// StripPremium clears the premium entitlement flags.
func (u *User) StripPremium(at time.Time) {
	u.PremiumActive = false
	u.PremiumExpiresAt = nil
	u.UpdatedAt = at.UTC()
}

// Validate validates the user
func (u *User) Validate() error {
	if u.ID == "" {
		return ierr.NewError("user id is required").Mark(ierr.ErrValidation)
	}
	return nil
}
