package user

import "context"

// Repository defines the interface for user entitlement persistence
type Repository interface {
	// Get retrieves a user by id
	Get(ctx context.Context, id string) (*User, error)

	// Update persists the user
	Update(ctx context.Context, u *User) error
}
