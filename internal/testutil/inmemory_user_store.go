package testutil

import (
	"context"
	"time"

	"github.com/reliabill/reliabill/internal/domain/user"
	ierr "github.com/reliabill/reliabill/internal/errors"
)

// InMemoryUserStore implements user.Repository
type InMemoryUserStore struct {
	*InMemoryStore[*user.User]
}

// NewInMemoryUserStore creates a new in-memory user store
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		InMemoryStore: NewInMemoryStore[*user.User](),
	}
}

func copyUser(u *user.User) *user.User {
	if u == nil {
		return nil
	}
	copied := *u
	if u.PremiumExpiresAt != nil {
		t := *u.PremiumExpiresAt
		copied.PremiumExpiresAt = &t
	}
	return &copied
}

// Seed inserts a user, overwriting any existing record.
func (s *InMemoryUserStore) Seed(ctx context.Context, u *user.User) {
	if err := s.InMemoryStore.Create(ctx, u.ID, copyUser(u)); err != nil {
		_ = s.InMemoryStore.Update(ctx, u.ID, copyUser(u))
	}
}

func (s *InMemoryUserStore) Get(ctx context.Context, id string) (*user.User, error) {
	u, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("user not found").
			WithReportableDetails(map[string]interface{}{"id": id}).
			Mark(ierr.ErrNotFound)
	}
	return copyUser(u), nil
}

func (s *InMemoryUserStore) Update(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	if err := s.InMemoryStore.Update(ctx, u.ID, copyUser(u)); err != nil {
		return ierr.NewError("user not found").
			WithReportableDetails(map[string]interface{}{"id": u.ID}).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
