package identity

import (
	"context"

	id "realhub/pkg/domain"
)

// Store persists user aggregates. Implementations must support optimistic
// conditional writes: Update fails with sentinel.ErrStaleState when the stored
// version differs from the version the caller read.
type Store interface {
	CreateIfEmailAvailable(ctx context.Context, user *User) error
	FindByID(ctx context.Context, userID id.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	List(ctx context.Context) ([]*User, error)
}
