package user

import (
	"context"

	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
	"github.com/vetiver-inc/vetiver/internal/shared/query"
)

// Repository defines the interface for user persistence operations
type Repository interface {
	// Create creates a new user
	Create(ctx context.Context, u *User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uint) (*User, error)

	// GetByUsername retrieves a user by normalized username
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByUsernames resolves a set of usernames in one query. Unknown
	// usernames are simply absent from the result.
	GetByUsernames(ctx context.Context, usernames []string) ([]*User, error)

	// Update persists all mutable fields of the user
	Update(ctx context.Context, u *User) error

	// ListByAdminAndStatuses returns the admin's users currently in one of
	// the given statuses.
	ListByAdminAndStatuses(ctx context.Context, adminID uint, statuses []vo.Status) ([]*User, error)

	// ListSuspendedByAdmin returns the admin's users holding a recorded
	// previous status, i.e. those suspended by a quota cascade.
	ListSuspendedByAdmin(ctx context.Context, adminID uint) ([]*User, error)

	// CountActiveByAdmin counts the admin's active users. Shared by the
	// users-limit pre-check and reporting.
	CountActiveByAdmin(ctx context.Context, adminID uint) (int64, error)

	// IncrementUsage atomically adds effective traffic to the rolling counter
	IncrementUsage(ctx context.Context, id uint, amount uint64) error

	// ResetUsage zeroes the rolling counter and returns the previous value
	ResetUsage(ctx context.Context, id uint) (uint64, error)

	// Delete removes the user
	Delete(ctx context.Context, id uint) error

	// List returns users matching the filter with total count
	List(ctx context.Context, filter UserFilter) ([]*User, int64, error)
}

// UserFilter represents filters for querying users
type UserFilter struct {
	query.PageFilter
	AdminID   *uint
	ServiceID *uint
	Status    *vo.Status
	Username  string
}
