package admin

import (
	"context"

	"github.com/vetiver-inc/vetiver/internal/shared/query"
)

// Repository defines the interface for admin persistence operations
type Repository interface {
	// Create creates a new admin
	Create(ctx context.Context, a *Admin) error

	// GetByID retrieves an admin by ID
	GetByID(ctx context.Context, id uint) (*Admin, error)

	// GetByUsername retrieves an admin by username
	GetByUsername(ctx context.Context, username string) (*Admin, error)

	// Update persists all mutable fields of the admin
	Update(ctx context.Context, a *Admin) error

	// IncrementUsage atomically adds effective traffic to both the rolling
	// and lifetime counters.
	IncrementUsage(ctx context.Context, id uint, amount uint64) error

	// ResetUsage zeroes the rolling counter and returns the previous value.
	// The lifetime counter is untouched.
	ResetUsage(ctx context.Context, id uint) (uint64, error)

	// ListOverDataLimit returns active admins whose rolling usage reached
	// their data limit.
	ListOverDataLimit(ctx context.Context) ([]*Admin, error)

	// ListQuotaDisabledUnderLimit returns admins disabled by quota whose
	// rolling usage has dropped back under their data limit.
	ListQuotaDisabledUnderLimit(ctx context.Context) ([]*Admin, error)

	// Delete removes the admin
	Delete(ctx context.Context, id uint) error

	// List returns admins matching the filter with total count
	List(ctx context.Context, filter AdminFilter) ([]*Admin, int64, error)
}

// AdminFilter represents filters for querying admins
type AdminFilter struct {
	query.PageFilter
	Status   *AdminStatus
	Username string
}
