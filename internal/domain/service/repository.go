package service

import "context"

// Repository defines the interface for service persistence operations
type Repository interface {
	// Create creates a new service
	Create(ctx context.Context, s *Service) error

	// GetByID retrieves a service by ID
	GetByID(ctx context.Context, id uint) (*Service, error)

	// GetAll returns every service
	GetAll(ctx context.Context) ([]*Service, error)

	// Update persists all mutable fields of the service
	Update(ctx context.Context, s *Service) error

	// IncrementUsage atomically adds effective traffic to the rolling counter
	IncrementUsage(ctx context.Context, id uint, amount uint64) error

	// ResetUsage zeroes the rolling counter and returns the previous value
	ResetUsage(ctx context.Context, id uint) (uint64, error)

	// Delete removes the service
	Delete(ctx context.Context, id uint) error
}

// LinkRepository defines the interface for admin-service link persistence.
type LinkRepository interface {
	// IncrementUsage atomically adds effective traffic to the link for
	// (adminID, serviceID), creating the row when it does not exist yet.
	IncrementUsage(ctx context.Context, adminID, serviceID uint, amount uint64) error

	// GetByAdminAndService fetches a single link row
	GetByAdminAndService(ctx context.Context, adminID, serviceID uint) (*AdminServiceLink, error)

	// ListByAdmin returns all links for an admin
	ListByAdmin(ctx context.Context, adminID uint) ([]*AdminServiceLink, error)

	// ResetUsage zeroes the link's rolling counter and returns the previous value
	ResetUsage(ctx context.Context, adminID, serviceID uint) (uint64, error)
}
