// Package service provides the purchasable-plan aggregate and its per-admin
// usage links. Services are usage entities here: the ledger settles service
// traffic onto both the service row and the owning admin's link row.
package service

import (
	"fmt"
	"time"
)

// Service represents a plan offered to users.
type Service struct {
	id          uint
	name        string
	usedTraffic uint64
	createdAt   time.Time
	updatedAt   time.Time
}

// NewService creates a new service
func NewService(name string) (*Service, error) {
	if name == "" {
		return nil, fmt.Errorf("service name is required")
	}

	now := time.Now()
	return &Service{
		name:      name,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructService reconstructs a service from persistence
func ReconstructService(id uint, name string, usedTraffic uint64, createdAt, updatedAt time.Time) (*Service, error) {
	if id == 0 {
		return nil, fmt.Errorf("service ID cannot be zero")
	}
	if name == "" {
		return nil, fmt.Errorf("service name is required")
	}

	return &Service{
		id:          id,
		name:        name,
		usedTraffic: usedTraffic,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}, nil
}

// ID returns the service ID
func (s *Service) ID() uint {
	return s.id
}

// Name returns the service name
func (s *Service) Name() string {
	return s.name
}

// UsedTraffic returns the rolling traffic counter in bytes
func (s *Service) UsedTraffic() uint64 {
	return s.usedTraffic
}

// CreatedAt returns when the service was created
func (s *Service) CreatedAt() time.Time {
	return s.createdAt
}

// UpdatedAt returns when the service was last updated
func (s *Service) UpdatedAt() time.Time {
	return s.updatedAt
}

// SetID sets the service ID (only for persistence layer use)
func (s *Service) SetID(id uint) error {
	if s.id != 0 {
		return fmt.Errorf("service ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("service ID cannot be zero")
	}
	s.id = id
	return nil
}

// Rename updates the service name
func (s *Service) Rename(name string) error {
	if name == "" {
		return fmt.Errorf("service name is required")
	}
	s.name = name
	s.updatedAt = time.Now()
	return nil
}

// RecordUsage adds effective traffic to the rolling counter
func (s *Service) RecordUsage(amount uint64) {
	if amount == 0 {
		return
	}
	s.usedTraffic += amount
	s.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counter and returns the previous value
func (s *Service) ResetUsage() uint64 {
	prev := s.usedTraffic
	s.usedTraffic = 0
	s.updatedAt = time.Now()
	return prev
}
