package service

import (
	"fmt"
	"time"
)

// AdminServiceLink tracks one admin's share of a service's traffic. One row
// per (admin, service) pair.
type AdminServiceLink struct {
	id          uint
	adminID     uint
	serviceID   uint
	usedTraffic uint64
	createdAt   time.Time
	updatedAt   time.Time
}

// NewAdminServiceLink creates a new link between an admin and a service
func NewAdminServiceLink(adminID, serviceID uint) (*AdminServiceLink, error) {
	if adminID == 0 {
		return nil, fmt.Errorf("admin ID is required")
	}
	if serviceID == 0 {
		return nil, fmt.Errorf("service ID is required")
	}

	now := time.Now()
	return &AdminServiceLink{
		adminID:   adminID,
		serviceID: serviceID,
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ReconstructAdminServiceLink reconstructs a link from persistence
func ReconstructAdminServiceLink(id, adminID, serviceID uint, usedTraffic uint64, createdAt, updatedAt time.Time) (*AdminServiceLink, error) {
	if id == 0 {
		return nil, fmt.Errorf("link ID cannot be zero")
	}
	if adminID == 0 {
		return nil, fmt.Errorf("admin ID is required")
	}
	if serviceID == 0 {
		return nil, fmt.Errorf("service ID is required")
	}

	return &AdminServiceLink{
		id:          id,
		adminID:     adminID,
		serviceID:   serviceID,
		usedTraffic: usedTraffic,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}, nil
}

// ID returns the link ID
func (l *AdminServiceLink) ID() uint {
	return l.id
}

// AdminID returns the admin ID
func (l *AdminServiceLink) AdminID() uint {
	return l.adminID
}

// ServiceID returns the service ID
func (l *AdminServiceLink) ServiceID() uint {
	return l.serviceID
}

// UsedTraffic returns the admin's rolling share of the service traffic
func (l *AdminServiceLink) UsedTraffic() uint64 {
	return l.usedTraffic
}

// CreatedAt returns when the link was created
func (l *AdminServiceLink) CreatedAt() time.Time {
	return l.createdAt
}

// UpdatedAt returns when the link was last updated
func (l *AdminServiceLink) UpdatedAt() time.Time {
	return l.updatedAt
}

// SetID sets the link ID (only for persistence layer use)
func (l *AdminServiceLink) SetID(id uint) error {
	if l.id != 0 {
		return fmt.Errorf("link ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("link ID cannot be zero")
	}
	l.id = id
	return nil
}

// RecordUsage adds effective traffic to the rolling counter
func (l *AdminServiceLink) RecordUsage(amount uint64) {
	if amount == 0 {
		return
	}
	l.usedTraffic += amount
	l.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counter and returns the previous value
func (l *AdminServiceLink) ResetUsage() uint64 {
	prev := l.usedTraffic
	l.usedTraffic = 0
	l.updatedAt = time.Now()
	return prev
}
