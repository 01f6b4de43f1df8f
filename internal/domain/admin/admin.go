// Package admin provides the tenant-administrator aggregate. Admins own
// users, hold traffic and user-count quotas, and are the unit the quota
// cascade operates on.
package admin

import (
	"fmt"
	"sync"
	"time"
)

// AdminStatus represents the status of an admin
type AdminStatus string

const (
	// AdminStatusActive indicates the admin is active
	AdminStatusActive AdminStatus = "active"
	// AdminStatusDisabled indicates the admin is disabled
	AdminStatusDisabled AdminStatus = "disabled"
)

// IsValid checks if the admin status is valid
func (s AdminStatus) IsValid() bool {
	return s == AdminStatusActive || s == AdminStatusDisabled
}

// String returns the string representation of the status
func (s AdminStatus) String() string {
	return string(s)
}

// Admin represents the tenant-administrator aggregate root.
type Admin struct {
	id              uint
	username        string
	status          AdminStatus
	dataLimit       *uint64
	usersLimit      *uint
	usersUsage      uint64
	lifetimeUsage   uint64
	disabledByQuota bool
	createdAt       time.Time
	updatedAt       time.Time
	events          []interface{}
	mu              sync.RWMutex
}

// NewAdmin creates a new admin aggregate
func NewAdmin(username string, dataLimit *uint64, usersLimit *uint) (*Admin, error) {
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if usersLimit != nil && *usersLimit == 0 {
		return nil, fmt.Errorf("users limit cannot be zero when set")
	}

	now := time.Now()
	a := &Admin{
		username:   username,
		status:     AdminStatusActive,
		dataLimit:  dataLimit,
		usersLimit: usersLimit,
		createdAt:  now,
		updatedAt:  now,
		events:     []interface{}{},
	}

	a.recordEvent(NewAdminCreatedEvent(a.id, a.username))

	return a, nil
}

// ReconstructAdmin reconstructs an admin from persistence
func ReconstructAdmin(
	id uint,
	username string,
	status AdminStatus,
	dataLimit *uint64,
	usersLimit *uint,
	usersUsage, lifetimeUsage uint64,
	disabledByQuota bool,
	createdAt, updatedAt time.Time,
) (*Admin, error) {
	if id == 0 {
		return nil, fmt.Errorf("admin ID cannot be zero")
	}
	if username == "" {
		return nil, fmt.Errorf("admin username is required")
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("invalid admin status: %s", status)
	}
	if disabledByQuota && status != AdminStatusDisabled {
		return nil, fmt.Errorf("disabled-by-quota flag requires disabled status")
	}

	return &Admin{
		id:              id,
		username:        username,
		status:          status,
		dataLimit:       dataLimit,
		usersLimit:      usersLimit,
		usersUsage:      usersUsage,
		lifetimeUsage:   lifetimeUsage,
		disabledByQuota: disabledByQuota,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
		events:          []interface{}{},
	}, nil
}

// ID returns the admin ID
func (a *Admin) ID() uint {
	return a.id
}

// Username returns the admin username
func (a *Admin) Username() string {
	return a.username
}

// Status returns the admin status
func (a *Admin) Status() AdminStatus {
	return a.status
}

// IsActive checks if the admin is active
func (a *Admin) IsActive() bool {
	return a.status == AdminStatusActive
}

// DataLimit returns the traffic quota in bytes, nil meaning unlimited
func (a *Admin) DataLimit() *uint64 {
	return a.dataLimit
}

// UsersLimit returns the active-user count quota, nil meaning unlimited
func (a *Admin) UsersLimit() *uint {
	return a.usersLimit
}

// UsersUsage returns the rolling traffic counter across the admin's users
func (a *Admin) UsersUsage() uint64 {
	return a.usersUsage
}

// LifetimeUsage returns the monotonic all-time traffic counter
func (a *Admin) LifetimeUsage() uint64 {
	return a.lifetimeUsage
}

// DisabledByQuota reports whether the current disabled status was caused
// by crossing the data limit rather than by an operator.
func (a *Admin) DisabledByQuota() bool {
	return a.disabledByQuota
}

// CreatedAt returns when the admin was created
func (a *Admin) CreatedAt() time.Time {
	return a.createdAt
}

// UpdatedAt returns when the admin was last updated
func (a *Admin) UpdatedAt() time.Time {
	return a.updatedAt
}

// SetID sets the admin ID (only for persistence layer use)
func (a *Admin) SetID(id uint) error {
	if a.id != 0 {
		return fmt.Errorf("admin ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("admin ID cannot be zero")
	}
	a.id = id
	return nil
}

// Disable switches the admin off by operator action. Disabling an admin
// that quota enforcement already disabled clears the quota flag, so the
// disable is no longer reversed when usage falls back under the limit.
func (a *Admin) Disable(reason string) error {
	if a.status == AdminStatusDisabled {
		if a.disabledByQuota {
			a.disabledByQuota = false
			a.updatedAt = time.Now()
		}
		return nil
	}
	if reason == "" {
		reason = "disabled by operator"
	}
	a.status = AdminStatusDisabled
	a.disabledByQuota = false
	a.updatedAt = time.Now()
	a.recordEvent(NewAdminStatusChangedEvent(a.id, a.username, AdminStatusActive.String(), AdminStatusDisabled.String(), reason, false))
	return nil
}

// DisableForQuota disables the admin because its rolling usage crossed the
// data limit. The flag distinguishes this from an operator disable so only
// quota-caused disables are reversed when usage falls back under the limit.
func (a *Admin) DisableForQuota(reason string) error {
	if a.status == AdminStatusDisabled {
		return nil
	}
	if reason == "" {
		return fmt.Errorf("quota disable reason is required")
	}
	a.status = AdminStatusDisabled
	a.disabledByQuota = true
	a.updatedAt = time.Now()
	a.recordEvent(NewAdminStatusChangedEvent(a.id, a.username, AdminStatusActive.String(), AdminStatusDisabled.String(), reason, true))
	return nil
}

// Enable re-activates the admin by operator action
func (a *Admin) Enable() error {
	if a.status == AdminStatusActive {
		return nil
	}
	a.status = AdminStatusActive
	a.disabledByQuota = false
	a.updatedAt = time.Now()
	a.recordEvent(NewAdminStatusChangedEvent(a.id, a.username, AdminStatusDisabled.String(), AdminStatusActive.String(), "enabled by operator", false))
	return nil
}

// EnableAfterQuota reverses a quota-caused disable. It refuses to touch an
// admin an operator disabled.
func (a *Admin) EnableAfterQuota() error {
	if a.status == AdminStatusActive {
		return nil
	}
	if !a.disabledByQuota {
		return fmt.Errorf("admin was not disabled by quota")
	}
	a.status = AdminStatusActive
	a.disabledByQuota = false
	a.updatedAt = time.Now()
	a.recordEvent(NewAdminStatusChangedEvent(a.id, a.username, AdminStatusDisabled.String(), AdminStatusActive.String(), "data limit cleared", true))
	return nil
}

// RecordUsage adds effective traffic to the rolling and lifetime counters
func (a *Admin) RecordUsage(amount uint64) {
	if amount == 0 {
		return
	}
	a.usersUsage += amount
	a.lifetimeUsage += amount
	a.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counter and returns the previous value.
// The lifetime counter never decreases.
func (a *Admin) ResetUsage() uint64 {
	prev := a.usersUsage
	a.usersUsage = 0
	a.updatedAt = time.Now()
	return prev
}

// IsDataLimitExceeded checks if the rolling usage reached the data limit
func (a *Admin) IsDataLimitExceeded() bool {
	if a.dataLimit == nil || *a.dataLimit == 0 {
		return false
	}
	return a.usersUsage >= *a.dataLimit
}

// IsUsersLimitReached checks if activating one more user would exceed the
// users limit given the current active count.
func (a *Admin) IsUsersLimitReached(activeCount int64) bool {
	if a.usersLimit == nil {
		return false
	}
	return activeCount >= int64(*a.usersLimit)
}

// UpdateDataLimit updates the traffic quota, nil meaning unlimited
func (a *Admin) UpdateDataLimit(limit *uint64) {
	a.dataLimit = limit
	a.updatedAt = time.Now()
}

// UpdateUsersLimit updates the active-user count quota
func (a *Admin) UpdateUsersLimit(limit *uint) error {
	if limit != nil && *limit == 0 {
		return fmt.Errorf("users limit cannot be zero when set")
	}
	a.usersLimit = limit
	a.updatedAt = time.Now()
	return nil
}

// recordEvent records a domain event
func (a *Admin) recordEvent(event interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

// GetEvents returns and clears recorded domain events
func (a *Admin) GetEvents() []interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := a.events
	a.events = []interface{}{}
	return events
}

// ClearEvents clears all recorded events
func (a *Admin) ClearEvents() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = []interface{}{}
}

// Validate performs domain-level validation
func (a *Admin) Validate() error {
	if a.username == "" {
		return fmt.Errorf("admin username is required")
	}
	if !a.status.IsValid() {
		return fmt.Errorf("invalid admin status: %s", a.status)
	}
	if a.disabledByQuota && a.status != AdminStatusDisabled {
		return fmt.Errorf("disabled-by-quota flag requires disabled status")
	}
	return nil
}
