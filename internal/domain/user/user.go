package user

import (
	"fmt"
	"sync"
	"time"

	vo "github.com/vetiver-inc/vetiver/internal/domain/user/value_objects"
)

// User represents the end-user aggregate root. Every user belongs to one
// admin; the optional service link ties the user to a purchased plan.
type User struct {
	id          uint
	username    *vo.Username
	adminID     uint
	serviceID   *uint
	status      vo.Status
	prevStatus  *vo.Status
	usedTraffic uint64
	createdAt   time.Time
	updatedAt   time.Time
	events      []interface{}
	mu          sync.RWMutex
}

// NewUser creates a new user aggregate. New users start on hold and become
// serviceable only through explicit activation.
func NewUser(username string, adminID uint, serviceID *uint) (*User, error) {
	name, err := vo.NewUsername(username)
	if err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, fmt.Errorf("admin ID is required")
	}
	if serviceID != nil && *serviceID == 0 {
		return nil, fmt.Errorf("service ID cannot be zero when set")
	}

	now := time.Now()
	u := &User{
		username:  name,
		adminID:   adminID,
		serviceID: serviceID,
		status:    vo.StatusOnHold,
		createdAt: now,
		updatedAt: now,
		events:    []interface{}{},
	}

	u.recordEvent(NewUserCreatedEvent(u.id, u.username.String(), u.adminID, u.status.String()))

	return u, nil
}

// ReconstructUser reconstructs a user from persistence
func ReconstructUser(
	id uint,
	username string,
	adminID uint,
	serviceID *uint,
	status vo.Status,
	prevStatus *vo.Status,
	usedTraffic uint64,
	createdAt, updatedAt time.Time,
) (*User, error) {
	if id == 0 {
		return nil, fmt.Errorf("user ID cannot be zero")
	}
	name, err := vo.NewUsername(username)
	if err != nil {
		return nil, err
	}
	if adminID == 0 {
		return nil, fmt.Errorf("admin ID is required")
	}
	if !vo.ValidStatuses[status] {
		return nil, fmt.Errorf("invalid user status: %s", status)
	}
	if prevStatus != nil && !vo.ValidStatuses[*prevStatus] {
		return nil, fmt.Errorf("invalid previous status: %s", *prevStatus)
	}

	return &User{
		id:          id,
		username:    name,
		adminID:     adminID,
		serviceID:   serviceID,
		status:      status,
		prevStatus:  prevStatus,
		usedTraffic: usedTraffic,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
		events:      []interface{}{},
	}, nil
}

// ID returns the user ID
func (u *User) ID() uint {
	return u.id
}

// Username returns the username value object
func (u *User) Username() *vo.Username {
	return u.username
}

// AdminID returns the owning admin's ID
func (u *User) AdminID() uint {
	return u.adminID
}

// ServiceID returns the linked service ID, nil when unassigned
func (u *User) ServiceID() *uint {
	return u.serviceID
}

// Status returns the user status
func (u *User) Status() vo.Status {
	return u.status
}

// PrevStatus returns the status recorded before an admin-quota cascade
// suspended the user, nil otherwise.
func (u *User) PrevStatus() *vo.Status {
	return u.prevStatus
}

// UsedTraffic returns the rolling effective traffic counter in bytes
func (u *User) UsedTraffic() uint64 {
	return u.usedTraffic
}

// CreatedAt returns when the user was created
func (u *User) CreatedAt() time.Time {
	return u.createdAt
}

// UpdatedAt returns when the user was last updated
func (u *User) UpdatedAt() time.Time {
	return u.updatedAt
}

// SetID sets the user ID (only for persistence layer use)
func (u *User) SetID(id uint) error {
	if u.id != 0 {
		return fmt.Errorf("user ID is already set")
	}
	if id == 0 {
		return fmt.Errorf("user ID cannot be zero")
	}
	u.id = id
	return nil
}

// setStatus applies a status transition. Unchanged status is a no-op and
// records no event.
func (u *User) setStatus(target vo.Status, reason string) error {
	if u.status == target {
		return nil
	}
	if !u.status.CanTransitionTo(target) {
		return fmt.Errorf("cannot transition user from %s to %s", u.status, target)
	}

	oldStatus := u.status
	u.status = target
	u.updatedAt = time.Now()

	u.recordEvent(NewUserStatusChangedEvent(u.id, u.username.String(), oldStatus.String(), target.String(), reason))

	return nil
}

// Activate transitions the user to active. Callers enforce the owning
// admin's users limit before invoking this.
func (u *User) Activate() error {
	if err := u.setStatus(vo.StatusActive, "activated"); err != nil {
		return err
	}
	u.prevStatus = nil
	return nil
}

// Hold places the user on hold
func (u *User) Hold(reason string) error {
	if reason == "" {
		reason = "placed on hold"
	}
	return u.setStatus(vo.StatusOnHold, reason)
}

// Disable switches the user off by direct administrative action. Any
// cascade memory is discarded so a later quota reversal leaves the user
// disabled.
func (u *User) Disable(reason string) error {
	if reason == "" {
		reason = "disabled by administrator"
	}
	if err := u.setStatus(vo.StatusDisabled, reason); err != nil {
		return err
	}
	u.prevStatus = nil
	return nil
}

// MarkLimited marks the user as over its own traffic allowance
func (u *User) MarkLimited(reason string) error {
	if reason == "" {
		return fmt.Errorf("limited reason is required")
	}
	return u.setStatus(vo.StatusLimited, reason)
}

// SuspendForAdminQuota disables the user because the owning admin crossed
// its data limit, remembering the current status for the reversal.
func (u *User) SuspendForAdminQuota(reason string) error {
	if !u.status.CascadeEligible() {
		return fmt.Errorf("user status %s is not cascade eligible", u.status)
	}
	prev := u.status
	if err := u.setStatus(vo.StatusDisabled, reason); err != nil {
		return err
	}
	u.prevStatus = &prev
	return nil
}

// RestoreFromAdminQuota reverses a cascade suspension, returning the user
// to exactly the status recorded when the cascade ran.
func (u *User) RestoreFromAdminQuota() error {
	if u.prevStatus == nil {
		return fmt.Errorf("user was not suspended by an admin quota cascade")
	}
	target := *u.prevStatus
	if err := u.setStatus(target, "admin quota cleared"); err != nil {
		return err
	}
	u.prevStatus = nil
	return nil
}

// WasSuspendedByAdminQuota reports whether the user is currently held by a
// cascade suspension.
func (u *User) WasSuspendedByAdminQuota() bool {
	return u.status.IsDisabled() && u.prevStatus != nil
}

// AssignService links the user to a service, nil to unlink
func (u *User) AssignService(serviceID *uint) error {
	if serviceID != nil && *serviceID == 0 {
		return fmt.Errorf("service ID cannot be zero when set")
	}
	u.serviceID = serviceID
	u.updatedAt = time.Now()
	return nil
}

// RecordUsage adds effective traffic to the rolling counter
func (u *User) RecordUsage(amount uint64) {
	if amount == 0 {
		return
	}
	u.usedTraffic += amount
	u.updatedAt = time.Now()
}

// ResetUsage zeroes the rolling counter and returns the previous value
func (u *User) ResetUsage() uint64 {
	prev := u.usedTraffic
	u.usedTraffic = 0
	u.updatedAt = time.Now()
	return prev
}

// recordEvent records a domain event
func (u *User) recordEvent(event interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = append(u.events, event)
}

// GetEvents returns and clears recorded domain events
func (u *User) GetEvents() []interface{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	events := u.events
	u.events = []interface{}{}
	return events
}

// ClearEvents clears all recorded events
func (u *User) ClearEvents() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.events = []interface{}{}
}

// Validate performs domain-level validation
func (u *User) Validate() error {
	if u.username == nil {
		return fmt.Errorf("username is required")
	}
	if u.adminID == 0 {
		return fmt.Errorf("admin ID is required")
	}
	if !vo.ValidStatuses[u.status] {
		return fmt.Errorf("invalid user status: %s", u.status)
	}
	return nil
}
