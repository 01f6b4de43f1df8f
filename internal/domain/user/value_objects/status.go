package value_objects

import (
	"fmt"
	"strings"
)

// Status represents the user status value object
type Status string

// Status constants
const (
	StatusActive   Status = "active"
	StatusOnHold   Status = "on_hold"
	StatusDisabled Status = "disabled"
	StatusLimited  Status = "limited"
)

// ValidStatuses contains all valid status values
var ValidStatuses = map[Status]bool{
	StatusActive:   true,
	StatusOnHold:   true,
	StatusDisabled: true,
	StatusLimited:  true,
}

// StatusTransitions defines allowed status transitions
var StatusTransitions = map[Status][]Status{
	StatusActive: {
		StatusOnHold,
		StatusDisabled,
		StatusLimited,
	},
	StatusOnHold: {
		StatusActive,
		StatusDisabled,
		StatusLimited,
	},
	StatusDisabled: {
		StatusActive,
		StatusOnHold,
	},
	StatusLimited: {
		StatusActive,
		StatusOnHold,
		StatusDisabled,
	},
}

// NewStatus creates a new Status value object with validation
func NewStatus(value string) (*Status, error) {
	status := Status(value)

	if value == "" {
		// New users start on hold until explicitly activated
		status = StatusOnHold
		return &status, nil
	}

	if !ValidStatuses[status] {
		return nil, fmt.Errorf("invalid status: %s", value)
	}

	return &status, nil
}

// ParseStatus parses a string to Status (case-insensitive)
func ParseStatus(value string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	status := Status(normalized)

	if normalized == "" {
		return "", fmt.Errorf("status cannot be empty")
	}

	if !ValidStatuses[status] {
		return "", fmt.Errorf("invalid status: %s", value)
	}

	return status, nil
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// Equals checks if two status objects are equal
func (s Status) Equals(other Status) bool {
	return s == other
}

// IsActive checks if the status is active
func (s Status) IsActive() bool {
	return s == StatusActive
}

// IsOnHold checks if the status is on hold
func (s Status) IsOnHold() bool {
	return s == StatusOnHold
}

// IsDisabled checks if the status is disabled
func (s Status) IsDisabled() bool {
	return s == StatusDisabled
}

// IsLimited checks if the status is limited
func (s Status) IsLimited() bool {
	return s == StatusLimited
}

// Serviceable reports whether a user with this status may hold entries in
// node active-user sets.
func (s Status) Serviceable() bool {
	return s == StatusActive
}

// CascadeEligible reports whether an admin-quota cascade suspends users
// with this status.
func (s Status) CascadeEligible() bool {
	return s == StatusActive || s == StatusOnHold
}

// CanTransitionTo checks if the current status can transition to the target status
func (s Status) CanTransitionTo(target Status) bool {
	allowedTransitions, exists := StatusTransitions[s]
	if !exists {
		return false
	}

	for _, allowed := range allowedTransitions {
		if allowed == target {
			return true
		}
	}

	return false
}

// TransitionTo attempts to transition to a new status
func (s *Status) TransitionTo(target Status) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("cannot transition from %s to %s", s.String(), target.String())
	}

	*s = target
	return nil
}

// GetAllowedTransitions returns all allowed transitions from the current status
func (s Status) GetAllowedTransitions() []Status {
	transitions, exists := StatusTransitions[s]
	if !exists {
		return []Status{}
	}
	return transitions
}

// MarshalJSON implements json.Marshaler interface
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler interface
func (s *Status) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}

	status, err := NewStatus(str)
	if err != nil {
		return err
	}

	*s = *status
	return nil
}
