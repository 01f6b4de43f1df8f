package value_objects

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// usernameRegex ensures the username contains only valid characters
var usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-\.]*$`)

// Username represents a user's login name value object. Stored lowercase;
// comparison is case-insensitive.
type Username struct {
	value string
}

// NewUsername creates a new Username value object with validation
func NewUsername(value string) (*Username, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))

	if normalized == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}

	if len(normalized) < 3 {
		return nil, fmt.Errorf("username must be at least 3 characters long")
	}

	if len(normalized) > 64 {
		return nil, fmt.Errorf("username cannot exceed 64 characters")
	}

	if !usernameRegex.MatchString(normalized) {
		return nil, fmt.Errorf("username contains invalid characters: %s", value)
	}

	if strings.Contains(normalized, "..") {
		return nil, fmt.Errorf("username cannot contain consecutive dots")
	}

	return &Username{value: normalized}, nil
}

// String returns the string representation of the username
func (u *Username) String() string {
	return u.value
}

// Equals checks if two username objects are equal
func (u *Username) Equals(other *Username) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.value == other.value
}

// DisplayName returns the username with the first letter capitalized,
// for notification text.
func (u *Username) DisplayName() string {
	caser := cases.Title(language.English)
	return caser.String(u.value)
}

// MarshalJSON implements json.Marshaler interface
func (u Username) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.value + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler interface
func (u *Username) UnmarshalJSON(data []byte) error {
	str := string(data)
	if len(str) >= 2 && str[0] == '"' && str[len(str)-1] == '"' {
		str = str[1 : len(str)-1]
	}

	username, err := NewUsername(str)
	if err != nil {
		return err
	}

	*u = *username
	return nil
}
