package value_objects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple", input: "alice", want: "alice"},
		{name: "normalizes case", input: "Alice", want: "alice"},
		{name: "trims whitespace", input: "  bob01  ", want: "bob01"},
		{name: "allows separators", input: "ops-user_1.a", want: "ops-user_1.a"},
		{name: "empty", input: "", wantErr: true},
		{name: "too short", input: "ab", wantErr: true},
		{name: "leading separator", input: "-alice", wantErr: true},
		{name: "consecutive dots", input: "a..lice", wantErr: true},
		{name: "invalid characters", input: "alice!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewUsername(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestUsernameEquals(t *testing.T) {
	a, err := NewUsername("Alice")
	assert.NoError(t, err)
	b, err := NewUsername("alice")
	assert.NoError(t, err)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(nil))
}

func TestUsernameDisplayName(t *testing.T) {
	u, err := NewUsername("alice")
	assert.NoError(t, err)
	assert.Equal(t, "Alice", u.DisplayName())
}
