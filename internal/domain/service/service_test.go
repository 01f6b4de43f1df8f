package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	s, err := NewService("premium")
	require.NoError(t, err)

	assert.Equal(t, "premium", s.Name())
	assert.Zero(t, s.UsedTraffic())

	_, err = NewService("")
	assert.Error(t, err)
}

func TestServiceUsage(t *testing.T) {
	s, err := NewService("premium")
	require.NoError(t, err)

	s.RecordUsage(300)
	s.RecordUsage(200)
	assert.Equal(t, uint64(500), s.UsedTraffic())

	prev := s.ResetUsage()
	assert.Equal(t, uint64(500), prev)
	assert.Zero(t, s.UsedTraffic())
}

func TestNewAdminServiceLink(t *testing.T) {
	l, err := NewAdminServiceLink(1, 2)
	require.NoError(t, err)

	assert.Equal(t, uint(1), l.AdminID())
	assert.Equal(t, uint(2), l.ServiceID())

	_, err = NewAdminServiceLink(0, 2)
	assert.Error(t, err)

	_, err = NewAdminServiceLink(1, 0)
	assert.Error(t, err)
}

func TestAdminServiceLinkUsage(t *testing.T) {
	l, err := NewAdminServiceLink(1, 2)
	require.NoError(t, err)

	l.RecordUsage(42)
	assert.Equal(t, uint64(42), l.UsedTraffic())

	prev := l.ResetUsage()
	assert.Equal(t, uint64(42), prev)
	assert.Zero(t, l.UsedTraffic())
}
