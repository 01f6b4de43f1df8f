package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdmin(t *testing.T, dataLimit *uint64, usersLimit *uint) *Admin {
	t.Helper()
	a, err := NewAdmin("tenant-a", dataLimit, usersLimit)
	require.NoError(t, err)
	a.ClearEvents()
	return a
}

func TestNewAdmin(t *testing.T) {
	limit := uint64(1 << 30)
	users := uint(10)
	a, err := NewAdmin("tenant-a", &limit, &users)
	require.NoError(t, err)

	assert.Equal(t, "tenant-a", a.Username())
	assert.Equal(t, AdminStatusActive, a.Status())
	assert.True(t, a.IsActive())
	assert.False(t, a.DisabledByQuota())
	assert.Zero(t, a.UsersUsage())
	assert.Zero(t, a.LifetimeUsage())

	events := a.GetEvents()
	require.Len(t, events, 1)
	_, ok := events[0].(AdminCreatedEvent)
	assert.True(t, ok)
}

func TestNewAdminValidation(t *testing.T) {
	_, err := NewAdmin("", nil, nil)
	assert.Error(t, err)

	zero := uint(0)
	_, err = NewAdmin("tenant-a", nil, &zero)
	assert.Error(t, err)
}

func TestAdminRecordUsage(t *testing.T) {
	a := newTestAdmin(t, nil, nil)

	a.RecordUsage(100)
	a.RecordUsage(0)
	a.RecordUsage(400)

	assert.Equal(t, uint64(500), a.UsersUsage())
	assert.Equal(t, uint64(500), a.LifetimeUsage())
}

func TestAdminResetUsageKeepsLifetime(t *testing.T) {
	a := newTestAdmin(t, nil, nil)
	a.RecordUsage(750)

	prev := a.ResetUsage()
	assert.Equal(t, uint64(750), prev)
	assert.Zero(t, a.UsersUsage())
	assert.Equal(t, uint64(750), a.LifetimeUsage())
}

func TestAdminDataLimit(t *testing.T) {
	limit := uint64(1000)
	a := newTestAdmin(t, &limit, nil)

	a.RecordUsage(999)
	assert.False(t, a.IsDataLimitExceeded())

	a.RecordUsage(1)
	assert.True(t, a.IsDataLimitExceeded())

	// nil and zero limits mean unlimited.
	unlimited := newTestAdmin(t, nil, nil)
	unlimited.RecordUsage(1 << 40)
	assert.False(t, unlimited.IsDataLimitExceeded())

	zero := uint64(0)
	zeroLimit := newTestAdmin(t, &zero, nil)
	zeroLimit.RecordUsage(1 << 40)
	assert.False(t, zeroLimit.IsDataLimitExceeded())
}

func TestAdminDisableForQuota(t *testing.T) {
	a := newTestAdmin(t, nil, nil)

	require.NoError(t, a.DisableForQuota("data limit reached: 1000/1000"))
	assert.Equal(t, AdminStatusDisabled, a.Status())
	assert.True(t, a.DisabledByQuota())

	events := a.GetEvents()
	require.Len(t, events, 1)
	evt, ok := events[0].(AdminStatusChangedEvent)
	require.True(t, ok)
	assert.True(t, evt.ByQuota)
	assert.Equal(t, "active", evt.PreviousStatus)
	assert.Equal(t, "disabled", evt.NewStatus)
	assert.NotEmpty(t, evt.Reason)

	// Second call is a no-op, no duplicate event.
	require.NoError(t, a.DisableForQuota("data limit reached"))
	assert.Empty(t, a.GetEvents())
}

func TestAdminDisableForQuotaRequiresReason(t *testing.T) {
	a := newTestAdmin(t, nil, nil)
	assert.Error(t, a.DisableForQuota(""))
}

func TestAdminEnableAfterQuota(t *testing.T) {
	a := newTestAdmin(t, nil, nil)
	require.NoError(t, a.DisableForQuota("data limit reached"))
	a.ClearEvents()

	require.NoError(t, a.EnableAfterQuota())
	assert.True(t, a.IsActive())
	assert.False(t, a.DisabledByQuota())

	events := a.GetEvents()
	require.Len(t, events, 1)
}

func TestAdminEnableAfterQuotaRefusesOperatorDisable(t *testing.T) {
	a := newTestAdmin(t, nil, nil)
	require.NoError(t, a.Disable("fraud investigation"))

	err := a.EnableAfterQuota()
	assert.Error(t, err)
	assert.Equal(t, AdminStatusDisabled, a.Status())
}

func TestAdminOperatorDisableClearsQuotaFlag(t *testing.T) {
	a := newTestAdmin(t, nil, nil)
	require.NoError(t, a.DisableForQuota("data limit reached"))

	// Operator re-disable takes ownership of the disabled state.
	require.NoError(t, a.Disable("manual review"))
	assert.False(t, a.DisabledByQuota())
}

func TestAdminUsersLimit(t *testing.T) {
	users := uint(2)
	a := newTestAdmin(t, nil, &users)

	assert.False(t, a.IsUsersLimitReached(1))
	assert.True(t, a.IsUsersLimitReached(2))
	assert.True(t, a.IsUsersLimitReached(3))

	unlimited := newTestAdmin(t, nil, nil)
	assert.False(t, unlimited.IsUsersLimitReached(1<<20))
}

func TestReconstructAdmin(t *testing.T) {
	now := time.Now()
	a, err := ReconstructAdmin(5, "tenant-b", AdminStatusDisabled, nil, nil, 100, 2000, true, now, now)
	require.NoError(t, err)

	assert.Equal(t, uint(5), a.ID())
	assert.True(t, a.DisabledByQuota())
	assert.Empty(t, a.GetEvents())
}

func TestReconstructAdminValidation(t *testing.T) {
	now := time.Now()

	_, err := ReconstructAdmin(0, "tenant-b", AdminStatusActive, nil, nil, 0, 0, false, now, now)
	assert.Error(t, err)

	// Quota flag on an active admin is inconsistent state.
	_, err = ReconstructAdmin(5, "tenant-b", AdminStatusActive, nil, nil, 0, 0, true, now, now)
	assert.Error(t, err)
}
