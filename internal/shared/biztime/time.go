// Package biztime fixes the business timezone used for schedule
// boundaries. Storage and transport stay in UTC; the business zone only
// decides where cron days start.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no timezone is configured.
const DefaultTimezone = "Asia/Shanghai"

var (
	bizLocation     *time.Location
	bizLocationOnce sync.Once
	initErr         error
)

// Init loads the business timezone. Call once at startup; an empty tz
// selects DefaultTimezone.
func Init(tz string) error {
	bizLocationOnce.Do(func() {
		if tz == "" {
			tz = DefaultTimezone
		}
		bizLocation, initErr = time.LoadLocation(tz)
	})
	return initErr
}

// Location returns the business timezone, initializing with the default
// if Init was never called.
func Location() *time.Location {
	if bizLocation == nil {
		if err := Init(""); err != nil {
			panic(fmt.Sprintf("biztime: failed to load default timezone: %v", err))
		}
	}
	return bizLocation
}

// NowUTC returns the current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// TruncateToHourUTC returns the current time truncated to the hour in
// UTC. Usage buckets key on this value.
func TruncateToHourUTC() time.Time {
	return NowUTC().Truncate(time.Hour)
}
