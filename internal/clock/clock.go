// Package clock abstracts time for billing logic so interval and expiration
// checks are testable against a controlled clock.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock yields the current time. Implementations must be non-decreasing
// across calls; strict increase between consecutive calls is not assumed.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Module provides the system clock.
var Module = fx.Provide(func() Clock { return SystemClock{} })
