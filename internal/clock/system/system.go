// Package system provides the wall-clock implementation of clock.Clock.
package system

import "time"

// Clock returns the real system time.
type Clock struct{}

// New returns a system clock.
func New() *Clock {
	return &Clock{}
}

// Now returns time.Now in UTC.
func (c *Clock) Now() time.Time {
	return time.Now().UTC()
}
