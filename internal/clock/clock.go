// Package clock abstracts time for components that need to be tested
// against a controllable clock.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}
