package insight

import "time"

// DefaultTimezone is the single fixed timezone applied to every
// month-boundary and day-bucket computation.
const DefaultTimezone = "Australia/Sydney"

// Clock supplies the current time. The engine never reads ambient time
// directly so tests can pin evaluation to a fixed instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// FixedClock returns a Clock frozen at t. Intended for tests.
func FixedClock(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
