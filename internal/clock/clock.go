package clock

import "time"

// Clock abstracts wall-clock reads so tests can drive time deterministically.
// Params: none.
// Returns: current time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns the current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}
