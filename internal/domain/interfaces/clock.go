package interfaces

import "time"

// TimeProvider abstracts the wall clock so session expiry can be tested
// deterministically. Implementations must be safe for concurrent use.
type TimeProvider interface {
	Now() time.Time
}

// SystemTime reads the real clock.
type SystemTime struct{}

// Now returns time.Now().
func (SystemTime) Now() time.Time { return time.Now() }
