package dedup

import "time"

// NowFunc returns the current time. Tests override it for determinism;
// production code leaves it at time.Now.
var NowFunc = time.Now

// Clock is a millisecond-resolution wall-clock source. No monotonic
// guarantee is required or provided; timeout arithmetic absorbs modest
// skew via maxProcessingTime.
type Clock struct{}

// Now returns the current instant truncated to millisecond precision.
func (Clock) Now() time.Time {
	return NowFunc().UTC().Truncate(time.Millisecond)
}
