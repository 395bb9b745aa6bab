package dedup

import "time"

// PollStrategy produces the delay sequence and overall deadline the
// coordinator uses while waiting on an in-flight peer. It is a pure
// value: NextDelay must be a deterministic function of pollNo and the
// previous delay.
type PollStrategy struct {
	InitialDelay    time.Duration
	MaxPollDuration time.Duration
	NextDelay       func(pollNo int, prevDelay time.Duration) time.Duration
}

// ExponentialBackoff returns the built-in policy: delay grows by
// multiplier each poll, capped at maxDelay.
func ExponentialBackoff(initialDelay, maxPollDuration, maxDelay time.Duration, multiplier float64) PollStrategy {
	if multiplier <= 1 {
		multiplier = 1.5
	}
	return PollStrategy{
		InitialDelay:    initialDelay,
		MaxPollDuration: maxPollDuration,
		NextDelay: func(_ int, prevDelay time.Duration) time.Duration {
			next := time.Duration(float64(prevDelay) * multiplier)
			if next > maxDelay {
				return maxDelay
			}
			return next
		},
	}
}

// DefaultPollStrategy is a reasonable default: 50ms initial delay,
// growing 1.5x per poll up to 2s, waiting at most 30s in total.
func DefaultPollStrategy() PollStrategy {
	return ExponentialBackoff(50*time.Millisecond, 30*time.Second, 2*time.Second, 1.5)
}
