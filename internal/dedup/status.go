package dedup

import "time"

// Classify computes a record's derived status given a fetched Process
// and "now". Rules are evaluated in order:
// Completed takes precedence over Timeout, which takes precedence over
// Started. NotStarted is not produced here — it is the coordinator's
// interpretation of "no prior record" (see coordinator.go).
func Classify(p Process, now time.Time, maxProcessingTime time.Duration) Status {
	if p.CompletedAt != nil {
		return StatusCompleted
	}
	if p.StartedAt.Add(maxProcessingTime).Before(now) {
		return StatusTimeout
	}
	return StatusStarted
}
