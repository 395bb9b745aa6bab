package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Config is the coordinator's mandatory configuration surface,
// parametrized over the same Key used by its Store.
type Config[K Key] struct {
	ProcessorID       K
	MaxProcessingTime time.Duration
	TTL               time.Duration
	Poll              PollStrategy
}

// Coordinator drives the claim/poll/complete loop over a Store. It holds
// no in-memory record cache between calls — the store row is the only
// shared mutable state, so a Coordinator (and the Store it wraps) may
// safely be shared across goroutines and processes. K is the id and
// processorId type; most callers use StringKey.
type Coordinator[K Key] struct {
	store  Store[K]
	cfg    Config[K]
	clock  Clock
	logger *slog.Logger
}

// New constructs a Coordinator. logger may be nil, in which case
// slog.Default() is used.
func New[K Key](store Store[K], cfg Config[K], logger *slog.Logger) *Coordinator[K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator[K]{store: store, cfg: cfg, clock: Clock{}, logger: logger}
}

// TryStart claims id for processing. It returns NotSeen when the caller
// should perform the work and Seen when the work has already been
// handled. reclaimed is true when the NotSeen claim replaced an
// abandoned in-flight record rather than creating a fresh one. It fails
// with ErrPollTimeout if a peer holds Started beyond maxPollDuration.
func (c *Coordinator[K]) TryStart(ctx context.Context, id K) (sample Sample, reclaimed bool, err error) {
	t0 := c.clock.Now()
	delay := c.cfg.Poll.InitialDelay
	pollNo := 0

	for {
		now := c.clock.Now()
		prior, err := c.store.Claim(ctx, id, c.cfg.ProcessorID, now)
		if err != nil {
			return NotSeen, false, fmt.Errorf("dedup: claim %s/%s: %w", c.cfg.ProcessorID.String(), id.String(), err)
		}

		if prior == nil {
			c.logger.Info("dedup claim acquired", "id", id.String(), "processor_id", c.cfg.ProcessorID.String())
			return NotSeen, false, nil
		}

		status := Classify(*prior, now, c.cfg.MaxProcessingTime)
		switch status {
		case StatusCompleted:
			return Seen, false, nil
		case StatusTimeout:
			c.logger.Warn("dedup reclaiming abandoned record", "id", id.String(), "processor_id", c.cfg.ProcessorID.String(), "started_at", prior.StartedAt)
			return NotSeen, true, nil
		case StatusStarted:
			if c.clock.Now().Sub(t0) >= c.cfg.Poll.MaxPollDuration {
				return NotSeen, false, fmt.Errorf("%w: id=%s processor_id=%s", ErrPollTimeout, id.String(), c.cfg.ProcessorID.String())
			}
			if err := c.sleep(ctx, delay); err != nil {
				return NotSeen, false, err
			}
			delay = c.cfg.Poll.NextDelay(pollNo, delay)
			pollNo++
			continue
		default:
			// unreachable: Classify never returns StatusNotStarted
			return Seen, false, fmt.Errorf("dedup: unexpected status %v", status)
		}
	}
}

func (c *Coordinator[K]) sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete calls Store.Commit once with the current time and the
// configured TTL. Idempotent: calling it multiple times is equivalent to
// calling it once, modulo the stored timestamps reflecting the last call.
func (c *Coordinator[K]) Complete(ctx context.Context, id K) error {
	now := c.clock.Now()
	if err := c.store.Commit(ctx, id, c.cfg.ProcessorID, now, c.cfg.TTL); err != nil {
		return fmt.Errorf("dedup: commit %s/%s: %w", c.cfg.ProcessorID.String(), id.String(), err)
	}
	c.logger.Info("dedup completed", "id", id.String(), "processor_id", c.cfg.ProcessorID.String())
	return nil
}

// Protect calls TryStart; on NotSeen it runs work and, on work's
// success, calls Complete and returns the value wrapped in ok=true. On
// Seen it returns the zero value and ok=false without running work. If
// work fails, Complete is NOT called and the error propagates — the
// record stays Started and becomes reclaimable after maxProcessingTime.
func Protect[K Key, A any](ctx context.Context, c *Coordinator[K], id K, work func(ctx context.Context) (A, error)) (result A, ok bool, err error) {
	sample, _, err := c.TryStart(ctx, id)
	if err != nil {
		return result, false, err
	}
	if sample == Seen {
		return result, false, nil
	}
	result, err = work(ctx)
	if err != nil {
		return result, false, err
	}
	if err := c.Complete(ctx, id); err != nil {
		return result, false, err
	}
	return result, true, nil
}

// ProtectBranch runs exactly one of ifNotSeen or ifSeen, then calls
// Complete in BOTH cases — an explicit design decision distinct from
// Protect: the caller has stated both branches are safe to mark
// completed. If the chosen branch fails, Complete is skipped and the
// error propagates.
func ProtectBranch[K Key, A any](ctx context.Context, c *Coordinator[K], id K, ifNotSeen, ifSeen func(ctx context.Context) (A, error)) (A, error) {
	sample, _, err := c.TryStart(ctx, id)
	if err != nil {
		var zero A
		return zero, err
	}
	branch := ifSeen
	if sample == NotSeen {
		branch = ifNotSeen
	}
	result, err := branch(ctx)
	if err != nil {
		var zero A
		return zero, err
	}
	if err := c.Complete(ctx, id); err != nil {
		var zero A
		return zero, err
	}
	return result, nil
}

// Peeker is an optional capability a Store may implement for a
// non-mutating read of a record's current status, used by operational
// tooling (the HTTP /status endpoint, the CLI status command) that must
// not perturb the claim/timeout state machine the way Claim would.
type Peeker[K Key] interface {
	Peek(ctx context.Context, id, processorID K) (*Process, error)
}

// Status returns the classifier's view of id's current record without
// mutating it, for operational debugging. It requires the Coordinator's
// Store to also implement Peeker; most SQL-backed stores do.
func (c *Coordinator[K]) Status(ctx context.Context, id K) (Status, error) {
	peeker, ok := c.store.(Peeker[K])
	if !ok {
		return StatusNotStarted, fmt.Errorf("dedup: store does not support non-mutating status reads")
	}
	p, err := peeker.Peek(ctx, id, c.cfg.ProcessorID)
	if err != nil {
		return StatusNotStarted, fmt.Errorf("dedup: peek %s/%s: %w", c.cfg.ProcessorID.String(), id.String(), err)
	}
	if p == nil {
		return StatusNotStarted, nil
	}
	return Classify(*p, c.clock.Now(), c.cfg.MaxProcessingTime), nil
}
