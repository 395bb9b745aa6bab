// Package sweeper periodically reclaims storage held by completed
// records past their TTL, for store backends with no native expiry
// mechanism, using a robfig/cron scheduler wrapped around a single
// idempotent maintenance function.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/onceguard/internal/audit"
	"github.com/loykin/onceguard/internal/metrics"
	"github.com/loykin/onceguard/internal/store"
)

// Sweeper runs store.Sweepable.Sweep on a cron schedule.
type Sweeper struct {
	mu sync.Mutex

	target    store.Sweepable
	processor string
	sink      audit.Sink
	schedule  string
	logger    *slog.Logger
	scheduler *cron.Cron
	entryID   cron.EntryID
	running   bool

	lastRun   time.Time
	lastSwept int64
	lastErr   error
}

// New builds a Sweeper. schedule must be of the form "@every <duration>"
// (e.g. "@every 5s"); Start rejects anything else. processor labels the
// swept_records_total metric the same way every other counter in
// internal/metrics is labeled. sink may be nil, in which case sweep outcomes are
// only logged.
func New(target store.Sweepable, processor, schedule string, sink audit.Sink, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Sweeper{
		target:    target,
		processor: processor,
		sink:      sink,
		schedule:  schedule,
		logger:    logger,
		scheduler: cron.New(),
	}
}

// parseEvery restricts a schedule literal to "@every <duration>".
// robfig/cron's full 5-field syntax is deliberately not exposed, since
// a sweep is a fixed-interval maintenance pass, not a calendar-driven
// job.
func parseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "@every ") {
		return 0, fmt.Errorf("sweeper: unsupported schedule %q (only \"@every <duration>\" is supported)", expr)
	}
	durStr := strings.TrimSpace(strings.TrimPrefix(expr, "@every "))
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("sweeper: invalid @every duration: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("sweeper: @every duration must be > 0")
	}
	return d, nil
}

// Start validates the schedule, then registers it and begins running.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if _, err := parseEvery(s.schedule); err != nil {
		return err
	}

	entryID, err := s.scheduler.AddFunc(s.schedule, s.runOnce)
	if err != nil {
		return err
	}
	s.entryID = entryID
	s.scheduler.Start()
	s.running = true
	s.logger.Info("sweeper scheduled", "schedule", s.schedule)
	return nil
}

// Stop halts scheduling. In-flight sweeps are allowed to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	stopCtx := s.scheduler.Stop()
	<-stopCtx.Done()
	s.running = false
	s.logger.Info("sweeper stopped")
}

// runOnce is invoked by the cron scheduler on each tick.
func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now().UTC()
	n, err := s.target.Sweep(ctx, now)

	s.mu.Lock()
	s.lastRun = now
	s.lastSwept = n
	s.lastErr = err
	s.mu.Unlock()

	errText := ""
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		errText = err.Error()
	} else if n > 0 {
		s.logger.Info("swept expired records", "count", n)
		metrics.IncSwept(s.processor, n)
	}
	_ = s.sink.Send(ctx, audit.Event{
		Outcome:     audit.OutcomeSwept,
		ProcessorID: s.processor,
		OccurredAt:  now,
		Err:         errText,
	})
}

// LastResult reports the outcome of the most recent sweep, for
// operational status endpoints.
func (s *Sweeper) LastResult() (ranAt time.Time, swept int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastSwept, s.lastErr
}
