package dedup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal in-memory Store used to exercise the coordinator
// without a real backend. Claim/Commit are guarded by a single mutex so
// the "return old value atomically" precondition a real backend must
// hold applies here too.
type memStore struct {
	mu   sync.Mutex
	rows map[string]Process
}

func newMemStore() *memStore { return &memStore{rows: make(map[string]Process)} }

func key(id, processorID StringKey) string { return processorID.String() + "/" + id.String() }

func (s *memStore) Claim(_ context.Context, id, processorID StringKey, now time.Time) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(id, processorID)
	if prior, ok := s.rows[k]; ok {
		cp := prior
		return &cp, nil
	}
	s.rows[k] = Process{ID: id.String(), ProcessorID: processorID.String(), StartedAt: now}
	return nil, nil
}

func (s *memStore) Commit(_ context.Context, id, processorID StringKey, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(id, processorID)
	row, ok := s.rows[k]
	if !ok {
		row = Process{ID: id.String(), ProcessorID: processorID.String(), StartedAt: now}
	}
	completed := now
	expires := now.Add(ttl)
	row.CompletedAt = &completed
	row.ExpiresOn = &expires
	s.rows[k] = row
	return nil
}

func (s *memStore) Peek(_ context.Context, id, processorID StringKey) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[key(id, processorID)]; ok {
		cp := row
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) EnsureSchema(context.Context) error { return nil }
func (s *memStore) Close() error                       { return nil }

// fakeClockFrom returns a NowFunc that starts at base and advances in
// step with real wall-clock time, so code that polls in a real loop
// (time.NewTimer-based sleeps) still observes a monotonically advancing
// simulated clock instead of a frozen instant.
func fakeClockFrom(base time.Time) func() time.Time {
	anchor := time.Now()
	return func() time.Time { return base.Add(time.Since(anchor)) }
}

func testCoordinator(store Store[StringKey], maxProcessing time.Duration) *Coordinator[StringKey] {
	return New[StringKey](store, Config[StringKey]{
		ProcessorID:       "orders",
		MaxProcessingTime: maxProcessing,
		TTL:               time.Hour,
		Poll:              ExponentialBackoff(2*time.Millisecond, 200*time.Millisecond, 20*time.Millisecond, 1.5),
	}, nil)
}

// Scenario 1: first-then-second, same id.
func TestProtect_SameID_SeenOnSecondCall(t *testing.T) {
	ctx := context.Background()
	c := testCoordinator(newMemStore(), time.Hour)

	first, ok, err := Protect(ctx, c, StringKey("k"), func(context.Context) (string, error) { return "a", nil })
	if err != nil || !ok || first != "a" {
		t.Fatalf("first call: got %q ok=%v err=%v", first, ok, err)
	}

	second, ok, err := Protect(ctx, c, StringKey("k"), func(context.Context) (string, error) { return "b", nil })
	if err != nil {
		t.Fatalf("second call error: %v", err)
	}
	if ok {
		t.Fatalf("second call should be Seen (ok=false), got value %q", second)
	}
}

// Scenario 2: two different ids both run.
func TestProtect_DifferentIDs_BothRun(t *testing.T) {
	ctx := context.Background()
	c := testCoordinator(newMemStore(), time.Hour)

	v1, ok1, err1 := Protect(ctx, c, StringKey("k1"), func(context.Context) (string, error) { return "a", nil })
	v2, ok2, err2 := Protect(ctx, c, StringKey("k2"), func(context.Context) (string, error) { return "a", nil })

	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if !ok1 || !ok2 || v1 != "a" || v2 != "a" {
		t.Fatalf("expected both notSeen with value 'a', got (%q,%v) (%q,%v)", v1, ok1, v2, ok2)
	}
}

// Scenario 3: concurrent pair — one wins, the other polls then sees Seen.
func TestTryStart_ConcurrentPair(t *testing.T) {
	ctx := context.Background()
	c := testCoordinator(newMemStore(), time.Hour)

	winnerDone := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]Sample, 2)
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		s, _, err := c.TryStart(ctx, "k")
		results[0] = s
		errs[0] = err
		if s == NotSeen {
			// simulate work then complete, unblocking the poller.
			time.Sleep(5 * time.Millisecond)
			_ = c.Complete(ctx, "k")
			close(winnerDone)
		}
	}()
	go func() {
		defer wg.Done()
		s, _, err := c.TryStart(ctx, "k")
		results[1] = s
		errs[1] = err
		if s == NotSeen {
			// either caller may win the claim; the winner completes.
			time.Sleep(5 * time.Millisecond)
			_ = c.Complete(ctx, "k")
		}
	}()
	wg.Wait()

	notSeenCount, seenCount := 0, 0
	for i, s := range results {
		if errs[i] != nil {
			t.Fatalf("unexpected error from caller %d: %v", i, errs[i])
		}
		if s == NotSeen {
			notSeenCount++
		} else {
			seenCount++
		}
	}
	if notSeenCount != 1 || seenCount != 1 {
		t.Fatalf("expected exactly one NotSeen and one Seen, got notSeen=%d seen=%d", notSeenCount, seenCount)
	}
}

// Scenario 4 / P2: timeout reclaim after abandonment.
func TestTryStart_ReclaimAfterTimeout(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	maxProcessing := 20 * time.Millisecond
	c := testCoordinator(store, maxProcessing)

	orig := NowFunc
	defer func() { NowFunc = orig }()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return base }

	first, reclaimed, err := c.TryStart(ctx, "k")
	if err != nil || first != NotSeen || reclaimed {
		t.Fatalf("first claim should be a fresh NotSeen, got %v reclaimed=%v err=%v", first, reclaimed, err)
	}
	// Caller never completes. Advance the clock past maxProcessingTime.
	NowFunc = fakeClockFrom(base.Add(maxProcessing + time.Millisecond))

	second, reclaimed, err := c.TryStart(ctx, "k")
	if err != nil || second != NotSeen {
		t.Fatalf("reclaim after timeout should be NotSeen, got %v err=%v", second, err)
	}
	if !reclaimed {
		t.Fatalf("expected reclaimed=true after timeout, got false")
	}
}

// P5 / scenario 5: poll exhaustion.
func TestTryStart_PollExhaustion(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := New[StringKey](store, Config[StringKey]{
		ProcessorID:       "orders",
		MaxProcessingTime: 10 * time.Second,
		TTL:               time.Hour,
		Poll:              ExponentialBackoff(2*time.Millisecond, 20*time.Millisecond, 5*time.Millisecond, 1.5),
	}, nil)

	if _, _, err := c.TryStart(ctx, "k"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}

	start := time.Now()
	_, _, err := c.TryStart(ctx, "k")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if elapsed > 200*time.Millisecond {
		t.Fatalf("poll exhaustion took too long: %v", elapsed)
	}
}

// Scenario 6: failure inside Protect's work propagates and keeps the
// record Started, so a new caller polls until poll timeout; once
// maxProcessingTime has passed, the record is reclaimed and work runs
// exactly once.
func TestProtect_WorkFailureKeepsRecordStarted(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	maxProcessing := 20 * time.Millisecond
	c := testCoordinator(store, maxProcessing)

	orig := NowFunc
	defer func() { NowFunc = orig }()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	NowFunc = fakeClockFrom(base)

	boom := errors.New("boom")
	_, ok, err := Protect(ctx, c, StringKey("k"), func(context.Context) (string, error) { return "", boom })
	if ok || !errors.Is(err, boom) {
		t.Fatalf("expected failure to propagate, got ok=%v err=%v", ok, err)
	}

	// Immediately after: still within maxProcessingTime, so a new
	// TryStart must poll and eventually time out (Started, not
	// reclaimable yet) rather than return NotSeen.
	quick := New[StringKey](store, Config[StringKey]{
		ProcessorID:       "orders",
		MaxProcessingTime: maxProcessing,
		TTL:               time.Hour,
		Poll:              ExponentialBackoff(time.Millisecond, 5*time.Millisecond, 2*time.Millisecond, 1.5),
	}, nil)
	if _, _, err := quick.TryStart(ctx, "k"); !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected poll timeout while record is still Started, got %v", err)
	}

	// After maxProcessingTime elapses, the record becomes reclaimable.
	NowFunc = func() time.Time { return base.Add(maxProcessing + time.Millisecond) }
	callCount := 0
	_, ok, err = Protect(ctx, c, StringKey("k"), func(context.Context) (string, error) {
		callCount++
		return "a", nil
	})
	if err != nil || !ok || callCount != 1 {
		t.Fatalf("expected reclaim to run work exactly once, got ok=%v err=%v callCount=%d", ok, err, callCount)
	}
}

// P3: Complete is idempotent.
func TestComplete_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := testCoordinator(store, time.Hour)

	if _, _, err := c.TryStart(ctx, "k"); err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	if err := c.Complete(ctx, "k"); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if err := c.Complete(ctx, "k"); err != nil {
		t.Fatalf("second Complete: %v", err)
	}

	sample, _, err := c.TryStart(ctx, "k")
	if err != nil || sample != Seen {
		t.Fatalf("expected Seen after completion, got %v err=%v", sample, err)
	}
}

// ProtectBranch commits on both branches, unlike Protect.
func TestProtectBranch_CommitsOnBothBranches(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := testCoordinator(store, time.Hour)

	v, err := ProtectBranch(ctx, c, StringKey("k"),
		func(context.Context) (string, error) { return "a", nil },
		func(context.Context) (string, error) { return "b", nil },
	)
	if err != nil || v != "a" {
		t.Fatalf("ifNotSeen branch: got %q err=%v", v, err)
	}

	// The dedup slot is now consumed even though we came in as the
	// *losing* side of a future contest, because ifSeen also commits.
	v2, err := ProtectBranch(ctx, c, StringKey("k2"),
		func(context.Context) (string, error) { return "not-seen-branch", nil },
		func(context.Context) (string, error) { return "seen-branch", nil },
	)
	if err != nil || v2 != "not-seen-branch" {
		t.Fatalf("first call on k2 should take ifNotSeen: got %q err=%v", v2, err)
	}
	v3, err := ProtectBranch(ctx, c, StringKey("k2"),
		func(context.Context) (string, error) { return "not-seen-branch", nil },
		func(context.Context) (string, error) { return "seen-branch", nil },
	)
	if err != nil || v3 != "seen-branch" {
		t.Fatalf("second call on k2 should take ifSeen and still commit: got %q err=%v", v3, err)
	}
}

func TestCoordinator_Status(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := testCoordinator(store, time.Hour)

	st, err := c.Status(ctx, "k")
	if err != nil || st != StatusNotStarted {
		t.Fatalf("expected StatusNotStarted, got %v err=%v", st, err)
	}

	if _, _, err := c.TryStart(ctx, "k"); err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	st, err = c.Status(ctx, "k")
	if err != nil || st != StatusStarted {
		t.Fatalf("expected StatusStarted, got %v err=%v", st, err)
	}

	if err := c.Complete(ctx, "k"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	st, err = c.Status(ctx, "k")
	if err != nil || st != StatusCompleted {
		t.Fatalf("expected StatusCompleted, got %v err=%v", st, err)
	}
}
