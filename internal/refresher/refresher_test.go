package refresher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"solwatch/internal/cache"
	"solwatch/internal/chain"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func snap(slot uint64) *chain.Snapshot {
	return &chain.Snapshot{
		FetchedAt:  time.Now().UTC(),
		SlotHeight: slot,
		Balances:   map[string]uint64{"wallet": 1},
	}
}

// scriptedFetcher replays a per-call function and counts invocations.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, call int) (*chain.Snapshot, error)
}

func (f *scriptedFetcher) FetchSnapshot(ctx context.Context) (*chain.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(ctx, call)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastOpts() Options {
	return Options{
		Interval:       time.Hour, // ticks not wanted in unit tests
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
	}
}

func TestSequentialRefreshesYieldLatestSnapshot(t *testing.T) {
	s1 := snap(1)
	s2 := snap(2)
	fetcher := &scriptedFetcher{fn: func(_ context.Context, call int) (*chain.Snapshot, error) {
		if call == 1 {
			return s1, nil
		}
		return s2, nil
	}}

	c := cache.New()
	r := New(fastOpts(), fetcher, c, Hooks{}, noopLogger())

	r.Refresh(context.Background())
	if c.Read() != s1 {
		t.Fatal("first refresh should cache s1")
	}
	r.Refresh(context.Background())
	if c.Read() != s2 {
		t.Fatal("second refresh should cache s2")
	}

	state := r.State()
	if state.LastSuccess == nil || state.LastError != "" || state.InProgress {
		t.Fatalf("unexpected state after success: %+v", state)
	}
}

func TestFailureKeepsPriorSnapshot(t *testing.T) {
	s1 := snap(1)
	fetcher := &scriptedFetcher{fn: func(_ context.Context, call int) (*chain.Snapshot, error) {
		if call == 1 {
			return s1, nil
		}
		return nil, &chain.NetworkError{Err: context.DeadlineExceeded}
	}}

	c := cache.New()
	var failures int32
	hooks := Hooks{OnFailure: func(context.Context, error) { atomic.AddInt32(&failures, 1) }}
	r := New(fastOpts(), fetcher, c, hooks, noopLogger())

	r.Refresh(context.Background())
	r.Refresh(context.Background())

	if c.Read() != s1 {
		t.Fatal("failed refresh must leave prior snapshot readable")
	}
	state := r.State()
	if state.LastError == "" {
		t.Fatal("last error should be recorded after retry cap")
	}
	if state.LastSuccess == nil {
		t.Fatal("last success from the first refresh should survive")
	}
	if atomic.LoadInt32(&failures) != 1 {
		t.Fatalf("failure hook fired %d times, want 1", failures)
	}
	// 1 success + MaxAttempts failures
	if got := fetcher.callCount(); got != 4 {
		t.Fatalf("fetch calls = %d, want 4", got)
	}
}

func TestFailureWithoutPriorSnapshot(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(context.Context, int) (*chain.Snapshot, error) {
		return nil, &chain.NetworkError{Err: context.DeadlineExceeded}
	}}

	c := cache.New()
	r := New(fastOpts(), fetcher, c, Hooks{}, noopLogger())
	r.Refresh(context.Background())

	if c.Read() != nil {
		t.Fatal("cache must stay empty when no fetch ever succeeded")
	}
	if state := r.State(); state.LastError == "" || state.LastSuccess != nil {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestDecodeErrorNotRetried(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(context.Context, int) (*chain.Snapshot, error) {
		return nil, &chain.DecodeError{Err: context.DeadlineExceeded}
	}}

	r := New(fastOpts(), fetcher, cache.New(), Hooks{}, noopLogger())
	r.Refresh(context.Background())

	if got := fetcher.callCount(); got != 1 {
		t.Fatalf("decode error retried: %d calls", got)
	}
	if r.State().LastError == "" {
		t.Fatal("decode error should surface in state")
	}
}

func TestTriggersCoalesceToSingleFetchInFlight(t *testing.T) {
	var inFlight, maxInFlight int32
	release := make(chan struct{})
	fetcher := &scriptedFetcher{fn: func(ctx context.Context, _ int) (*chain.Snapshot, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if n <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		atomic.AddInt32(&inFlight, -1)
		return snap(1), nil
	}}

	r := New(fastOpts(), fetcher, cache.New(), Hooks{}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Wait for the initial fetch to start, then hammer the trigger.
	for atomic.LoadInt32(&inFlight) == 0 {
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 20; i++ {
		r.TriggerRefresh()
	}
	close(release)

	// Give the coalesced trigger time to drain.
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Fatalf("max fetches in flight = %d, want 1", got)
	}
	// Initial fetch plus exactly one coalesced trigger.
	if got := fetcher.callCount(); got > 2 {
		t.Fatalf("20 triggers produced %d fetches, want at most 2", got)
	}
}

func TestCancellationMidFetchLeavesStateIdle(t *testing.T) {
	started := make(chan struct{})
	fetcher := &scriptedFetcher{fn: func(ctx context.Context, _ int) (*chain.Snapshot, error) {
		close(started)
		<-ctx.Done()
		return nil, &chain.NetworkError{Err: ctx.Err()}
	}}

	c := cache.New()
	r := New(fastOpts(), fetcher, c, Hooks{}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Refresh(ctx)
		close(done)
	}()

	<-started
	cancel()
	<-done

	state := r.State()
	if state.InProgress {
		t.Fatal("refresher must return to idle after cancellation")
	}
	if state.LastError != "" {
		t.Fatalf("cancellation is not a failure, got error %q", state.LastError)
	}
	if c.Read() != nil {
		t.Fatal("cancelled fetch must not update the cache")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fetcher := &scriptedFetcher{fn: func(context.Context, int) (*chain.Snapshot, error) {
		return snap(1), nil
	}}
	r := New(fastOpts(), fetcher, cache.New(), Hooks{}, noopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
