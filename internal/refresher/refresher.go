package refresher

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solwatch/internal/cache"
	"solwatch/internal/chain"
)

const (
	defaultInterval       = 15 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 5 * time.Second
)

// Options tune refresh cadence and retry behaviour.
type Options struct {
	Interval       time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// State describes the outcome of the most recent refresh attempts.
type State struct {
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	InProgress  bool       `json:"in_progress"`
}

// Hooks receive refresh outcomes after the cache has been updated. Both are
// optional and must not block for long; they run on the refresh goroutine.
type Hooks struct {
	OnSnapshot func(ctx context.Context, snap *chain.Snapshot)
	OnFailure  func(ctx context.Context, err error)
}

// Refresher drives periodic and on-demand cache refreshes. At most one fetch
// is in flight at any time; triggers arriving while a fetch runs coalesce
// into a single pending refresh.
type Refresher struct {
	opts    Options
	fetcher chain.SnapshotFetcher
	cache   *cache.Cache
	hooks   Hooks
	logger  zerolog.Logger

	trigger chan struct{}

	mu    sync.Mutex
	state State
}

// New constructs a Refresher. Zero option fields fall back to defaults.
func New(opts Options, fetcher chain.SnapshotFetcher, c *cache.Cache, hooks Hooks, logger zerolog.Logger) *Refresher {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = defaultBackoffInitial
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = defaultBackoffMax
	}

	return &Refresher{
		opts:    opts,
		fetcher: fetcher,
		cache:   c,
		hooks:   hooks,
		logger:  logger.With().Str("component", "refresher").Logger(),
		trigger: make(chan struct{}, 1),
	}
}

// TriggerRefresh requests a refresh without blocking. Requests arriving while
// a fetch is already running or pending are absorbed.
func (r *Refresher) TriggerRefresh() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// State returns a copy of the current refresh state.
func (r *Refresher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Run blocks, refreshing on every interval tick and on every trigger until
// ctx is cancelled. An initial refresh runs immediately.
func (r *Refresher) Run(ctx context.Context) error {
	r.Refresh(ctx)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Refresh(ctx)
		case <-r.trigger:
			r.Refresh(ctx)
		}
	}
}

// Refresh performs one refresh cycle: fetch with bounded retries, update the
// cache on success, record the failure otherwise. A cycle that finds another
// refresh already in flight returns immediately.
func (r *Refresher) Refresh(ctx context.Context) {
	if !r.begin() {
		return
	}
	defer r.end()

	snap, err := r.fetchWithRetry(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-fetch: back to idle, prior snapshot stays intact.
			r.logger.Debug().Msg("refresh cancelled")
			return
		}
		r.recordFailure(err)
		r.logger.Error().Err(err).Msg("refresh failed")
		if r.hooks.OnFailure != nil {
			r.hooks.OnFailure(ctx, err)
		}
		return
	}

	r.cache.Update(snap)
	r.recordSuccess(snap.FetchedAt)
	r.logger.Info().
		Uint64("slot", snap.SlotHeight).
		Int("wallets", len(snap.Balances)).
		Msg("snapshot refreshed")

	if r.hooks.OnSnapshot != nil {
		r.hooks.OnSnapshot(ctx, snap)
	}
}

func (r *Refresher) fetchWithRetry(ctx context.Context) (*chain.Snapshot, error) {
	backoff := r.opts.BackoffInitial
	var lastErr error

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		snap, err := r.fetcher.FetchSnapshot(ctx)
		if err == nil {
			return snap, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, err
		}
		if !chain.Retryable(err) {
			r.logger.Warn().Err(err).Msg("non-retryable fetch error")
			break
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		r.logger.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("fetch failed, backing off")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
		if backoff > r.opts.BackoffMax {
			backoff = r.opts.BackoffMax
		}
	}

	return nil, lastErr
}

func (r *Refresher) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.InProgress {
		return false
	}
	r.state.InProgress = true
	return true
}

func (r *Refresher) end() {
	r.mu.Lock()
	r.state.InProgress = false
	r.mu.Unlock()
}

func (r *Refresher) recordSuccess(at time.Time) {
	r.mu.Lock()
	ts := at
	r.state.LastSuccess = &ts
	r.state.LastError = ""
	r.mu.Unlock()
}

func (r *Refresher) recordFailure(err error) {
	r.mu.Lock()
	r.state.LastError = err.Error()
	r.mu.Unlock()
}
