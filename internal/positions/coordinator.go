// Package positions shields the rate-limited aircraft feed behind a TTL cache
// that coalesces concurrent refreshes into a single upstream call.
package positions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dispatch-board/backend/internal/feed"
	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/upstream"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// DefaultTTL is how long a successful fetch is served without asking upstream again.
const DefaultTTL = 60 * time.Second

// Fetcher performs one upstream region query.
type Fetcher interface {
	FetchAircraft(ctx context.Context) ([]feed.Aircraft, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]feed.Aircraft, error)

// FetchAircraft calls f.
func (f FetcherFunc) FetchAircraft(ctx context.Context) ([]feed.Aircraft, error) { return f(ctx) }

// FailurePolicy decides what a failed refresh does to the cached entry.
type FailurePolicy string

const (
	// ClearOnFailure drops the cached entry and hands the failure to every waiter.
	ClearOnFailure FailurePolicy = "clear"
	// ServeStaleOnFailure keeps the entry and hands waiters the last good snapshot,
	// marked stale. The entry keeps its original fetch time, so the next call refetches.
	ServeStaleOnFailure FailurePolicy = "serve_stale"
)

// ParseFailurePolicy converts a config value.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", ClearOnFailure:
		return ClearOnFailure, nil
	case ServeStaleOnFailure:
		return ServeStaleOnFailure, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

type entry struct {
	snapshot  *models.Snapshot
	fetchedAt time.Time
}

// flight is a pending upstream fetch shared by every caller that arrives while
// it runs. snapshot and err are written once, before done is closed.
type flight struct {
	done     chan struct{}
	snapshot *models.Snapshot
	err      error
	waiters  int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTTL sets the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Coordinator) { c.ttl = ttl }
}

// WithFetchTimeout bounds each upstream call. Zero means no bound beyond the fetcher's own.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.fetchTimeout = d }
}

// WithFailurePolicy sets what happens to the cache when a refresh fails.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(c *Coordinator) { c.policy = p }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// Coordinator owns the current snapshot of live aircraft positions.
type Coordinator struct {
	fetcher      Fetcher
	validate     *validator.Validate
	ttl          time.Duration
	fetchTimeout time.Duration
	policy       FailurePolicy
	now          func() time.Time
	log          *log.Entry

	mu            sync.Mutex
	entry         *entry
	inflight      *flight
	upstreamCalls uint64
}

// NewCoordinator creates a coordinator in front of fetcher.
func NewCoordinator(fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		fetcher:  fetcher,
		validate: validator.New(),
		ttl:      DefaultTTL,
		policy:   ClearOnFailure,
		now:      time.Now,
		log:      log.WithField("component", "positions"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPositions returns the current snapshot. A fresh cached snapshot is returned
// directly; otherwise the caller joins the in-flight refresh or starts one.
// Cancelling ctx only stops this caller from waiting: the refresh itself runs
// to completion for everyone else.
func (c *Coordinator) GetPositions(ctx context.Context) (*models.Snapshot, error) {
	c.mu.Lock()
	if e := c.entry; e != nil && c.now().Sub(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		c.log.WithField("snapshot", e.snapshot.ID()).Debug("cache hit")
		return e.snapshot, nil
	}

	f := c.inflight
	if f != nil {
		f.waiters++
		c.mu.Unlock()
		c.log.Debug("cache miss, joining in-flight fetch")
	} else {
		f = &flight{done: make(chan struct{}), waiters: 1}
		c.inflight = f
		c.upstreamCalls++
		c.mu.Unlock()
		c.log.Debug("cache miss, starting upstream fetch")
		go c.refresh(f)
	}

	select {
	case <-f.done:
		return f.snapshot, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) refresh(f *flight) {
	start := c.now()
	records, err := c.fetch()

	var snap *models.Snapshot
	if err == nil {
		snap = c.buildSnapshot(records)
	}

	c.mu.Lock()
	switch {
	case err == nil:
		c.entry = &entry{snapshot: snap, fetchedAt: c.now()}
	case c.policy == ServeStaleOnFailure && c.entry != nil:
		c.log.WithError(err).Warn("refresh failed, serving last good snapshot")
		snap = c.entry.snapshot.AsStale()
		err = nil
	default:
		c.entry = nil
	}
	f.snapshot, f.err = snap, err
	fields := log.Fields{"waiters": f.waiters, "elapsed": c.now().Sub(start)}
	c.inflight = nil
	c.mu.Unlock()
	close(f.done)

	if err != nil {
		c.log.WithFields(fields).WithField("kind", upstream.KindOf(err)).WithError(err).Error("upstream fetch failed")
		return
	}
	fields["vehicles"] = snap.Len()
	c.log.WithFields(fields).Info("positions refreshed")
}

func (c *Coordinator) fetch() (records []feed.Aircraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("position fetch panicked: %v", r)
		}
	}()

	ctx := context.Background()
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
		defer cancel()
	}
	return c.fetcher.FetchAircraft(ctx)
}

// buildSnapshot keeps every record that passes validation and drops the rest one by one.
func (c *Coordinator) buildSnapshot(records []feed.Aircraft) *models.Snapshot {
	now := c.now()
	positions := make([]models.VehiclePosition, 0, len(records))
	dropped := 0
	for _, rec := range records {
		if err := c.validate.Struct(rec); err != nil {
			dropped++
			c.log.WithField("id", rec.Identifier()).WithError(err).Debug("dropping invalid position record")
			continue
		}
		positions = append(positions, rec.ToPosition(now))
	}
	if dropped > 0 {
		c.log.WithField("dropped", dropped).Warn("invalid position records excluded from snapshot")
	}
	return models.NewSnapshot(now, positions)
}

// Status describes the cache for health reporting.
type Status struct {
	HasEntry      bool          `json:"hasEntry"`
	FetchedAt     *time.Time    `json:"fetchedAt,omitempty"`
	AgeSeconds    float64       `json:"ageSeconds,omitempty"`
	Vehicles      int           `json:"vehicles"`
	InFlight      bool          `json:"inFlight"`
	UpstreamCalls uint64        `json:"upstreamCalls"`
	TTLSeconds    float64       `json:"ttlSeconds"`
	FailurePolicy FailurePolicy `json:"failurePolicy"`
}

// Status returns a point-in-time view of the cache.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		InFlight:      c.inflight != nil,
		UpstreamCalls: c.upstreamCalls,
		TTLSeconds:    c.ttl.Seconds(),
		FailurePolicy: c.policy,
	}
	if c.entry != nil {
		fetchedAt := c.entry.fetchedAt
		s.HasEntry = true
		s.FetchedAt = &fetchedAt
		s.AgeSeconds = c.now().Sub(fetchedAt).Seconds()
		s.Vehicles = c.entry.snapshot.Len()
	}
	return s
}
