// Package watch drives the map renderer from the server's polling endpoints.
//
// Everything that touches renderer state runs on the goroutine that called
// Run. Network calls run in short-lived helper goroutines whose only shared
// state is the channel they report on.
package watch

import (
	"context"
	"time"

	"github.com/dispatch-board/backend/internal/client"
	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/render"
	log "github.com/sirupsen/logrus"
)

// PositionSource is polled for vehicle positions.
type PositionSource interface {
	FetchPositions(ctx context.Context) (*client.Positions, error)
}

// CallSource is polled for dispatch calls and asked to classify new ones.
type CallSource interface {
	FetchDispatchCalls(ctx context.Context) ([]models.DispatchCall, error)
	ClassifySummary(ctx context.Context, summary string) (string, error)
}

// Options configures a Watcher. Zero intervals fall back to the defaults.
type Options struct {
	PositionsInterval time.Duration
	RecordsInterval   time.Duration
	FrameInterval     time.Duration
	RequestTimeout    time.Duration
	Classify          bool
	Now               func() time.Time
}

const (
	DefaultPositionsInterval = 15 * time.Second
	DefaultRecordsInterval   = 15 * time.Second
	DefaultFrameInterval     = time.Second / 30
)

// Watcher owns a renderer and keeps it in sync with the server.
type Watcher struct {
	positions PositionSource
	calls     CallSource
	renderer  *render.Renderer
	sink      Sink
	opts      Options
	log       *log.Entry

	// Loop-goroutine state.
	positionsBusy bool
	callsBusy     bool
	dirty         bool
	lastRunning   int
	lastSnapshot  string
	seenCalls     map[int]struct{}
	baselined     bool
}

type positionsResult struct {
	positions *client.Positions
	err       error
}

type callsResult struct {
	calls []models.DispatchCall
	err   error
}

type classification struct {
	call      models.DispatchCall
	complaint string
	err       error
}

// New creates a watcher. calls may be nil to skip dispatch record polling.
func New(positions PositionSource, calls CallSource, renderer *render.Renderer, sink Sink, opts Options) *Watcher {
	if opts.PositionsInterval <= 0 {
		opts.PositionsInterval = DefaultPositionsInterval
	}
	if opts.RecordsInterval <= 0 {
		opts.RecordsInterval = DefaultRecordsInterval
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{
		positions: positions,
		calls:     calls,
		renderer:  renderer,
		sink:      sink,
		opts:      opts,
		log:       log.WithField("component", "watch"),
		seenCalls: make(map[int]struct{}),
	}
}

// Run polls immediately and then on every interval until ctx is cancelled.
// A failed poll leaves the rendered state untouched. Run returns nil once ctx
// is done.
func (w *Watcher) Run(ctx context.Context) error {
	posTicker := time.NewTicker(w.opts.PositionsInterval)
	defer posTicker.Stop()
	frameTicker := time.NewTicker(w.opts.FrameInterval)
	defer frameTicker.Stop()

	var callsTick <-chan time.Time
	if w.calls != nil {
		callsTicker := time.NewTicker(w.opts.RecordsInterval)
		defer callsTicker.Stop()
		callsTick = callsTicker.C
	}

	posResults := make(chan positionsResult, 1)
	callResults := make(chan callsResult, 1)
	classified := make(chan classification, 16)

	w.pollPositions(ctx, posResults)
	if w.calls != nil {
		w.pollCalls(ctx, callResults)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-posTicker.C:
			w.pollPositions(ctx, posResults)

		case <-callsTick:
			w.pollCalls(ctx, callResults)

		case res := <-posResults:
			w.positionsBusy = false
			w.applyPositions(res)

		case res := <-callResults:
			w.callsBusy = false
			w.applyCalls(ctx, res, classified)

		case c := <-classified:
			w.logClassification(c)

		case <-frameTicker.C:
			w.frame()
		}
	}
}

func (w *Watcher) pollPositions(ctx context.Context, out chan<- positionsResult) {
	if w.positionsBusy {
		w.log.Debug("positions poll still running, skipping tick")
		return
	}
	w.positionsBusy = true
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		defer cancel()
		p, err := w.positions.FetchPositions(reqCtx)
		select {
		case out <- positionsResult{positions: p, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (w *Watcher) pollCalls(ctx context.Context, out chan<- callsResult) {
	if w.callsBusy {
		return
	}
	w.callsBusy = true
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		defer cancel()
		calls, err := w.calls.FetchDispatchCalls(reqCtx)
		select {
		case out <- callsResult{calls: calls, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (w *Watcher) applyPositions(res positionsResult) {
	if res.err != nil {
		w.log.WithError(res.err).Warn("positions poll failed, keeping current map")
		return
	}
	p := res.positions
	stats := w.renderer.Update(p.Vehicles, w.opts.Now())
	w.dirty = true

	entry := w.log.WithFields(log.Fields{
		"snapshot": p.SnapshotID,
		"vehicles": w.renderer.Len(),
		"added":    stats.Added,
		"moved":    stats.Moved,
		"removed":  stats.Removed,
		"ignored":  stats.Ignored,
		"pruned":   stats.Pruned,
	})
	if p.Stale {
		entry.Warn("server returned a stale snapshot")
	} else if p.SnapshotID != "" && p.SnapshotID == w.lastSnapshot {
		entry.Debug("snapshot unchanged")
	} else {
		entry.Info("positions updated")
	}
	w.lastSnapshot = p.SnapshotID
}

func (w *Watcher) applyCalls(ctx context.Context, res callsResult, classified chan<- classification) {
	if res.err != nil {
		w.log.WithError(res.err).Warn("dispatch records poll failed")
		return
	}

	if !w.baselined {
		for _, c := range res.calls {
			w.seenCalls[c.ID] = struct{}{}
		}
		w.baselined = true
		w.log.WithField("calls", len(res.calls)).Info("dispatch records loaded")
		return
	}

	for _, c := range res.calls {
		if _, ok := w.seenCalls[c.ID]; ok {
			continue
		}
		w.seenCalls[c.ID] = struct{}{}
		w.log.WithFields(log.Fields{
			"call":      c.ID,
			"timestamp": c.Timestamp,
		}).Info("new dispatch call")

		if w.opts.Classify && c.Summary() != "" {
			w.classify(ctx, c, classified)
		}
	}
}

func (w *Watcher) classify(ctx context.Context, call models.DispatchCall, out chan<- classification) {
	go func() {
		reqCtx, cancel := context.WithTimeout(ctx, w.opts.RequestTimeout)
		defer cancel()
		complaint, err := w.calls.ClassifySummary(reqCtx, call.Summary())
		select {
		case out <- classification{call: call, complaint: complaint, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (w *Watcher) logClassification(c classification) {
	entry := w.log.WithField("call", c.call.ID)
	if c.err != nil {
		entry.WithError(c.err).Warn("classifying dispatch call failed")
		return
	}
	entry.WithField("chief_complaint", c.complaint).Info("dispatch call classified")
}

// frame advances animations and repaints when anything on screen changed.
func (w *Watcher) frame() {
	now := w.opts.Now()
	running := w.renderer.Frame(now)
	if !w.dirty && running == 0 && w.lastRunning == 0 {
		return
	}
	w.lastRunning = running
	w.dirty = false

	if err := w.sink.WriteScene(w.renderer.Scene(now)); err != nil {
		w.log.WithError(err).Error("writing scene failed")
	}
}
