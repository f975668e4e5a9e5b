package render

import (
	"sort"
	"time"

	"github.com/dispatch-board/backend/internal/models"
	"github.com/paulmach/orb"
)

// Marker is what is currently drawn for one vehicle. Displayed lags Reported
// while an animation runs.
type Marker struct {
	ID        string
	Displayed orb.Point
	Reported  orb.Point
	Rotation  float64 // degrees, from the reported heading
	Vehicle   models.VehiclePosition

	anim      animation
	animating bool
}

// Animating reports whether the marker is still moving toward Reported.
func (m Marker) Animating() bool { return m.animating }

// UpdateStats summarizes one Update pass.
type UpdateStats struct {
	Added   int
	Moved   int // animations started
	Removed int
	Ignored int // positions without usable coordinates
	Pruned  int // trail points dropped
}

// Renderer keeps per-vehicle markers and trails keyed by vehicle id. It is not
// safe for concurrent use: Update, Frame and Scene must run on one goroutine.
type Renderer struct {
	cfg     Config
	markers map[string]*Marker
	trails  map[string]*Trail
}

// New creates an empty renderer.
func New(cfg Config) *Renderer {
	return &Renderer{
		cfg:     cfg,
		markers: make(map[string]*Marker),
		trails:  make(map[string]*Trail),
	}
}

// Update applies one snapshot. Vehicles missing from it are dropped; vehicles
// present without coordinates keep their current state.
func (r *Renderer) Update(positions []models.VehiclePosition, now time.Time) UpdateStats {
	var stats UpdateStats
	present := make(map[string]struct{}, len(positions))

	for _, p := range positions {
		if p.ID == "" {
			continue
		}
		present[p.ID] = struct{}{}

		if !p.HasCoordinates() {
			stats.Ignored++
			continue
		}

		m, tracked := r.markers[p.ID]
		if !tracked {
			r.insert(p)
			stats.Added++
			continue
		}
		if r.move(m, p, now) {
			stats.Moved++
		}
	}

	for id := range r.markers {
		if _, ok := present[id]; !ok {
			delete(r.markers, id)
			delete(r.trails, id)
			stats.Removed++
		}
	}

	for _, t := range r.trails {
		stats.Pruned += t.prune(now, r.cfg.MaxTrailPoints, r.cfg.MaxTrailAge)
	}
	return stats
}

func (r *Renderer) insert(p models.VehiclePosition) {
	pt := orb.Point{p.Longitude, p.Latitude}
	r.markers[p.ID] = &Marker{
		ID:        p.ID,
		Displayed: pt,
		Reported:  pt,
		Rotation:  heading(p),
		Vehicle:   p.Clone(),
	}
	r.trails[p.ID] = &Trail{}
}

// move records a new report for a tracked vehicle and reports whether an
// animation was started.
func (r *Renderer) move(m *Marker, p models.VehiclePosition, now time.Time) bool {
	target := orb.Point{p.Longitude, p.Latitude}

	trail := r.trails[m.ID]
	ref := m.Reported
	if last, ok := trail.last(); ok {
		ref = last.Position
	}
	if displacement(ref, target) > r.cfg.MinMoveDegrees {
		trail.append(TrailPoint{Position: target, CapturedAt: now})
	}

	m.Rotation = heading(p)
	m.Vehicle = p.Clone()
	m.Reported = target

	// Resume from wherever the marker is drawn right now.
	r.advance(m, now)
	if displacement(m.Displayed, target) <= r.cfg.MoveEpsilon {
		m.Displayed = target
		m.animating = false
		return false
	}
	m.anim = animation{from: m.Displayed, to: target, startedAt: now, duration: r.cfg.AnimationDuration}
	m.animating = true
	return true
}

func (r *Renderer) advance(m *Marker, now time.Time) {
	if !m.animating {
		return
	}
	pos, done := m.anim.at(now)
	m.Displayed = pos
	if done {
		m.animating = false
	}
}

// Frame advances every running animation to now and returns how many are still running.
func (r *Renderer) Frame(now time.Time) int {
	running := 0
	for _, m := range r.markers {
		r.advance(m, now)
		if m.animating {
			running++
		}
	}
	return running
}

// Len returns the number of tracked vehicles.
func (r *Renderer) Len() int { return len(r.markers) }

// Marker returns a copy of the marker for id.
func (r *Renderer) Marker(id string) (Marker, bool) {
	m, ok := r.markers[id]
	if !ok {
		return Marker{}, false
	}
	cp := *m
	cp.Vehicle = m.Vehicle.Clone()
	return cp, true
}

// Trail returns a copy of the trail points for id, oldest first.
func (r *Renderer) Trail(id string) ([]TrailPoint, bool) {
	t, ok := r.trails[id]
	if !ok {
		return nil, false
	}
	return t.Points(), true
}

// Segments returns the styled trail segments of every vehicle, ordered by vehicle id.
func (r *Renderer) Segments(now time.Time) []Segment {
	var out []Segment
	for _, id := range r.ids() {
		out = append(out, r.trails[id].segments(id, now, r.cfg)...)
	}
	return out
}

func (r *Renderer) ids() []string {
	ids := make([]string, 0, len(r.markers))
	for id := range r.markers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func heading(p models.VehiclePosition) float64 {
	if p.HeadingDegrees == nil {
		return 0
	}
	return *p.HeadingDegrees
}
