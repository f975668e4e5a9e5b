package render

import (
	"time"

	"github.com/paulmach/orb"
)

// TrailPoint is one remembered position of a vehicle.
type TrailPoint struct {
	Position   orb.Point
	CapturedAt time.Time
}

// Trail is the recent history of one vehicle, oldest first.
type Trail struct {
	points []TrailPoint
}

// Len returns the number of points.
func (t *Trail) Len() int { return len(t.points) }

// Points returns a copy of the points, oldest first.
func (t *Trail) Points() []TrailPoint {
	out := make([]TrailPoint, len(t.points))
	copy(out, t.points)
	return out
}

func (t *Trail) last() (TrailPoint, bool) {
	if len(t.points) == 0 {
		return TrailPoint{}, false
	}
	return t.points[len(t.points)-1], true
}

func (t *Trail) append(p TrailPoint) {
	t.points = append(t.points, p)
}

// prune drops from the oldest end while the trail is too long or its oldest
// point is too old. Returns how many points were dropped.
func (t *Trail) prune(now time.Time, maxPoints int, maxAge time.Duration) int {
	drop := 0
	for drop < len(t.points) {
		remaining := len(t.points) - drop
		if remaining <= maxPoints && now.Sub(t.points[drop].CapturedAt) <= maxAge {
			break
		}
		drop++
	}
	if drop > 0 {
		t.points = append(t.points[:0], t.points[drop:]...)
	}
	return drop
}

// Segment is one drawable piece of a trail.
type Segment struct {
	VehicleID string
	Index     int // 0 is the oldest segment
	From      orb.Point
	To        orb.Point
	Opacity   float64
	Weight    float64
	Glow      bool
}

// segments styles each consecutive pair of points. Opacity combines how old the
// newer point is with how recent the segment is within the trail; the newest
// segment gets an extra glow stroke.
func (t *Trail) segments(id string, now time.Time, cfg Config) []Segment {
	n := len(t.points)
	if n < 2 {
		return nil
	}

	out := make([]Segment, 0, n)
	for i := 0; i < n-1; i++ {
		newer := t.points[i+1]
		ageFactor := clamp(1-float64(now.Sub(newer.CapturedAt))/float64(cfg.MaxTrailAge), 0, 1)
		rank := float64(i+1) / float64(n)
		out = append(out, Segment{
			VehicleID: id,
			Index:     i,
			From:      t.points[i].Position,
			To:        newer.Position,
			Opacity:   clamp(ageFactor*rank, cfg.MinOpacity, cfg.MaxOpacity),
			Weight:    cfg.BaseWeight + cfg.WeightRange*rank,
		})
	}

	newest := out[len(out)-1]
	newest.Glow = true
	newest.Weight += cfg.GlowExtraWeight
	newest.Opacity = cfg.GlowOpacity
	return append(out, newest)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
