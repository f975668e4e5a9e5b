package render

import (
	"time"

	"github.com/paulmach/orb"
)

// animation moves a marker from one point to another over a fixed duration.
// It is plain state: a new target replaces it instead of cancelling anything.
type animation struct {
	from      orb.Point
	to        orb.Point
	startedAt time.Time
	duration  time.Duration
}

// easeOutCubic maps normalized time t in [0,1] to progress in [0,1].
func easeOutCubic(t float64) float64 {
	u := 1 - t
	return 1 - u*u*u
}

// at returns the interpolated position at now and whether the animation has finished.
// A finished animation yields exactly the target.
func (a animation) at(now time.Time) (orb.Point, bool) {
	if a.duration <= 0 {
		return a.to, true
	}
	t := float64(now.Sub(a.startedAt)) / float64(a.duration)
	if t >= 1 {
		return a.to, true
	}
	if t < 0 {
		t = 0
	}
	p := easeOutCubic(t)
	return orb.Point{
		a.from[0] + (a.to[0]-a.from[0])*p,
		a.from[1] + (a.to[1]-a.from[1])*p,
	}, false
}

// displacement is the larger of the latitude and longitude differences, in degrees.
func displacement(a, b orb.Point) float64 {
	dLon := a[0] - b[0]
	if dLon < 0 {
		dLon = -dLon
	}
	dLat := a[1] - b[1]
	if dLat < 0 {
		dLat = -dLat
	}
	if dLat > dLon {
		return dLat
	}
	return dLon
}
