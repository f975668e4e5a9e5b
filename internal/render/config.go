// Package render turns discrete position snapshots into continuous marker
// motion with fading, bounded trails.
package render

import "time"

// Config tunes the renderer. DefaultConfig holds the production values.
type Config struct {
	MaxTrailPoints    int
	MaxTrailAge       time.Duration
	MinMoveDegrees    float64 // smaller moves do not add a trail point
	MoveEpsilon       float64 // smaller displacements snap instead of animating
	AnimationDuration time.Duration

	MinOpacity      float64
	MaxOpacity      float64
	BaseWeight      float64
	WeightRange     float64
	GlowExtraWeight float64
	GlowOpacity     float64
}

// DefaultConfig returns the standard trail and animation settings.
func DefaultConfig() Config {
	return Config{
		MaxTrailPoints:    8,
		MaxTrailAge:       5 * time.Minute,
		MinMoveDegrees:    0.0001,
		MoveEpsilon:       1e-6,
		AnimationDuration: 1500 * time.Millisecond,

		MinOpacity:      0.15,
		MaxOpacity:      0.8,
		BaseWeight:      3,
		WeightRange:     2,
		GlowExtraWeight: 6,
		GlowOpacity:     0.2,
	}
}
