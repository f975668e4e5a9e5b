package render

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Scene is everything to draw for one frame.
type Scene struct {
	At       time.Time
	Markers  []Marker
	Segments []Segment
}

// Scene captures the current markers and trail segments, ordered by vehicle id.
func (r *Renderer) Scene(now time.Time) Scene {
	s := Scene{At: now, Segments: r.Segments(now)}
	for _, id := range r.ids() {
		m, _ := r.Marker(id)
		s.Markers = append(s.Markers, m)
	}
	return s
}

// FeatureCollection encodes a scene as GeoJSON: trail segments as LineStrings
// first, so markers draw on top, then markers as Points.
func FeatureCollection(s Scene) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"generatedAt": s.At.UTC().Format(time.RFC3339Nano)}

	for _, seg := range s.Segments {
		f := geojson.NewFeature(orb.LineString{seg.From, seg.To})
		kind := "trail"
		if seg.Glow {
			kind = "glow"
		}
		f.Properties["kind"] = kind
		f.Properties["id"] = seg.VehicleID
		f.Properties["index"] = seg.Index
		f.Properties["opacity"] = seg.Opacity
		f.Properties["weight"] = seg.Weight
		fc.Append(f)
	}

	for _, m := range s.Markers {
		f := geojson.NewFeature(m.Displayed)
		f.ID = m.ID
		f.Properties["kind"] = "marker"
		f.Properties["id"] = m.ID
		f.Properties["rotation"] = m.Rotation
		f.Properties["animating"] = m.Animating()
		v := m.Vehicle
		setIfNotEmpty(f.Properties, "callsign", v.Callsign)
		setIfNotEmpty(f.Properties, "registration", v.Registration)
		setIfNotEmpty(f.Properties, "aircraftType", v.AircraftType)
		setIfNotEmpty(f.Properties, "origin", v.Origin)
		setIfNotEmpty(f.Properties, "destination", v.Destination)
		if v.Altitude != nil {
			f.Properties["altitude"] = *v.Altitude
		}
		if v.Speed != nil {
			f.Properties["speed"] = *v.Speed
		}
		if !v.ObservedAt.IsZero() {
			f.Properties["observedAt"] = v.ObservedAt.UTC().Format(time.RFC3339)
		}
		fc.Append(f)
	}
	return fc
}

func setIfNotEmpty(props geojson.Properties, key, value string) {
	if value != "" {
		props[key] = value
	}
}
