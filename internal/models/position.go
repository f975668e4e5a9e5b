// Package models contains domain types for the dispatch dashboard.
package models

import (
	"math"
	"time"
)

// VehiclePosition is one tracked aircraft at one point in time.
type VehiclePosition struct {
	ID             string    `json:"id" msgpack:"id"`
	Latitude       float64   `json:"latitude" msgpack:"latitude"`
	Longitude      float64   `json:"longitude" msgpack:"longitude"`
	Altitude       *float64  `json:"altitude,omitempty" msgpack:"altitude,omitempty"`             // feet
	HeadingDegrees *float64  `json:"headingDegrees,omitempty" msgpack:"headingDegrees,omitempty"` // true track, 0-360
	Speed          *float64  `json:"speed,omitempty" msgpack:"speed,omitempty"`                   // knots
	Callsign       string    `json:"callsign,omitempty" msgpack:"callsign,omitempty"`
	Registration   string    `json:"registration,omitempty" msgpack:"registration,omitempty"`
	AircraftType   string    `json:"aircraftType,omitempty" msgpack:"aircraftType,omitempty"`
	Origin         string    `json:"origin,omitempty" msgpack:"origin,omitempty"`
	Destination    string    `json:"destination,omitempty" msgpack:"destination,omitempty"`
	ObservedAt     time.Time `json:"observedAt" msgpack:"observedAt"`
}

// HasCoordinates reports whether the position carries a usable latitude and longitude.
func (p VehiclePosition) HasCoordinates() bool {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return false
	}
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// Clone returns a copy that shares no pointers with p.
func (p VehiclePosition) Clone() VehiclePosition {
	p.Altitude = cloneFloat(p.Altitude)
	p.HeadingDegrees = cloneFloat(p.HeadingDegrees)
	p.Speed = cloneFloat(p.Speed)
	return p
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v. Handy for optional fields in literals.
func Float(v float64) *float64 {
	return &v
}
