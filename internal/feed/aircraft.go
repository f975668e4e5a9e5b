package feed

import (
	"strings"
	"time"

	"github.com/dispatch-board/backend/internal/models"
)

// Aircraft is one raw record as delivered by the live-position feed. Records
// are validated with the struct tags before they become models.VehiclePosition.
type Aircraft struct {
	ID           string   `json:"id" validate:"required_without=Hex"`
	Hex          string   `json:"hex"`
	Latitude     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Longitude    *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Altitude     *float64 `json:"altitude"`
	Track        *float64 `json:"track" validate:"omitempty,gte=0,lte=360"`
	GroundSpeed  *float64 `json:"groundSpeed" validate:"omitempty,gte=0"`
	Callsign     string   `json:"callsign"`
	Registration string   `json:"registration"`
	Type         string   `json:"type"`
	Origin       string   `json:"origin"`
	Destination  string   `json:"destination"`
	Timestamp    *int64   `json:"timestamp"` // unix seconds of the last position message
}

// Identifier returns the record id, falling back to the ICAO hex address.
func (a Aircraft) Identifier() string {
	if a.ID != "" {
		return a.ID
	}
	return strings.ToLower(a.Hex)
}

// ToPosition converts a validated record. observedAt is used when the record
// carries no timestamp of its own.
func (a Aircraft) ToPosition(observedAt time.Time) models.VehiclePosition {
	if a.Timestamp != nil && *a.Timestamp > 0 {
		observedAt = time.Unix(*a.Timestamp, 0).UTC()
	}
	return models.VehiclePosition{
		ID:             a.Identifier(),
		Latitude:       *a.Latitude,
		Longitude:      *a.Longitude,
		Altitude:       a.Altitude,
		HeadingDegrees: a.Track,
		Speed:          a.GroundSpeed,
		Callsign:       strings.TrimSpace(a.Callsign),
		Registration:   strings.TrimSpace(a.Registration),
		AircraftType:   strings.TrimSpace(a.Type),
		Origin:         a.Origin,
		Destination:    a.Destination,
		ObservedAt:     observedAt,
	}
}
