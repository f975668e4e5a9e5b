package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Snapshot is the full result of one upstream position fetch.
// It is immutable once built: every accessor hands out copies.
type Snapshot struct {
	id         string
	capturedAt time.Time
	positions  []VehiclePosition
	index      map[string]int
	stale      bool
}

// NewSnapshot builds a snapshot keyed by vehicle id. A later record with an id
// already seen replaces the earlier one in place, so first-seen order is kept.
func NewSnapshot(capturedAt time.Time, positions []VehiclePosition) *Snapshot {
	s := &Snapshot{
		id:         uuid.New().String(),
		capturedAt: capturedAt,
		positions:  make([]VehiclePosition, 0, len(positions)),
		index:      make(map[string]int, len(positions)),
	}
	for _, p := range positions {
		if i, ok := s.index[p.ID]; ok {
			s.positions[i] = p.Clone()
			continue
		}
		s.index[p.ID] = len(s.positions)
		s.positions = append(s.positions, p.Clone())
	}
	return s
}

// ID is a unique version tag for this snapshot.
func (s *Snapshot) ID() string { return s.id }

// CapturedAt is when the upstream fetch that produced the snapshot completed.
func (s *Snapshot) CapturedAt() time.Time { return s.capturedAt }

// Len returns the number of vehicles in the snapshot.
func (s *Snapshot) Len() int { return len(s.positions) }

// Stale reports whether the snapshot is a last-known-good copy served after a failed refresh.
func (s *Snapshot) Stale() bool { return s.stale }

// Positions returns a deep copy of the positions in snapshot order.
func (s *Snapshot) Positions() []VehiclePosition {
	out := make([]VehiclePosition, len(s.positions))
	for i, p := range s.positions {
		out[i] = p.Clone()
	}
	return out
}

// Get looks up a single vehicle by id.
func (s *Snapshot) Get(id string) (VehiclePosition, bool) {
	i, ok := s.index[id]
	if !ok {
		return VehiclePosition{}, false
	}
	return s.positions[i].Clone(), true
}

// AsStale returns a copy of the snapshot flagged as stale. The receiver is left untouched.
func (s *Snapshot) AsStale() *Snapshot {
	cp := *s
	cp.stale = true
	return &cp
}

// MarshalJSON encodes the snapshot as a plain array of positions.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.positions)
}
