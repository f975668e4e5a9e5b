// mock_feed.go - Scriptable aircraft feed for testing
package testutil

import (
	"context"
	"sync"

	"github.com/dispatch-board/backend/internal/feed"
)

// MockFeed implements positions.Fetcher. Each call returns the current scripted
// response. When blocked, calls wait until Release or their context ends.
type MockFeed struct {
	mu      sync.Mutex
	calls   int
	records []feed.Aircraft
	err     error
	gate    chan struct{}
	panicV  interface{}
}

// NewMockFeed creates a feed that returns records.
func NewMockFeed(records ...feed.Aircraft) *MockFeed {
	return &MockFeed{records: records}
}

func (m *MockFeed) FetchAircraft(ctx context.Context) ([]feed.Aircraft, error) {
	m.mu.Lock()
	m.calls++
	records := append([]feed.Aircraft(nil), m.records...)
	err, gate, panicV := m.err, m.gate, m.panicV
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if panicV != nil {
		panic(panicV)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SetRecords scripts a successful response.
func (m *MockFeed) SetRecords(records ...feed.Aircraft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records, m.err, m.panicV = records, nil, nil
}

// SetError scripts a failing response.
func (m *MockFeed) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetPanic makes the next calls panic with v.
func (m *MockFeed) SetPanic(v interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicV = v
}

// Block holds every subsequent call until the returned release func is called.
func (m *MockFeed) Block() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.gate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.gate == gate {
				m.gate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// Calls returns how many times FetchAircraft has been entered.
func (m *MockFeed) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Aircraft builds a feed record at lat/lon with an optional track.
func Aircraft(id string, lat, lon float64, track ...float64) feed.Aircraft {
	a := feed.Aircraft{ID: id, Latitude: &lat, Longitude: &lon, Callsign: id}
	if len(track) > 0 {
		t := track[0]
		a.Track = &t
	}
	return a
}
