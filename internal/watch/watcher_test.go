package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dispatch-board/backend/internal/client"
	"github.com/dispatch-board/backend/internal/models"
	"github.com/dispatch-board/backend/internal/render"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePositions struct {
	mu        sync.Mutex
	responses []positionsResult
	calls     int
}

func (f *fakePositions) FetchPositions(ctx context.Context) (*client.Positions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.calls++
	r := f.responses[i]
	return r.positions, r.err
}

func (f *fakePositions) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCalls struct {
	mu         sync.Mutex
	responses  [][]models.DispatchCall
	polls      int
	classified []string
}

func (f *fakeCalls) FetchDispatchCalls(ctx context.Context) ([]models.DispatchCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	f.polls++
	return f.responses[i], nil
}

func (f *fakeCalls) ClassifySummary(ctx context.Context, summary string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified = append(f.classified, summary)
	return "Chest Pain", nil
}

func (f *fakeCalls) Classified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.classified...)
}

type recordingSink struct {
	mu     sync.Mutex
	scenes []render.Scene
}

func (s *recordingSink) WriteScene(scene render.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenes = append(s.scenes, scene)
	return nil
}

func (s *recordingSink) Last() (render.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.scenes) == 0 {
		return render.Scene{}, false
	}
	return s.scenes[len(s.scenes)-1], true
}

func snapshot(id string, vehicles ...models.VehiclePosition) positionsResult {
	return positionsResult{positions: &client.Positions{SnapshotID: id, Vehicles: vehicles}}
}

func vehicle(id string, lat, lon float64) models.VehiclePosition {
	return models.VehiclePosition{ID: id, Latitude: lat, Longitude: lon}
}

func call(id int, summary string) models.DispatchCall {
	return models.DispatchCall{ID: id, ConversationAnalysis: &models.ConversationAnalysis{Summary: summary}}
}

func runWatcher(t *testing.T, w *Watcher) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
		}
	}
}

func fastOptions() Options {
	return Options{
		PositionsInterval: 20 * time.Millisecond,
		RecordsInterval:   20 * time.Millisecond,
		FrameInterval:     5 * time.Millisecond,
	}
}

func TestWatcher_RendersPolledPositions(t *testing.T) {
	src := &fakePositions{responses: []positionsResult{
		snapshot("s1", vehicle("N1", 39.7, -86.1), vehicle("N2", 39.8, -86.2)),
	}}
	sink := &recordingSink{}
	w := New(src, nil, render.New(render.DefaultConfig()), sink, fastOptions())

	stop := runWatcher(t, w)
	require.Eventually(t, func() bool {
		s, ok := sink.Last()
		return ok && len(s.Markers) == 2
	}, time.Second, 5*time.Millisecond)
	stop()

	s, _ := sink.Last()
	assert.Equal(t, "N1", s.Markers[0].ID)
	assert.Equal(t, "N2", s.Markers[1].ID)
}

func TestWatcher_FailedPollKeepsMap(t *testing.T) {
	src := &fakePositions{responses: []positionsResult{
		snapshot("s1", vehicle("N1", 39.7, -86.1)),
		{err: errors.New("server unreachable")},
	}}
	sink := &recordingSink{}
	w := New(src, nil, render.New(render.DefaultConfig()), sink, fastOptions())

	stop := runWatcher(t, w)
	require.Eventually(t, func() bool { return src.Calls() >= 4 }, time.Second, 5*time.Millisecond)
	stop()

	s, ok := sink.Last()
	require.True(t, ok)
	require.Len(t, s.Markers, 1)
	assert.Equal(t, "N1", s.Markers[0].ID)
}

func TestWatcher_VehicleLeavesRegion(t *testing.T) {
	src := &fakePositions{responses: []positionsResult{
		snapshot("s1", vehicle("N1", 39.7, -86.1), vehicle("N2", 39.8, -86.2)),
		snapshot("s2", vehicle("N2", 39.8, -86.2)),
	}}
	sink := &recordingSink{}
	w := New(src, nil, render.New(render.DefaultConfig()), sink, fastOptions())

	stop := runWatcher(t, w)
	require.Eventually(t, func() bool {
		s, ok := sink.Last()
		return ok && src.Calls() >= 2 && len(s.Markers) == 1
	}, time.Second, 5*time.Millisecond)
	stop()

	s, _ := sink.Last()
	assert.Equal(t, "N2", s.Markers[0].ID)
}

func TestWatcher_LogsAndClassifiesNewCalls(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	src := &fakePositions{responses: []positionsResult{snapshot("s1")}}
	calls := &fakeCalls{responses: [][]models.DispatchCall{
		{call(1, "Old call")},
		{call(2, "Chest pain, 60M"), call(1, "Old call")},
	}}
	opts := fastOptions()
	opts.Classify = true
	w := New(src, calls, render.New(render.DefaultConfig()), &recordingSink{}, opts)

	stop := runWatcher(t, w)
	require.Eventually(t, func() bool { return len(calls.Classified()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "dispatch call classified" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []string{"Chest pain, 60M"}, calls.Classified())

	var newCalls []interface{}
	for _, e := range hook.AllEntries() {
		if e.Message == "new dispatch call" {
			newCalls = append(newCalls, e.Data["call"])
		}
		if e.Message == "dispatch call classified" {
			assert.Equal(t, logrus.InfoLevel, e.Level)
			assert.Equal(t, "Chest Pain", e.Data["chief_complaint"])
		}
	}
	assert.Equal(t, []interface{}{2}, newCalls)
}

func TestWatcher_IdleFramesSkipSink(t *testing.T) {
	src := &fakePositions{responses: []positionsResult{snapshot("s1", vehicle("N1", 39.7, -86.1))}}
	sink := &recordingSink{}
	w := New(src, nil, render.New(render.DefaultConfig()), sink, Options{
		PositionsInterval: time.Hour,
		FrameInterval:     2 * time.Millisecond,
	})

	stop := runWatcher(t, w)
	require.Eventually(t, func() bool { _, ok := sink.Last(); return ok }, time.Second, 2*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.scenes, 1, "a first sighting does not animate, so one repaint is enough")
}

func TestFileSink_WritesFeatureCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "scene.geojson")
	r := render.New(render.DefaultConfig())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Update([]models.VehiclePosition{vehicle("N1", 39.7, -86.1)}, now)

	require.NoError(t, FileSink{Path: path}.WriteScene(r.Scene(now)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "marker", fc.Features[0].Properties["kind"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}
