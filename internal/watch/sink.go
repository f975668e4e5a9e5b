package watch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dispatch-board/backend/internal/render"
)

// Sink receives every repainted scene.
type Sink interface {
	WriteScene(scene render.Scene) error
}

// FileSink writes each scene as a GeoJSON FeatureCollection to Path. Readers
// never observe a partially written file: the scene goes to a temporary file in
// the same directory which then replaces Path.
type FileSink struct {
	Path string
}

// WriteScene implements Sink.
func (s FileSink) WriteScene(scene render.Scene) error {
	data, err := render.FeatureCollection(scene).MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding scene: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing scene: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing scene file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing scene file: %w", err)
	}
	return nil
}
