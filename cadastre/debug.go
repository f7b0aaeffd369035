package cadastre

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
)

// DebugWriter collects annotated points into an ESRI point shapefile. A nil
// writer discards everything, so stages can call it unconditionally.
type DebugWriter struct {
	path  string
	w     *shp.Writer
	count int
}

// NewDebugWriter creates <dir>/<name>.shp with a single "note" field.
func NewDebugWriter(dir, name string) (*DebugWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug dir: %w", err)
	}
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POINT)
	if err != nil {
		return nil, fmt.Errorf("creating debug shapefile %s: %w", path, err)
	}
	w.SetFields([]shp.Field{
		shp.StringField("note", 80),
	})
	return &DebugWriter{path: path, w: w}, nil
}

// Add writes one point with a note.
func (d *DebugWriter) Add(p orb.Point, note string) {
	if d == nil {
		return
	}
	row := d.w.Write(&shp.Point{X: p[0], Y: p[1]})
	if len(note) > 80 {
		note = note[:80]
	}
	if err := d.w.WriteAttribute(int(row), 0, note); err == nil {
		d.count++
	}
}

// Count returns the number of points written.
func (d *DebugWriter) Count() int {
	if d == nil {
		return 0
	}
	return d.count
}

// Path returns the shapefile path.
func (d *DebugWriter) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// Close flushes the shapefile and its sidecar files.
func (d *DebugWriter) Close() {
	if d == nil {
		return
	}
	d.w.Close()
}
