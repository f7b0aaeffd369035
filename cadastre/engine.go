package cadastre

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"
)

// Engine carries everything a stage needs: configuration, geometry kernel,
// logger and the report being filled. It replaces ambient global state; one
// Engine serves one run.
type Engine struct {
	Config *Config
	Kernel Kernel
	Logger *log.Logger
	Report *Report
}

// NewEngine creates an engine with the GEOS kernel and a fresh report.
// A nil logger discards output.
func NewEngine(cfg *Config, logger *log.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Engine{
		Config: cfg,
		Kernel: GEOSKernel{},
		Logger: logger,
		Report: NewReport(),
	}
}

func (e *Engine) thresholds() Thresholds {
	return e.Config.Thresholds
}

// debugWriter opens the debug layer for a stage, or returns nil when
// debugging is disabled or the file cannot be created.
func (e *Engine) debugWriter(stage string, fs *FeatureSet) *DebugWriter {
	if e.Config.Debug.Dir == "" {
		return nil
	}
	d, err := NewDebugWriter(e.Config.Debug.Dir, fmt.Sprintf("debug_%s_%s", stage, fs.Name))
	if err != nil {
		e.Logger.Warn("debug layer disabled", "stage", stage, "err", err)
		return nil
	}
	return d
}

// timed runs fn and records its duration under name.
func (e *Engine) timed(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	e.Report.Stage(name, time.Since(start))
	return err
}

// counter builds a per-layer counter key.
func counter(name string, fs *FeatureSet) string {
	return name + "_" + fs.Name
}

// inside reports whether b lies inside a: contained, or covered by a for at
// least half of its own area.
func (e *Engine) inside(b, a orb.MultiPolygon) bool {
	if e.Kernel.Contains(a, b) {
		return true
	}
	area := polygonArea(b)
	if area <= 0 || !e.Kernel.Intersects(a, b) {
		return false
	}
	return e.Kernel.IntersectionArea(a, b) >= 0.5*area
}

// editBuffer accumulates geometry edits and flushes them in batches.
type editBuffer struct {
	fs      *FeatureSet
	limit   int
	pending map[FeatureID]orb.Geometry
}

func (e *Engine) newEditBuffer(fs *FeatureSet) *editBuffer {
	return &editBuffer{fs: fs, limit: e.Config.BufferSize, pending: make(map[FeatureID]orb.Geometry)}
}

func (b *editBuffer) put(id FeatureID, g orb.Geometry) {
	b.pending[id] = g
	if len(b.pending) >= b.limit {
		b.flush()
	}
}

func (b *editBuffer) flush() {
	if len(b.pending) == 0 {
		return
	}
	b.fs.ChangeGeometries(b.pending)
	b.pending = make(map[FeatureID]orb.Geometry)
}
