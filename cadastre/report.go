package cadastre

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Report accumulates the counters, warnings and stage timings of one run.
// It is owned by the Engine and passed explicitly; there is no global report.
type Report struct {
	RunID     string           `json:"runId"`
	StartedAt time.Time        `json:"startedAt"`
	Counters  map[string]int   `json:"counters"`
	Warnings  []string         `json:"warnings,omitempty"`
	Stages    []StageTiming    `json:"stages,omitempty"`
	Layers    map[string]Stats `json:"layers,omitempty"`
}

// StageTiming records how long one pipeline stage took.
type StageTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Stats summarises a layer at the end of the run.
type Stats struct {
	Features int     `json:"features"`
	Vertices int     `json:"vertices"`
	Area     float64 `json:"area"`
}

// NewReport creates an empty report with a fresh run id.
func NewReport() *Report {
	return &Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Counters:  make(map[string]int),
		Layers:    make(map[string]Stats),
	}
}

// Inc adds n to counter key. Zero increments are not recorded.
func (r *Report) Inc(key string, n int) {
	if n == 0 {
		return
	}
	r.Counters[key] += n
}

// Get returns the value of counter key.
func (r *Report) Get(key string) int {
	return r.Counters[key]
}

// Warn appends a formatted warning.
func (r *Report) Warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Stage records a stage duration.
func (r *Report) Stage(name string, d time.Duration) {
	r.Stages = append(r.Stages, StageTiming{Name: name, Duration: d})
}

// SetLayer stores the final statistics of fs.
func (r *Report) SetLayer(fs *FeatureSet) {
	r.Layers[fs.Name] = Stats{
		Features: fs.Len(),
		Vertices: fs.VertexCount(),
		Area:     fs.Area(),
	}
}

// Keys returns the counter names in lexical order.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.Counters))
	for k := range r.Counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the report as indented JSON.
func (r *Report) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
