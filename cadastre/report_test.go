package cadastre

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_Counters(t *testing.T) {
	r := NewReport()
	r.Inc("void_parcels", 2)
	r.Inc("void_parcels", 1)
	r.Inc("missing_parcels", 0)
	r.Inc("adjacent_parts", 4)

	assert.Equal(t, 3, r.Get("void_parcels"))
	assert.Zero(t, r.Get("missing_parcels"))
	assert.Equal(t, []string{"adjacent_parts", "void_parcels"}, r.Keys(), "zero increments are not recorded")
}

func TestReport_RunID(t *testing.T) {
	a, b := NewReport(), NewReport()
	_, err := uuid.Parse(a.RunID)
	require.NoError(t, err)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestReport_Save(t *testing.T) {
	r := NewReport()
	r.Inc("tasks", 3)
	r.Warn("parcel %s alone has %d parts", "P1", 400)
	r.Stage("clean", 25*time.Millisecond)
	fs := NewFeatureSet("parcels")
	fs.AddFeatures(feature("P1", square(0, 0, 10)))
	r.SetLayer(fs)

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, r.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, 3, got.Counters["tasks"])
	assert.Equal(t, []string{"parcel P1 alone has 400 parts"}, got.Warnings)
	assert.Equal(t, Stats{Features: 1, Vertices: 4, Area: 100}, got.Layers["parcels"])
	require.Len(t, got.Stages, 1)
	assert.Equal(t, 25*time.Millisecond, got.Stages[0].Duration)
}
