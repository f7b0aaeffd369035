package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/cadmesh/cadastre"
)

const testParcels = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"localId":"P1","zone":"001"},
  "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}},
 {"type":"Feature","properties":{"localId":"P2","zone":"002"},
  "geometry":{"type":"Polygon","coordinates":[[[10,0],[20,0],[20,10],[10,10],[10,0]]]}}
]}`

const testBuildings = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"localId":"P1"},
  "geometry":{"type":"Polygon","coordinates":[[[2,2],[10,2],[10,8],[2,8],[2,2]]]}},
 {"type":"Feature","properties":{"localId":"P2"},
  "geometry":{"type":"Polygon","coordinates":[[[10,2],[18,2],[18,8],[10,8],[10,2]]]}}
]}`

const testAddresses = `{"type":"FeatureCollection","features":[
 {"type":"Feature","properties":{"localId":"AD.P2","spec":"Entrance"},
  "geometry":{"type":"Point","coordinates":[14,1.5]}}
]}`

func writeFixtures(t *testing.T) AppOptions {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		return path
	}
	return AppOptions{
		ParcelsPath:   write("parcels.geojson", testParcels),
		BuildingsPath: write("buildings.geojson", testBuildings),
		AddressesPath: write("addresses.geojson", testAddresses),
		OutDir:        filepath.Join(dir, "out"),
	}
}

func discardLogger() *log.Logger {
	return newLogger(io.Discard, log.InfoLevel)
}

func TestApp_RunWritesOutputs(t *testing.T) {
	opts := writeFixtures(t)
	opts.PreviewPath = filepath.Join(opts.OutDir, "preview.svg")

	result, err := NewApp(nil, discardLogger(), opts).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"P2": "P1"}, result.Tasks)

	for _, name := range []string{"parcels.geojson", "buildings.geojson", "addresses.geojson", "tasks.json", "report.json", "preview.svg"} {
		_, err := os.Stat(filepath.Join(opts.OutDir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(opts.OutDir, "tasks.json"))
	require.NoError(t, err)
	var tasks map[string]string
	require.NoError(t, json.Unmarshal(data, &tasks))
	assert.Equal(t, result.Tasks, tasks)

	addresses, err := cadastre.ReadFeatureSet(filepath.Join(opts.OutDir, "addresses.geojson"), "addresses")
	require.NoError(t, err)
	f, _ := addresses.Get(1)
	p, _ := f.Point()
	assert.Equal(t, orb.Point{14, 2}, p)
	assert.Equal(t, "P1", f.Attrs.String(cadastre.AttrTask))
}

func TestApp_RunAppliesAndRevertsTransform(t *testing.T) {
	opts := writeFixtures(t)
	cfg := cadastre.DefaultConfig()
	m := cadastre.Translation(440000, 4470000)
	cfg.Transform = &m

	_, err := NewApp(cfg, discardLogger(), opts).Run(context.Background())
	require.NoError(t, err)

	parcels, err := cadastre.ReadFeatureSet(filepath.Join(opts.OutDir, "parcels.geojson"), "parcels")
	require.NoError(t, err)
	f, _ := parcels.Get(1)
	b := f.MultiPolygon().Bound()
	assert.InDelta(t, 0, b.Min[0], 1e-6)
	assert.InDelta(t, 20, b.Max[0], 1e-6)
}

func TestApp_RunReportsFailure(t *testing.T) {
	opts := writeFixtures(t)
	noZone := `{"type":"FeatureCollection","features":[
	 {"type":"Feature","properties":{"localId":"P1"},
	  "geometry":{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}}]}`
	require.NoError(t, os.WriteFile(opts.ParcelsPath, []byte(noZone), 0644))

	_, err := NewApp(nil, discardLogger(), opts).Run(context.Background())

	require.Error(t, err)
	assert.True(t, cadastre.IsCode(err, cadastre.ErrCodeEmptyZone))
	_, statErr := os.Stat(filepath.Join(opts.OutDir, "report.json"))
	assert.NoError(t, statErr, "report written on failure")
	_, statErr = os.Stat(filepath.Join(opts.OutDir, "parcels.geojson"))
	assert.True(t, os.IsNotExist(statErr), "no layers written on failure")
}

func TestApp_RunValidatesOptions(t *testing.T) {
	_, err := NewApp(nil, discardLogger(), AppOptions{OutDir: t.TempDir()}).Run(context.Background())
	assert.Error(t, err)

	opts := writeFixtures(t)
	opts.BuildingsPath = filepath.Join(t.TempDir(), "missing.geojson")
	_, err = NewApp(nil, discardLogger(), opts).Run(context.Background())
	assert.Error(t, err)
}

func TestApp_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewApp(nil, discardLogger(), writeFixtures(t)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestApp_PublishWithoutBrokerIsBestEffort(t *testing.T) {
	opts := writeFixtures(t)
	opts.Publish = true

	_, err := NewApp(nil, discardLogger(), opts).Run(context.Background())
	assert.NoError(t, err)
}

func TestNewApp_DebugDirOverride(t *testing.T) {
	app := NewApp(nil, discardLogger(), AppOptions{DebugDir: "dbg"})
	assert.Equal(t, "dbg", app.Config.Debug.Dir)
}

func TestNewApp_InputTransformOptions(t *testing.T) {
	app := NewApp(nil, discardLogger(), AppOptions{ShiftX: 100, Rotate: 90, Scale: 2})
	require.NotNil(t, app.Config.Transform)
	p := app.Config.Transform.Apply(orb.Point{1, 0})
	assert.InDelta(t, 100, p[0], 1e-9)
	assert.InDelta(t, 2, p[1], 1e-9)

	cfg := cadastre.DefaultConfig()
	m := cadastre.Translation(0, 5)
	cfg.Transform = &m
	app = NewApp(cfg, discardLogger(), AppOptions{ShiftX: 100, Rotate: 90, Scale: 2})
	p = app.Config.Transform.Apply(orb.Point{1, 0})
	assert.InDelta(t, 90, p[0], 1e-9, "configured transform runs first")
	assert.InDelta(t, 2, p[1], 1e-9)

	assert.Nil(t, NewApp(nil, discardLogger(), AppOptions{Scale: 1}).Config.Transform)
}

func TestApp_RunRevertsShiftOption(t *testing.T) {
	opts := writeFixtures(t)
	opts.ShiftX, opts.ShiftY = 440000, 4470000

	_, err := NewApp(nil, discardLogger(), opts).Run(context.Background())
	require.NoError(t, err)

	parcels, err := cadastre.ReadFeatureSet(filepath.Join(opts.OutDir, "parcels.geojson"), "parcels")
	require.NoError(t, err)
	f, _ := parcels.Get(1)
	b := f.MultiPolygon().Bound()
	assert.InDelta(t, 0, b.Min[0], 1e-6)
	assert.InDelta(t, 0, b.Min[1], 1e-6)
}
