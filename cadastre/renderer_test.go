package cadastre

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func previewLayers() (parcels, buildings *FeatureSet) {
	parcels, buildings = sharedWallLayers()
	AssignTasks(map[string]string{"P2": "P1"}, parcels, buildings)
	return parcels, buildings
}

func TestPreviewRenderer_TaskColors(t *testing.T) {
	parcels, buildings := previewLayers()
	r := NewPreviewRenderer(parcels, buildings)

	colors := r.TaskColors()

	require.Len(t, colors, 2)
	assert.Equal(t, taskPalette[0], colors["P1"])
	assert.Equal(t, taskPalette[1], colors["P3"])
}

func TestPreviewRenderer_SVG(t *testing.T) {
	parcels, buildings := previewLayers()
	var buf bytes.Buffer

	require.NoError(t, NewPreviewRenderer(parcels, buildings).RenderToSVG(&buf))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "svg root element")
	assert.True(t, strings.Contains(out, "<path"), "parcel paths")
}

func TestPreviewRenderer_PNG(t *testing.T) {
	parcels, _ := previewLayers()
	r := NewPreviewRenderer(parcels, nil)
	var buf bytes.Buffer

	require.NoError(t, r.RenderToPNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	// 40 x 10 world units plus padding, at 1 mm per unit and 4 dots per mm
	assert.InDelta(t, (40+20+1)*4, b.Dx(), 2)
	assert.InDelta(t, (10+20+1)*4, b.Dy(), 2)
}

func TestNrgbaToRGBA(t *testing.T) {
	tests := []struct {
		in   color.NRGBA
		want color.RGBA
	}{
		{color.NRGBA{255, 0, 0, 255}, color.RGBA{255, 0, 0, 255}},
		{color.NRGBA{255, 255, 255, 0}, color.RGBA{0, 0, 0, 0}},
		{color.NRGBA{255, 100, 0, 51}, color.RGBA{51, 20, 0, 51}},
	}
	for _, tt := range tests {
		if got := nrgbaToRGBA(tt.in); got != tt.want {
			t.Errorf("nrgbaToRGBA(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
