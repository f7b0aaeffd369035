package cadastre

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// taskPalette colours parcels by task, cycling when there are more tasks.
var taskPalette = []color.NRGBA{
	{100, 149, 237, 160}, // Cornflower blue
	{255, 99, 71, 150},   // Tomato
	{60, 179, 113, 150},  // Medium sea green
	{255, 165, 0, 150},   // Orange
	{147, 112, 219, 150}, // Medium purple
	{32, 178, 170, 150},  // Light sea green
	{240, 128, 128, 150}, // Light coral
	{189, 183, 107, 150}, // Dark khaki
}

// nrgbaToRGBA converts color.NRGBA to the premultiplied color.RGBA canvas expects.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}

// PreviewRenderer draws parcels coloured by task with building outlines on top.
type PreviewRenderer struct {
	Parcels    *FeatureSet
	Buildings  *FeatureSet
	Scale      float64           // canvas millimetres per world unit
	Padding    float64           // padding in world units
	Resolution canvas.Resolution // PNG resolution
	Labels     bool              // draw task labels on PNG output
}

// NewPreviewRenderer creates a renderer with default settings. buildings may be nil.
func NewPreviewRenderer(parcels, buildings *FeatureSet) *PreviewRenderer {
	return &PreviewRenderer{
		Parcels:    parcels,
		Buildings:  buildings,
		Scale:      1.0,
		Padding:    10.0,
		Resolution: canvas.DPMM(4),
		Labels:     true,
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the preview as SVG.
func (r *PreviewRenderer) RenderToSVG(w io.Writer) error {
	bound := r.bound()
	width, height := r.size(bound)
	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, bound, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the preview as PNG.
func (r *PreviewRenderer) RenderToPNG(w io.Writer) error {
	bound := r.bound()
	width, height := r.size(bound)
	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, bound, width, height)
	if r.Labels {
		r.drawLabels(rast, bound, height)
	}
	return png.Encode(w, rast)
}

// TaskColors maps each task label to its palette colour, in label order.
func (r *PreviewRenderer) TaskColors() map[string]color.NRGBA {
	var labels []string
	seen := make(map[string]bool)
	for _, f := range r.Parcels.Features() {
		t := f.Attrs.String(AttrTask)
		if !seen[t] {
			seen[t] = true
			labels = append(labels, t)
		}
	}
	sort.Strings(labels)
	colors := make(map[string]color.NRGBA, len(labels))
	for i, l := range labels {
		colors[l] = taskPalette[i%len(taskPalette)]
	}
	return colors
}

func (r *PreviewRenderer) bound() orb.Bound {
	var b orb.Bound
	first := true
	for _, fs := range []*FeatureSet{r.Parcels, r.Buildings} {
		if fs == nil {
			continue
		}
		for _, f := range fs.Features() {
			if f.Geometry == nil {
				continue
			}
			fb := f.Geometry.Bound()
			if first {
				b, first = fb, false
			} else {
				b = b.Union(fb)
			}
		}
	}
	return b
}

func (r *PreviewRenderer) size(b orb.Bound) (float64, float64) {
	width := (b.Max[0]-b.Min[0]+2*r.Padding)*r.Scale + 1
	height := (b.Max[1]-b.Min[1]+2*r.Padding)*r.Scale + 1
	return width, height
}

func (r *PreviewRenderer) toCanvas(b orb.Bound, p orb.Point) (float64, float64) {
	return (p[0] - b.Min[0] + r.Padding) * r.Scale, (p[1] - b.Min[1] + r.Padding) * r.Scale
}

func (r *PreviewRenderer) path(b orb.Bound, mp orb.MultiPolygon) *canvas.Path {
	cp := &canvas.Path{}
	for _, poly := range mp {
		for _, ring := range poly {
			for i, pt := range ring {
				cx, cy := r.toCanvas(b, pt)
				if i == 0 {
					cp.MoveTo(cx, cy)
				} else {
					cp.LineTo(cx, cy)
				}
			}
			cp.Close()
		}
	}
	return cp
}

func (r *PreviewRenderer) renderToCanvas(renderer canvasRenderer, b orb.Bound, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	colors := r.TaskColors()
	for _, f := range r.Parcels.Features() {
		mp := f.MultiPolygon()
		if len(mp) == 0 {
			continue
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(colors[f.Attrs.String(AttrTask)])}
		style.Stroke = canvas.Paint{Color: canvas.Gray}
		style.StrokeWidth = 0.2 * r.Scale
		renderer.RenderPath(r.path(b, mp), style, canvas.Identity)
	}

	if r.Buildings == nil {
		return
	}
	outline := canvas.DefaultStyle
	outline.Fill = canvas.Paint{Color: canvas.Transparent}
	outline.Stroke = canvas.Paint{Color: canvas.Black}
	outline.StrokeWidth = 0.3 * r.Scale

	part := outline
	part.Stroke = canvas.Paint{Color: canvas.Gray}
	part.StrokeWidth = 0.1 * r.Scale

	for _, f := range r.Buildings.Features() {
		mp := f.MultiPolygon()
		if len(mp) == 0 {
			continue
		}
		style := outline
		if IsPart(f.LocalID()) {
			style = part
		}
		renderer.RenderPath(r.path(b, mp), style, canvas.Identity)
	}
}

// drawLabels writes each task label once, at the centroid of its largest parcel.
func (r *PreviewRenderer) drawLabels(img draw.Image, b orb.Bound, height float64) {
	type anchor struct {
		at   orb.Point
		area float64
	}
	anchors := make(map[string]anchor)
	for _, f := range r.Parcels.Features() {
		label := f.Attrs.String(AttrTask)
		mp := f.MultiPolygon()
		if label == "" || len(mp) == 0 {
			continue
		}
		c, area := planar.CentroidArea(mp)
		if a, ok := anchors[label]; !ok || area > a.area {
			anchors[label] = anchor{at: c, area: area}
		}
	}

	dpmm := r.Resolution.DPMM()
	for label, a := range anchors {
		cx, cy := r.toCanvas(b, a.at)
		x := int(cx * dpmm)
		y := int((height - cy) * dpmm)
		drawText(img, x, y, label, color.RGBA{0, 0, 0, 255})
	}
}

// drawText renders text onto an image at the specified position
func drawText(img draw.Image, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
