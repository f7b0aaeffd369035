package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/kwv/cadmesh/cadastre"
)

// AppOptions are the inputs and outputs of one run, as given on the command line.
type AppOptions struct {
	ParcelsPath   string
	BuildingsPath string
	AddressesPath string
	OutDir        string
	PreviewPath   string
	DebugDir      string
	Publish       bool

	// Input transform, applied after any configured one. Scale 0 means 1.
	ShiftX float64
	ShiftY float64
	Rotate float64
	Scale  float64
}

// inputTransform composes shift, rotation and scale; ok is false when the
// options leave coordinates untouched.
func (o AppOptions) inputTransform() (m cadastre.AffineMatrix, ok bool) {
	scale := o.Scale
	if scale == 0 {
		scale = 1
	}
	if o.ShiftX == 0 && o.ShiftY == 0 && o.Rotate == 0 && scale == 1 {
		return m, false
	}
	m = cadastre.Translation(o.ShiftX, o.ShiftY).
		Multiply(cadastre.RotationDeg(o.Rotate)).
		Multiply(cadastre.Scale(scale, scale))
	return m, true
}

// App encapsulates the application state and dependencies
type App struct {
	Config *cadastre.Config
	Logger *log.Logger
	AppOptions
}

// NewApp creates an App. A nil config means defaults.
func NewApp(cfg *cadastre.Config, logger *log.Logger, opts AppOptions) *App {
	if cfg == nil {
		cfg = cadastre.DefaultConfig()
	}
	if opts.DebugDir != "" {
		cfg.Debug.Dir = opts.DebugDir
	}
	if m, ok := opts.inputTransform(); ok {
		if cfg.Transform != nil {
			m = m.Multiply(*cfg.Transform)
		}
		cfg.Transform = &m
	}
	return &App{Config: cfg, Logger: logger, AppOptions: opts}
}

// Run loads the layers, runs the engine and writes every output. The report
// is written even when a stage fails.
func (a *App) Run(ctx context.Context) (*cadastre.Result, error) {
	if a.ParcelsPath == "" || a.BuildingsPath == "" {
		return nil, fmt.Errorf("--parcels and --buildings are required")
	}
	if a.OutDir == "" {
		return nil, fmt.Errorf("--out is required")
	}
	if err := os.MkdirAll(a.OutDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	if a.Config.Debug.Dir != "" {
		if err := os.MkdirAll(a.Config.Debug.Dir, 0755); err != nil {
			return nil, fmt.Errorf("creating debug directory: %w", err)
		}
	}

	layers, err := a.loadLayers()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var inverse cadastre.AffineMatrix
	if m := a.Config.Transform; m != nil {
		a.Logger.Info("Applying input transform")
		inverse = m.Inverse()
		a.eachLayer(layers, func(fs *cadastre.FeatureSet) { cadastre.TransformFeatureSet(fs, *m) })
	}

	engine := cadastre.NewEngine(a.Config, a.Logger)
	result, runErr := engine.Run(layers)

	if a.Config.Transform != nil {
		a.eachLayer(layers, func(fs *cadastre.FeatureSet) { cadastre.TransformFeatureSet(fs, inverse) })
	}

	reportPath := filepath.Join(a.OutDir, "report.json")
	if err := engine.Report.Save(reportPath); err != nil {
		a.Logger.Error("Failed to save report", "err", err)
	}
	if runErr != nil {
		return result, runErr
	}

	if err := a.writeOutputs(layers, result); err != nil {
		return result, err
	}
	if a.PreviewPath != "" {
		if err := a.writePreview(layers); err != nil {
			return result, err
		}
	}
	if a.Publish {
		if err := a.publish(result); err != nil {
			// Publishing is best effort; the files are already written.
			a.Logger.Warn("Publishing failed", "err", err)
		}
	}
	return result, nil
}

func (a *App) loadLayers() (*cadastre.Layers, error) {
	parcels, err := cadastre.ReadFeatureSet(a.ParcelsPath, "parcels")
	if err != nil {
		return nil, err
	}
	buildings, err := cadastre.ReadFeatureSet(a.BuildingsPath, "buildings")
	if err != nil {
		return nil, err
	}
	layers := &cadastre.Layers{Parcels: parcels, Buildings: buildings}
	if a.AddressesPath != "" {
		if layers.Addresses, err = cadastre.ReadFeatureSet(a.AddressesPath, "addresses"); err != nil {
			return nil, err
		}
	}
	a.Logger.Debug("Loaded layers", "parcels", parcels.Len(), "buildings", buildings.Len())
	return layers, nil
}

func (a *App) eachLayer(layers *cadastre.Layers, fn func(*cadastre.FeatureSet)) {
	for _, fs := range []*cadastre.FeatureSet{layers.Parcels, layers.Buildings, layers.Addresses} {
		if fs != nil {
			fn(fs)
		}
	}
}

func (a *App) writeOutputs(layers *cadastre.Layers, result *cadastre.Result) error {
	var werr error
	a.eachLayer(layers, func(fs *cadastre.FeatureSet) {
		if werr != nil {
			return
		}
		path := filepath.Join(a.OutDir, fs.Name+".geojson")
		werr = cadastre.WriteFeatureSet(path, fs)
		if werr == nil {
			a.Logger.Info("Wrote layer", "path", path, "features", fs.Len())
		}
	})
	if werr != nil {
		return werr
	}

	data, err := json.MarshalIndent(result.Tasks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tasks: %w", err)
	}
	path := filepath.Join(a.OutDir, "tasks.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing tasks: %w", err)
	}
	a.Logger.Info("Wrote tasks", "path", path, "parcels", len(result.Tasks))
	return nil
}

// writePreview renders SVG when the preview path ends in .svg, PNG otherwise.
func (a *App) writePreview(layers *cadastre.Layers) error {
	f, err := os.Create(a.PreviewPath)
	if err != nil {
		return fmt.Errorf("creating preview: %w", err)
	}
	defer f.Close()

	r := cadastre.NewPreviewRenderer(layers.Parcels, layers.Buildings)
	if strings.EqualFold(filepath.Ext(a.PreviewPath), ".svg") {
		err = r.RenderToSVG(f)
	} else {
		err = r.RenderToPNG(f)
	}
	if err != nil {
		return fmt.Errorf("rendering preview: %w", err)
	}
	a.Logger.Info("Wrote preview", "path", a.PreviewPath)
	return nil
}

func (a *App) publish(result *cadastre.Result) error {
	client, err := cadastre.ConnectMQTT(a.Config.MQTT, a.Logger)
	if err != nil {
		return err
	}
	if client == nil {
		a.Logger.Warn("--publish given but no MQTT broker configured")
		return nil
	}
	defer client.Disconnect(250)

	p := cadastre.NewReportPublisherFromConfig(client, a.Config.MQTT)
	if err := p.PublishReport(result.Report); err != nil {
		return err
	}
	if err := p.PublishTasks(result.Report.RunID, result.Tasks); err != nil {
		return err
	}
	a.Logger.Info("Published report", "run", result.Report.RunID)
	return nil
}
