package cadastre

import (
	"fmt"
)

// Layers holds the input layers of a run. Addresses may be nil.
type Layers struct {
	Parcels   *FeatureSet
	Buildings *FeatureSet
	Addresses *FeatureSet
}

// Result is what a run produces besides the mutated layers.
type Result struct {
	Tasks     map[string]string
	Entrances map[FeatureID]EntranceClass
	Report    *Report
}

// Run executes the whole pipeline on layers in place. A domain error from any
// stage aborts the run; the report is returned either way.
func (e *Engine) Run(layers *Layers) (*Result, error) {
	if layers == nil || layers.Parcels == nil || layers.Buildings == nil {
		return nil, NewError(ErrCodeInvalidConfig, "parcels and buildings layers are required")
	}
	if err := e.Config.Validate(); err != nil {
		return nil, err
	}
	parcels, buildings := layers.Parcels, layers.Buildings
	for _, fs := range []*FeatureSet{parcels, buildings, layers.Addresses} {
		if fs != nil {
			fs.SetIndexCellSize(e.Config.IndexCellSize)
		}
	}
	result := &Result{Report: e.Report}

	e.Logger.Info("Starting run", "run", e.Report.RunID,
		"parcels", parcels.Len(), "buildings", buildings.Len())

	steps := []struct {
		name string
		fn   func() error
	}{
		{"clean_parcels", func() error {
			e.Clean(parcels, nil)
			return nil
		}},
		{"clean_buildings", func() error {
			e.ExplodeMultiParts(buildings, nil)
			e.RemoveOutsideParts(buildings)
			e.Clean(buildings, func(f *Feature) bool { return !IsPart(f.LocalID()) })
			return nil
		}},
		{"merge_building_parts", func() error {
			e.MergeBuildingParts(buildings)
			e.Simplify(buildings)
			e.Validate(buildings)
			return nil
		}},
		{"parcels", func() error {
			e.DeleteVoidParcels(parcels, buildings)
			if err := e.CreateMissingParcels(parcels, buildings); err != nil {
				return err
			}
			e.CountParts(parcels, buildings)
			return nil
		}},
		{"tasks", func() error {
			before := TotalParts(parcels)
			adjacent, err := e.MergeByAdjacentBuildings(parcels, buildings)
			if err != nil {
				return err
			}
			budget, err := e.MergeByPartsCount(parcels, e.Config.Tasks.MaxParts, e.Config.Tasks.Buffer)
			if err != nil {
				return err
			}
			if after := TotalParts(parcels); after != before {
				return NewError(ErrCodeInvariant, "part count not conserved: %d before, %d after", before, after)
			}
			result.Tasks = ComposeRenames(adjacent, budget)
			AssignTasks(result.Tasks, parcels, buildings, layers.Addresses)
			return nil
		}},
		{"addresses", func() error {
			if layers.Addresses == nil {
				return nil
			}
			result.Entrances = e.MoveAddress(buildings, layers.Addresses)
			return nil
		}},
	}

	for _, step := range steps {
		if err := e.timed(step.name, step.fn); err != nil {
			e.Logger.Error("Run aborted", "stage", step.name, "err", err)
			return result, fmt.Errorf("stage %s: %w", step.name, err)
		}
	}

	for _, fs := range []*FeatureSet{parcels, buildings, layers.Addresses} {
		if fs != nil {
			e.Report.SetLayer(fs)
		}
	}
	e.Logger.Info("Run finished", "run", e.Report.RunID, "tasks", parcels.Len(), "warnings", len(e.Report.Warnings))
	return result, nil
}
