package cadastre

import (
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ReadFeatureSet loads a GeoJSON FeatureCollection into a new layer.
// Feature ids follow file order; polygons are stored as multipolygons.
func ReadFeatureSet(path, name string) (*FeatureSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return DecodeFeatureSet(data, name)
}

// DecodeFeatureSet parses GeoJSON bytes into a new layer.
func DecodeFeatureSet(data []byte, name string) (*FeatureSet, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s GeoJSON: %w", name, err)
	}

	fs := NewFeatureSet(name)
	features := make([]*Feature, 0, len(fc.Features))
	for i, gf := range fc.Features {
		switch gf.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon, orb.Point:
		default:
			return nil, fmt.Errorf("%s feature %d: unsupported geometry %T", name, i, gf.Geometry)
		}
		attrs := Attributes{}
		for k, v := range gf.Properties {
			attrs[k] = v
		}
		features = append(features, &Feature{Geometry: gf.Geometry, Attrs: attrs})
	}
	fs.AddFeatures(features...)
	return fs, nil
}

// EncodeFeatureSet serialises a layer as a GeoJSON FeatureCollection.
func EncodeFeatureSet(fs *FeatureSet) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, f := range fs.Features() {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = int64(f.ID)
		for k, v := range f.Attrs {
			gf.Properties[k] = v
		}
		fc.Append(gf)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", fs.Name, err)
	}
	return data, nil
}

// WriteFeatureSet saves a layer as GeoJSON.
func WriteFeatureSet(path string, fs *FeatureSet) error {
	data, err := EncodeFeatureSet(fs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
