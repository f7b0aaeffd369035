package cadastre

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// FeatureID identifies a feature inside a FeatureSet.
type FeatureID int64

// Attribute keys shared by the cadastral layers.
const (
	AttrLocalID  = "localId"
	AttrLevAbove = "lev_above"
	AttrLevBelow = "lev_below"
	AttrLayer    = "layer"
	AttrFixme    = "fixme"
	AttrZone     = "zone"
	AttrParts    = "parts"
	AttrSpec     = "spec"
	AttrTask     = "task"
)

// Attributes is the attribute map of a feature.
type Attributes map[string]interface{}

// String returns the value at key formatted as a string, or "" when absent.
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the value at key as an int. JSON numbers decode as float64,
// numeric strings are parsed, anything else yields 0.
func (a Attributes) Int(key string) int {
	switch t := a[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(math.Round(t))
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// Clone returns a shallow copy of the map.
func (a Attributes) Clone() Attributes {
	c := make(Attributes, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}

// Feature is a single record of a layer. Polygon layers carry an
// orb.MultiPolygon, the address layer carries an orb.Point.
type Feature struct {
	ID       FeatureID
	Geometry orb.Geometry
	Attrs    Attributes
}

// MultiPolygon returns the polygon geometry of the feature or nil.
func (f *Feature) MultiPolygon() orb.MultiPolygon {
	switch g := f.Geometry.(type) {
	case orb.MultiPolygon:
		return g
	case orb.Polygon:
		return orb.MultiPolygon{g}
	}
	return nil
}

// Point returns the point geometry of the feature.
func (f *Feature) Point() (orb.Point, bool) {
	p, ok := f.Geometry.(orb.Point)
	return p, ok
}

// LocalID returns the cadastral local identifier.
func (f *Feature) LocalID() string {
	return f.Attrs.String(AttrLocalID)
}

// Ref returns the root reference shared by an outline, its parts, its pools
// and the parcel they belong to.
func (f *Feature) Ref() string {
	return RefOf(f.LocalID())
}

// Levels returns the level class of the feature.
func (f *Feature) Levels() LevelClass {
	return LevelClass{Above: f.Attrs.Int(AttrLevAbove), Below: f.Attrs.Int(AttrLevBelow)}
}

// IsBuilding reports whether the local id denotes a building outline.
func IsBuilding(localID string) bool {
	return localID != "" && !strings.Contains(localID, "_")
}

// IsPart reports whether the local id denotes a building part.
func IsPart(localID string) bool {
	return strings.Contains(localID, "_part")
}

// IsPool reports whether the local id denotes a pool.
func IsPool(localID string) bool {
	return strings.Contains(localID, "_PI.")
}

// RefOf returns the root reference of a local id.
func RefOf(localID string) string {
	ref := strings.SplitN(localID, "_", 2)[0]
	if i := strings.LastIndex(ref, "."); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

// LevelClass buckets building parts by floor counts.
type LevelClass struct {
	Above int
	Below int
}

func (l LevelClass) String() string {
	return fmt.Sprintf("%d/%d", l.Above, l.Below)
}

// EntranceClass is the outcome of conflating an entrance address.
type EntranceClass string

const (
	EntranceRemote  EntranceClass = "remote"
	EntranceInner   EntranceClass = "inner"
	EntranceCorner  EntranceClass = "corner"
	EntranceShared  EntranceClass = "shared"
	EntranceSnapped EntranceClass = "snapped"
)

// SpecEntrance is the address spec value marking entrances.
const SpecEntrance = "Entrance"

// Fixme markers written on defective outlines, parts and parcels.
const (
	FixmePartBigger   = "This part is bigger than its building"
	FixmePartsNotFill = "Building parts don't fill the building outline"
	FixmeAreaSmall    = "Check, area too small"
	FixmeAreaBig      = "Check, area too big"
	FixmeMergeRefused = "Parcel geometry could not be merged"
)

// Thresholds groups the geometric tolerances. Distances are in map units,
// angles in degrees.
type Thresholds struct {
	DupThr         float64 `yaml:"dupThr"`
	DistThr        float64 `yaml:"distThr"`
	CathThr        float64 `yaml:"cathThr"`
	StraightThr    float64 `yaml:"straightThr"`
	AcuteThr       float64 `yaml:"acuteThr"`
	AcuteInv       float64 `yaml:"acuteInv"`
	DistInv        float64 `yaml:"distInv"`
	MinArea        float64 `yaml:"minArea"`
	AddrThr        float64 `yaml:"addrThr"`
	EntranceThr    float64 `yaml:"entranceThr"`
	WarningMinArea float64 `yaml:"warningMinArea"`
	WarningMaxArea float64 `yaml:"warningMaxArea"`
}

// TaskConfig bounds the size of the work units.
type TaskConfig struct {
	MaxParts    int     `yaml:"maxParts"`
	Buffer      float64 `yaml:"buffer"`
	MissingZone string  `yaml:"missingZone"`
}

// MQTTConfig holds the broker used to publish run reports.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
	QoS           int    `yaml:"qos"`
	Retain        bool   `yaml:"retain"`
}

// DebugConfig enables the debug point layers.
type DebugConfig struct {
	Dir string `yaml:"dir,omitempty"`
}

// Config is the unified engine configuration.
type Config struct {
	Thresholds            Thresholds    `yaml:"thresholds"`
	Tasks                 TaskConfig    `yaml:"tasks"`
	BufferSize            int           `yaml:"bufferSize"`
	IndexCellSize         float64       `yaml:"indexCellSize"`
	SimplifyBuildingParts bool          `yaml:"simplifyBuildingParts"`
	Transform             *AffineMatrix `yaml:"transform,omitempty"`
	Debug                 DebugConfig   `yaml:"debug,omitempty"`
	MQTT                  MQTTConfig    `yaml:"mqtt,omitempty"`
}
