package lanegraph

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ClassifierStrategy selects how observed transition counts are turned
// into direct/near/noise classes
type ClassifierStrategy string

const (
	// ClassifierCountThreshold discards counts below an absolute
	// threshold, the maximum becomes direct and the rest near
	ClassifierCountThreshold = ClassifierStrategy("count_threshold")
	// ClassifierLowerQuartile discards counts below Q1 of the per-source
	// distribution, the maximum becomes direct and [Q1, max) near
	ClassifierLowerQuartile = ClassifierStrategy("lower_quartile")
)

// OccupancyLengthSource selects where a vehicle's physical length comes
// from during occupancy computation
type OccupancyLengthSource string

const (
	// LengthFromClass uses the per-class lookup table
	LengthFromClass = OccupancyLengthSource("class")
	// LengthFromWidth derives the class from the observed width field
	// and falls back to the class table when the width is absent
	LengthFromWidth = OccupancyLengthSource("width")
)

// GraphConfig carries every tunable of the graph-building pipeline
type GraphConfig struct {
	// Node length in meters
	SegmentLength float64 `json:"segment_length"`
	// Radius for near-candidate centroid queries, meters
	NearRadiusMeters float64 `json:"near_radius_meters"`
	// Minimum centroid distance for a trajectory jump to count as a
	// crossing edge instead of coincident-id noise, meters
	CrossingMinDistanceMeters float64 `json:"crossing_min_distance_meters"`
	Classifier                ClassifierStrategy `json:"classifier"`
	// Absolute noise threshold for ClassifierCountThreshold
	NoiseCountThreshold int `json:"noise_count_threshold"`
	// Highway tag values accepted by the OSM lane importer
	OsmHighwayTags []string `json:"osm_highway_tags,omitempty"`
	// Length of lane features generated from OSM ways, meters
	OsmLaneLengthMeters float64 `json:"osm_lane_length_meters,omitempty"`
}

func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		SegmentLength:             10.0,
		NearRadiusMeters:          6.0,
		CrossingMinDistanceMeters: 2.0,
		Classifier:                ClassifierCountThreshold,
		NoiseCountThreshold:       10,
		OsmHighwayTags:            []string{"motorway", "primary", "secondary", "tertiary", "residential", "unclassified"},
		OsmLaneLengthMeters:       30.0,
	}
}

// AggregationConfig carries every tunable of windowed aggregation.
// All windows are full widths in the same time unit as the trajectory
// timestamps.
type AggregationConfig struct {
	SpeedWindow     float64 `json:"speed_window"`
	FlowWindow      float64 `json:"flow_window"`
	OccupancyWindow float64 `json:"occupancy_window"`
	// Distance between output time steps
	OutputStep float64 `json:"output_step"`
	// Share of a straddling vehicle's length kept on its current node;
	// the remainder spills into the direct successor
	SpilloverRatio float64 `json:"spillover_ratio"`
	// Base k of the log-compressed flow feature log(1+n)/log(k)
	FlowLogBase float64 `json:"flow_log_base"`
	// Divisor for occupancy on nodes that carry no segment length of
	// their own, meters
	DefaultSegmentLength float64 `json:"default_segment_length"`
	// Physical length per vehicle class, meters
	VehicleLengths      map[string]float64    `json:"vehicle_lengths"`
	DefaultVehicleClass string                `json:"default_vehicle_class"`
	LengthSource        OccupancyLengthSource `json:"length_source"`
	// Number of goroutines aggregating nodes; 1 keeps the run serial
	Workers int `json:"workers"`
}

func DefaultAggregationConfig() AggregationConfig {
	return AggregationConfig{
		SpeedWindow:          2.0,
		FlowWindow:           10.0,
		OccupancyWindow:      4.0,
		OutputStep:           1.0,
		SpilloverRatio:       0.75,
		FlowLogBase:          15.0,
		DefaultSegmentLength: 10.0,
		VehicleLengths: map[string]float64{
			"car":        4.0,
			"medium":     6.0,
			"heavy":      10.0,
			"motorcycle": 2.0,
		},
		DefaultVehicleClass: "car",
		LengthSource:        LengthFromClass,
		Workers:             1,
	}
}

// MaxWindow returns the widest of the three metric windows. The output
// time range is clipped by half of it on both sides so every metric
// always has a fully populated window.
func (cfg *AggregationConfig) MaxWindow() float64 {
	max := cfg.SpeedWindow
	if cfg.FlowWindow > max {
		max = cfg.FlowWindow
	}
	if cfg.OccupancyWindow > max {
		max = cfg.OccupancyWindow
	}
	return max
}

// VehicleLength resolves the physical length for a sample, honoring the
// configured length source
func (cfg *AggregationConfig) VehicleLength(class string, width float64) float64 {
	if cfg.LengthSource == LengthFromWidth && width > 0 {
		return cfg.VehicleLengths[classFromWidth(width)]
	}
	if length, ok := cfg.VehicleLengths[class]; ok {
		return length
	}
	return cfg.VehicleLengths[cfg.DefaultVehicleClass]
}

// classFromWidth buckets an observed vehicle width (meters) into the
// class table used for occupancy lengths
func classFromWidth(width float64) string {
	switch {
	case width < 1.2:
		return "motorcycle"
	case width < 2.0:
		return "car"
	case width < 2.4:
		return "medium"
	default:
		return "heavy"
	}
}

// PipelineConfig bundles both stages so one JSON file can describe a
// whole site
type PipelineConfig struct {
	Graph       GraphConfig       `json:"graph"`
	Aggregation AggregationConfig `json:"aggregation"`
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Graph:       DefaultGraphConfig(),
		Aggregation: DefaultAggregationConfig(),
	}
}

// LoadPipelineConfig reads a config file, applying defaults for every
// field the file leaves out
func LoadPipelineConfig(fname string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	data, err := os.ReadFile(fname)
	if err != nil {
		return cfg, errors.Wrap(err, "Can't read config file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "Can't parse config file '%s'", fname)
	}
	return cfg, nil
}
