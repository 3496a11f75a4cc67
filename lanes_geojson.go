package lanegraph

import (
	"fmt"
	"os"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/pkg/errors"
)

/* Lane feature import/export (GeoJSON) */

// Recognized lane feature properties
const (
	lanePropFID           = "fid"
	lanePropJoinFID       = "join_fid"
	lanePropSegmentLength = "segment_length"
	lanePropTotalLength   = "total_length"
	lanePropStoplineNode  = "stopline_node"
	lanePropMinNode       = "min_node"
	lanePropMaxNode       = "max_node"
	lanePropOrder         = "order"
)

// ImportLanesFromGeoJSON loads pre-segmented lane features. The
// geometry must be in a projected (planar, meters) coordinate system:
// centroid distances feed the near-radius and crossing thresholds
// directly. A feature without a 'fid' property is fatal.
func ImportLanesFromGeoJSON(fname string, cfg GraphConfig, verbose bool) (map[LaneID]*Lane, error) {
	if verbose {
		fmt.Printf("Reading lane features: '%s'...", fname)
	}
	st := time.Now()

	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read lanes file")
	}
	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't parse lanes file '%s'", fname)
	}

	lanes := make(map[LaneID]*Lane, len(collection.Features))
	for i, feature := range collection.Features {
		fid, err := feature.PropertyInt(lanePropFID)
		if err != nil {
			return nil, fmt.Errorf("Missing required field '%s' on feature %d in lanes file '%s'", lanePropFID, i, fname)
		}
		laneID := LaneID(fid)
		if _, ok := lanes[laneID]; ok {
			return nil, fmt.Errorf("Duplicate lane id %d in lanes file '%s'", fid, fname)
		}

		lane := &Lane{
			ID:            laneID,
			JoinFID:       NoJoinFID,
			SegmentLength: cfg.SegmentLength,
		}
		if joinFID, err := feature.PropertyInt(lanePropJoinFID); err == nil {
			lane.JoinFID = int64(joinFID)
		}
		if segmentLength, err := feature.PropertyFloat64(lanePropSegmentLength); err == nil && segmentLength > 0 {
			lane.SegmentLength = segmentLength
		}
		if stopline, err := feature.PropertyInt(lanePropStoplineNode); err == nil {
			stoplineID := NodeID(stopline)
			lane.StoplineNode = &stoplineID
		}
		// Simplified declaration: an explicit node range instead of a
		// generated node list
		if minNode, errMin := feature.PropertyInt(lanePropMinNode); errMin == nil {
			maxNode, errMax := feature.PropertyInt(lanePropMaxNode)
			if errMax != nil {
				return nil, fmt.Errorf("Lane %d declares '%s' without '%s' in lanes file '%s'", fid, lanePropMinNode, lanePropMaxNode, fname)
			}
			order, _ := feature.PropertyString(lanePropOrder)
			lane.Nodes = nodesFromRange(NodeID(minNode), NodeID(maxNode), order == "desc")
		}

		geom, err := geometryFromGeoJSON(feature.Geometry)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad geometry for lane %d in lanes file '%s'", fid, fname)
		}
		lane.SetGeometry(geom)

		if totalLength, err := feature.PropertyFloat64(lanePropTotalLength); err == nil && totalLength > 0 {
			lane.TotalLength = totalLength
		} else if line, ok := geom.(orb.LineString); ok {
			lane.TotalLength = planar.Length(line)
		} else {
			return nil, fmt.Errorf("Missing required field '%s' for polygonal lane %d in lanes file '%s'", lanePropTotalLength, fid, fname)
		}

		lanes[laneID] = lane
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tLanes: %d\n", len(lanes))
	}
	return lanes, nil
}

// ExportLanesToGeoJSON writes lane features back out, with derived
// attributes attached, for plotting collaborators
func ExportLanesToGeoJSON(fname string, lanes map[LaneID]*Lane) error {
	collection := geojson.NewFeatureCollection()
	for _, lane := range sortedLanes(lanes) {
		geometry, err := geometryToGeoJSON(lane.Geometry())
		if err != nil {
			return errors.Wrapf(err, "Can't convert geometry of lane %d", lane.ID)
		}
		feature := geojson.NewFeature(geometry)
		feature.SetProperty(lanePropFID, int(lane.ID))
		if lane.JoinFID != NoJoinFID {
			feature.SetProperty(lanePropJoinFID, int(lane.JoinFID))
		}
		feature.SetProperty(lanePropSegmentLength, lane.SegmentLength)
		feature.SetProperty(lanePropTotalLength, lane.TotalLength)
		feature.SetProperty("num_nodes", len(lane.Nodes))
		if lane.StoplineNode != nil {
			feature.SetProperty(lanePropStoplineNode, int(*lane.StoplineNode))
		}
		collection.AddFeature(feature)
	}

	data, err := collection.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Can't encode lane features")
	}
	if err := os.WriteFile(fname, data, 0644); err != nil {
		return errors.Wrap(err, "Can't write lanes file")
	}
	return nil
}

func geometryFromGeoJSON(geometry *geojson.Geometry) (orb.Geometry, error) {
	if geometry == nil {
		return nil, errors.New("feature has no geometry")
	}
	switch {
	case geometry.IsLineString():
		line := make(orb.LineString, 0, len(geometry.LineString))
		for _, pt := range geometry.LineString {
			if len(pt) < 2 {
				return nil, errors.New("line point with fewer than two coordinates")
			}
			line = append(line, orb.Point{pt[0], pt[1]})
		}
		return line, nil
	case geometry.IsPolygon():
		polygon := make(orb.Polygon, 0, len(geometry.Polygon))
		for _, ring := range geometry.Polygon {
			orbRing := make(orb.Ring, 0, len(ring))
			for _, pt := range ring {
				if len(pt) < 2 {
					return nil, errors.New("ring point with fewer than two coordinates")
				}
				orbRing = append(orbRing, orb.Point{pt[0], pt[1]})
			}
			polygon = append(polygon, orbRing)
		}
		return polygon, nil
	default:
		return nil, errors.Errorf("unsupported geometry type '%s'", geometry.Type)
	}
}

func geometryToGeoJSON(geom orb.Geometry) (*geojson.Geometry, error) {
	switch g := geom.(type) {
	case orb.LineString:
		coords := make([][]float64, len(g))
		for i, pt := range g {
			coords[i] = []float64{pt[0], pt[1]}
		}
		return geojson.NewLineStringGeometry(coords), nil
	case orb.Polygon:
		rings := make([][][]float64, len(g))
		for i, ring := range g {
			coords := make([][]float64, len(ring))
			for j, pt := range ring {
				coords[j] = []float64{pt[0], pt[1]}
			}
			rings[i] = coords
		}
		return geojson.NewPolygonGeometry(rings), nil
	case nil:
		return nil, errors.New("lane has no geometry")
	default:
		return nil, errors.Errorf("unsupported geometry type %T", geom)
	}
}
