package lanegraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
)

/* Lane features from an OSM extract */

// OSMScanner abstracts the pbf and xml scanners
type OSMScanner interface {
	Scan() bool
	Close() error
	Err() error
	Object() osm.Object
}

type osmWayData struct {
	id    osm.WayID
	nodes []osm.NodeID
}

// ImportLanesFromOSM builds lane features from an OSM extract for sites
// without a pre-segmented shapefile export. Every accepted way becomes
// one road group (its id is the join key) and is split into lane
// features of roughly OsmLaneLengthMeters. Geometry is projected to
// local planar meters so downstream thresholds keep their units.
func ImportLanesFromOSM(fname string, cfg GraphConfig, verbose bool) (map[LaneID]*Lane, error) {
	if verbose {
		fmt.Printf("Opening file: '%s'...\n", fname)
	}

	acceptedTags := make(map[string]struct{}, len(cfg.OsmHighwayTags))
	for _, tag := range cfg.OsmHighwayTags {
		acceptedTags[tag] = struct{}{}
	}

	/* Process ways */
	if verbose {
		fmt.Print("\tProcessing ways... ")
	}
	st := time.Now()
	ways := []osmWayData{}
	nodesSeen := make(map[osm.NodeID]struct{})
	{
		scannerWays, file, err := openOSMScanner(fname)
		if err != nil {
			return nil, err
		}
		for scannerWays.Scan() {
			obj := scannerWays.Object()
			if obj.ObjectID().Type() != "way" {
				continue
			}
			way := obj.(*osm.Way)
			highway := way.Tags.Find("highway")
			if highway == "" {
				continue
			}
			if _, ok := acceptedTags[highway]; !ok {
				continue
			}
			prepared := osmWayData{id: way.ID, nodes: make([]osm.NodeID, 0, len(way.Nodes))}
			for _, node := range way.Nodes {
				prepared.nodes = append(prepared.nodes, node.ID)
				nodesSeen[node.ID] = struct{}{}
			}
			if len(prepared.nodes) >= 2 {
				ways = append(ways, prepared)
			}
		}
		err = scannerWays.Err()
		scannerWays.Close()
		file.Close()
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan ways")
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
	}

	/* Process nodes */
	if verbose {
		fmt.Print("\tProcessing nodes... ")
	}
	st = time.Now()
	nodeCoords := make(map[osm.NodeID]GeoPoint, len(nodesSeen))
	{
		scannerNodes, file, err := openOSMScanner(fname)
		if err != nil {
			return nil, err
		}
		for scannerNodes.Scan() {
			obj := scannerNodes.Object()
			if obj.ObjectID().Type() != "node" {
				continue
			}
			node := obj.(*osm.Node)
			if _, ok := nodesSeen[node.ID]; !ok {
				continue
			}
			nodeCoords[node.ID] = GeoPoint{Lon: node.Lon, Lat: node.Lat}
		}
		err = scannerNodes.Err()
		scannerNodes.Close()
		file.Close()
		if err != nil {
			return nil, errors.Wrap(err, "Can't scan nodes")
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
	}

	/* Split ways into lane features */
	if verbose {
		fmt.Print("\tPreparing lane features... ")
	}
	st = time.Now()
	lanes := make(map[LaneID]*Lane)
	nextLaneID := LaneID(1)
	refLat := 0.0
	refFound := false
	for _, way := range ways {
		line := make([]GeoPoint, 0, len(way.nodes))
		for _, nodeID := range way.nodes {
			coord, ok := nodeCoords[nodeID]
			if !ok {
				// Way reaches outside the extract
				continue
			}
			line = append(line, coord)
		}
		if len(line) < 2 {
			continue
		}
		if !refFound {
			refLat = findCentroid(line).Lat
			refFound = true
		}
		for _, chunk := range splitLineByLength(line, cfg.OsmLaneLengthMeters) {
			lane := &Lane{
				ID:            nextLaneID,
				JoinFID:       int64(way.id),
				SegmentLength: cfg.SegmentLength,
				TotalLength:   getSphericalLength(chunk) * 1000.0,
			}
			lane.SetGeometry(projectLocal(chunk, refLat))
			lanes[nextLaneID] = lane
			nextLaneID++
		}
	}
	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tLanes: %d (from %d ways)\n", len(lanes), len(ways))
	}
	return lanes, nil
}

func openOSMScanner(fname string) (OSMScanner, *os.File, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, nil, errors.Wrap(err, "Can't open OSM file")
	}
	ext := filepath.Ext(fname)
	switch ext {
	case ".osm", ".xml":
		return osmxml.New(context.Background(), file), file, nil
	case ".pbf":
		return osmpbf.New(context.Background(), file, 4), file, nil
	default:
		file.Close()
		return nil, nil, fmt.Errorf("File extension '%s' for file '%s' is not handled yet", ext, fname)
	}
}

// splitLineByLength cuts a geographic polyline into chunks of roughly
// the requested length (meters). The final chunk keeps the remainder.
func splitLineByLength(line []GeoPoint, chunkMeters float64) [][]GeoPoint {
	if chunkMeters <= 0 || len(line) < 2 {
		return [][]GeoPoint{line}
	}
	chunks := [][]GeoPoint{}
	current := []GeoPoint{line[0]}
	accumulated := 0.0
	for i := 1; i < len(line); i++ {
		prev := current[len(current)-1]
		segMeters := greatCircleDistance(prev, line[i]) * 1000.0
		for accumulated+segMeters >= chunkMeters && segMeters > 0 {
			needed := chunkMeters - accumulated
			cut := pointOnSegmentByFraction(prev, line[i], needed/segMeters)
			current = append(current, cut)
			chunks = append(chunks, current)
			current = []GeoPoint{cut}
			accumulated = 0.0
			prev = cut
			segMeters = greatCircleDistance(prev, line[i]) * 1000.0
		}
		current = append(current, line[i])
		accumulated += segMeters
	}
	if len(current) >= 2 {
		chunks = append(chunks, current)
	}
	return chunks
}
