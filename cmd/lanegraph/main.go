package main

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lanegraph/lanegraph"
)

var (
	lanesFileName      = flag.String("lanes", "lanes.geojson", "Filename of lane features. *.geojson expects pre-segmented planar lanes; *.osm / *.xml / *.pbf runs the OSM importer instead")
	trajectoryFileName = flag.String("trajectory", "trajectory.csv", "Filename of the trajectory CSV (columns: id;frame;node_id;v and optionally car_type;width)")
	configFileName     = flag.String("conf", "", "Filename of a JSON config file. Missing fields fall back to defaults")
	out                = flag.String("out", "graph.json", "Filename of the output graph document (JSON)")
	transitionsOut     = flag.String("transitions", "", "Optional filename for the observed transition table (CSV)")
	csvOut             = flag.String("csvout", "", "Optional base filename for CSV exports. E.g.: 'map.csv' produces 'map_lanes.csv' and 'map_nodes.csv'")
	geojsonOut         = flag.String("geojsonout", "", "Optional filename for re-exported lane features with derived attributes (GeoJSON)")
	tagStr             = flag.String("tags", "", "Set of accepted highway tags for the OSM importer (separated by commas). Empty keeps the defaults")
	verbose            = flag.Bool("verbose", true, "Print progress of each pipeline stage")
)

func main() {

	flag.Parse()

	cfg := lanegraph.DefaultPipelineConfig()
	if *configFileName != "" {
		var err error
		cfg, err = lanegraph.LoadPipelineConfig(*configFileName)
		if err != nil {
			fmt.Println(err)
			return
		}
	}
	if *tagStr != "" {
		cfg.Graph.OsmHighwayTags = strings.Split(*tagStr, ",")
	}

	var lanes map[lanegraph.LaneID]*lanegraph.Lane
	var err error
	switch filepath.Ext(*lanesFileName) {
	case ".osm", ".xml", ".pbf":
		lanes, err = lanegraph.ImportLanesFromOSM(*lanesFileName, cfg.Graph, *verbose)
	default:
		lanes, err = lanegraph.ImportLanesFromGeoJSON(*lanesFileName, cfg.Graph, *verbose)
	}
	if err != nil {
		fmt.Println(err)
		return
	}

	candidates, err := lanegraph.BuildSpatialCandidates(lanes, cfg.Graph, *verbose)
	if err != nil {
		fmt.Println(err)
		return
	}

	samples, _, err := lanegraph.LoadTrajectoryCSV(*trajectoryFileName, *verbose)
	if err != nil {
		fmt.Println(err)
		return
	}
	transitions, _ := lanegraph.ExtractTransitions(samples, *verbose)
	if *transitionsOut != "" {
		if err := transitions.ExportToCSV(*transitionsOut); err != nil {
			fmt.Println(err)
			return
		}
	}

	resolved := lanegraph.ResolveConnections(lanes, candidates, transitions, cfg.Graph, *verbose)

	nodes, err := lanegraph.ExpandLaneNodes(lanes, resolved.Near, *verbose)
	if err != nil {
		fmt.Println(err)
		return
	}

	graph, err := lanegraph.AssembleGraph(lanes, nodes, resolved)
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := graph.ExportToJSON(*out); err != nil {
		fmt.Println(err)
		return
	}
	if *csvOut != "" {
		fnamePart := strings.Split(*csvOut, ".csv") // to guarantee proper filename and its extension
		if err := graph.ExportLanesToCSV(fnamePart[0] + "_lanes.csv"); err != nil {
			fmt.Println(err)
			return
		}
		if err := graph.ExportNodesToCSV(fnamePart[0] + "_nodes.csv"); err != nil {
			fmt.Println(err)
			return
		}
	}
	if *geojsonOut != "" {
		if err := lanegraph.ExportLanesToGeoJSON(*geojsonOut, lanes); err != nil {
			fmt.Println(err)
			return
		}
	}
}
