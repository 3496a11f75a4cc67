package main

import (
	"flag"
	"fmt"

	"github.com/lanegraph/lanegraph"
)

var (
	graphFileName      = flag.String("graph", "graph.json", "Filename of the graph document produced by the graph builder (JSON)")
	trajectoryFileName = flag.String("trajectory", "trajectory.csv", "Filename of the node-tagged trajectory CSV (columns: id;frame;node_id;v and optionally car_type;width)")
	configFileName     = flag.String("conf", "", "Filename of a JSON config file. Missing fields fall back to defaults")
	out                = flag.String("out", "traffic.csv", "Filename of the aggregated traffic table (CSV)")
	workers            = flag.Int("workers", 0, "Number of goroutines aggregating nodes. 0 keeps the configured value")
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
	if *workers > 0 {
		cfg.Aggregation.Workers = *workers
	}

	graph, err := lanegraph.ImportGraphFromJSON(*graphFileName)
	if err != nil {
		fmt.Println(err)
		return
	}

	samples, _, err := lanegraph.LoadTrajectoryCSV(*trajectoryFileName, *verbose)
	if err != nil {
		fmt.Println(err)
		return
	}
	_, fwd := lanegraph.ExtractTransitions(samples, *verbose)

	records, _, err := lanegraph.AggregateTraffic(graph, samples, fwd, cfg.Aggregation, *verbose)
	if err != nil {
		fmt.Println(err)
		return
	}

	if err := lanegraph.ExportAggregatedToCSV(*out, records); err != nil {
		fmt.Println(err)
		return
	}
}
