package lanegraph

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

/* Windowed traffic aggregation */

// AggregatedRecord is the traffic state of one node at one output time
// step. AvgSpeed is nil when the speed window held no samples: "no
// data" is explicitly distinct from "congested to zero".
type AggregatedRecord struct {
	NodeID       NodeID
	TimeStep     float64
	AvgSpeed     *float64
	AvgOccupancy float64
	// Distinct vehicles in the flow window; the raw ground truth
	TotalVehicles int
	// log(1+TotalVehicles)/log(k), a bounded model feature
	FlowFeature float64
}

// AggregationSummary is the per-run audit trail of one aggregation pass
type AggregationSummary struct {
	NodesAggregated   int
	OutputSteps       int
	OutputStart       float64
	OutputEnd         float64
	EmptySpeedWindows int
}

// aggregationIndex is the read-only state shared by all workers once
// the graph is frozen
type aggregationIndex struct {
	graph   *Graph
	samples []TrajectorySample
	fwd     ForwardIndex
	cfg     AggregationConfig

	// Per-node sample indices ordered by timestamp
	nodeSamples map[NodeID][]int
	// All sample indices per raw timestamp, for inbound spillover
	frameSamples map[float64][]int
}

// AggregateTraffic computes speed, flow and occupancy per node per
// output time step from node-tagged samples. Samples must be sorted by
// (vehicle, timestamp) and fwd must be the forward index built over
// them. The graph must be frozen: aggregation only reads it.
//
// The output range is restricted to
// [minT + maxWindow/2, maxT - maxWindow/2] so that every metric always
// has a fully populated window; this is a hard boundary, not a clamp.
func AggregateTraffic(graph *Graph, samples []TrajectorySample, fwd ForwardIndex, cfg AggregationConfig, verbose bool) ([]AggregatedRecord, AggregationSummary, error) {
	summary := AggregationSummary{}
	if len(fwd) != len(samples) {
		return nil, summary, errors.Errorf("Forward index length %d does not match %d samples", len(fwd), len(samples))
	}
	if cfg.OutputStep <= 0 {
		return nil, summary, errors.New("Output step must be positive")
	}

	if verbose {
		fmt.Print("Aggregating traffic state...")
	}
	st := time.Now()

	index := &aggregationIndex{
		graph:        graph,
		samples:      samples,
		fwd:          fwd,
		cfg:          cfg,
		nodeSamples:  make(map[NodeID][]int),
		frameSamples: make(map[float64][]int),
	}
	for i := range samples {
		nodeID := NodeID(samples[i].SegmentID)
		index.nodeSamples[nodeID] = append(index.nodeSamples[nodeID], i)
		index.frameSamples[samples[i].Timestamp] = append(index.frameSamples[samples[i].Timestamp], i)
	}
	for nodeID := range index.nodeSamples {
		indices := index.nodeSamples[nodeID]
		sort.Slice(indices, func(a, b int) bool { return samples[indices[a]].Timestamp < samples[indices[b]].Timestamp })
	}

	// Every declared node is aggregated, connectivity or not
	nodeIDs := make([]NodeID, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	summary.NodesAggregated = len(nodeIDs)

	steps := outputSteps(samples, cfg)
	if len(steps) == 0 {
		if verbose {
			fmt.Printf("Done in %v\n", time.Since(st))
			fmt.Println("\tNo output steps: trajectory shorter than the widest window")
		}
		return nil, summary, nil
	}
	summary.OutputSteps = len(steps)
	summary.OutputStart = steps[0]
	summary.OutputEnd = steps[len(steps)-1]

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(nodeIDs) {
		workers = len(nodeIDs)
	}

	perNode := make([][]AggregatedRecord, len(nodeIDs))
	emptySpeed := make([]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < len(nodeIDs); i += workers {
				records, empty := index.aggregateNode(nodeIDs[i], steps)
				perNode[i] = records
				emptySpeed[worker] += empty
			}
		}(w)
	}
	wg.Wait()

	records := make([]AggregatedRecord, 0, len(nodeIDs)*len(steps))
	for i := range perNode {
		records = append(records, perNode[i]...)
	}
	for _, empty := range emptySpeed {
		summary.EmptySpeedWindows += empty
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tNodes: %d, steps: %d (%.2f ~ %.2f), records: %d\n",
			summary.NodesAggregated, summary.OutputSteps, summary.OutputStart, summary.OutputEnd, len(records))
	}
	return records, summary, nil
}

// outputSteps enumerates the output time steps allowed by the widest
// window
func outputSteps(samples []TrajectorySample, cfg AggregationConfig) []float64 {
	if len(samples) == 0 {
		return nil
	}
	minT, maxT := samples[0].Timestamp, samples[0].Timestamp
	for i := range samples {
		if samples[i].Timestamp < minT {
			minT = samples[i].Timestamp
		}
		if samples[i].Timestamp > maxT {
			maxT = samples[i].Timestamp
		}
	}
	half := cfg.MaxWindow() / 2.0
	start := minT + half
	end := maxT - half
	steps := []float64{}
	// Index-based so fractional steps never drift past the end
	for i := 0; ; i++ {
		t := start + float64(i)*cfg.OutputStep
		if t > end {
			break
		}
		steps = append(steps, t)
	}
	return steps
}

func (index *aggregationIndex) aggregateNode(nodeID NodeID, steps []float64) ([]AggregatedRecord, int) {
	records := make([]AggregatedRecord, 0, len(steps))
	emptySpeed := 0

	node := index.graph.Nodes[nodeID]
	segmentLength := node.SegmentLength
	if segmentLength <= 0 {
		segmentLength = index.cfg.DefaultSegmentLength
	}
	indices := index.nodeSamples[nodeID]

	for _, step := range steps {
		record := AggregatedRecord{NodeID: nodeID, TimeStep: step}

		// Speed: mean of |v| over the speed window
		speeds := []float64{}
		for _, i := range index.windowIndices(indices, step, index.cfg.SpeedWindow) {
			speeds = append(speeds, math.Abs(index.samples[i].Speed))
		}
		if len(speeds) > 0 {
			avg := stat.Mean(speeds, nil)
			record.AvgSpeed = &avg
		} else {
			emptySpeed++
		}

		// Flow: distinct vehicles over the flow window
		vehicles := make(map[string]struct{})
		for _, i := range index.windowIndices(indices, step, index.cfg.FlowWindow) {
			vehicles[index.samples[i].VehicleID] = struct{}{}
		}
		record.TotalVehicles = len(vehicles)
		record.FlowFeature = FlowFeature(record.TotalVehicles, index.cfg.FlowLogBase)

		// Occupancy: per-frame ratios over the occupancy window
		frames := []float64{}
		seenFrames := make(map[float64]struct{})
		for _, i := range index.windowIndices(indices, step, index.cfg.OccupancyWindow) {
			frame := index.samples[i].Timestamp
			if _, ok := seenFrames[frame]; !ok {
				seenFrames[frame] = struct{}{}
				frames = append(frames, frame)
			}
		}
		if len(frames) > 0 {
			total := 0.0
			for _, frame := range frames {
				total += index.frameOccupancy(node, frame, segmentLength)
			}
			record.AvgOccupancy = total / float64(len(frames))
		}

		records = append(records, record)
	}
	return records, emptySpeed
}

// windowIndices returns the node's sample indices with timestamps in
// [step - window/2, step + window/2)
func (index *aggregationIndex) windowIndices(indices []int, step, window float64) []int {
	half := window / 2.0
	lo := sort.Search(len(indices), func(i int) bool {
		return index.samples[indices[i]].Timestamp >= step-half
	})
	hi := sort.Search(len(indices), func(i int) bool {
		return index.samples[indices[i]].Timestamp >= step+half
	})
	return indices[lo:hi]
}

// frameOccupancy computes the occupancy ratio of one node at one raw
// timestamp, capped at 1.0. A vehicle about to cross into a direct
// successor keeps SpilloverRatio of its length here and donates the
// rest downstream; the symmetric inbound share is collected from
// vehicles on direct predecessors.
func (index *aggregationIndex) frameOccupancy(node *Node, frame float64, segmentLength float64) float64 {
	total := 0.0
	for _, i := range index.frameSamples[frame] {
		sample := index.samples[i]
		sampleNode := NodeID(sample.SegmentID)
		length := index.cfg.VehicleLength(sample.Class, sample.Width)

		if sampleNode == node.ID {
			share := 1.0
			if next, ok := index.fwd.NextSegment(index.samples, i); ok {
				if containsNode(node.Connections.Direct, NodeID(next)) {
					share = index.cfg.SpilloverRatio
				}
			}
			total += length * share
			continue
		}
		// Inbound spillover from a direct predecessor
		if next, ok := index.fwd.NextSegment(index.samples, i); ok && NodeID(next) == node.ID {
			if upstream, declared := index.graph.Nodes[sampleNode]; declared {
				if containsNode(upstream.Connections.Direct, node.ID) {
					total += length * (1.0 - index.cfg.SpilloverRatio)
				}
			}
		}
	}
	ratio := total / segmentLength
	if ratio > 1.0 {
		return 1.0
	}
	return ratio
}

// FlowFeature log-compresses a raw vehicle count into a bounded model
// feature
func FlowFeature(count int, base float64) float64 {
	if base <= 1 {
		return float64(count)
	}
	return math.Log(1.0+float64(count)) / math.Log(base)
}

/* Aggregated table persistence */

// ExportAggregatedToCSV persists one row per (node, time step), sorted.
// avg_speed stays empty on "no data" so consumers can tell it apart
// from zero.
func ExportAggregatedToCSV(fname string, records []AggregatedRecord) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	err = writer.Write([]string{"node_id", "start_frame", "avg_speed", "avg_occupancy", "total_vehicles", "flow_feature"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for i := range records {
		record := records[i]
		speed := ""
		if record.AvgSpeed != nil {
			speed = strconv.FormatFloat(*record.AvgSpeed, 'f', 2, 64)
		}
		err = writer.Write([]string{
			strconv.FormatInt(int64(record.NodeID), 10),
			strconv.FormatFloat(record.TimeStep, 'f', 2, 64),
			speed,
			strconv.FormatFloat(record.AvgOccupancy, 'f', 2, 64),
			strconv.Itoa(record.TotalVehicles),
			strconv.FormatFloat(record.FlowFeature, 'f', 2, 64),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write record")
		}
	}
	return nil
}
