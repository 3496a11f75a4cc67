package lanegraph

import (
	"fmt"
	"math"
	"sort"
)

/* Graph validation */

const splitRatioTolerance = 1e-6

// ValidationReport separates structural violations (errors) from
// mismatches worth surfacing but not fatal (warnings)
type ValidationReport struct {
	Errors   []string
	Warnings []string
}

func (report *ValidationReport) errorf(format string, args ...interface{}) {
	report.Errors = append(report.Errors, fmt.Sprintf(format, args...))
}

func (report *ValidationReport) warnf(format string, args ...interface{}) {
	report.Warnings = append(report.Warnings, fmt.Sprintf(format, args...))
}

// Validate re-checks the document invariants and reports every finding
// without halting:
//   - connections referencing undeclared nodes are errors;
//   - non-disjoint connection sets are errors;
//   - a node owned by an undeclared lane is an error;
//   - lane node counts inconsistent with total_length/segment_length
//     are warnings;
//   - fan-out split ratios not summing to 1.0 are warnings.
func (graph *Graph) Validate() ValidationReport {
	report := ValidationReport{}

	for _, lane := range sortedLanes(graph.Lanes) {
		if lane.SegmentLength > 0 && lane.TotalLength > 0 {
			expected := int(math.Ceil(lane.TotalLength / lane.SegmentLength))
			if expected != len(lane.Nodes) {
				report.warnf("lane %d node count mismatch: expected %d, declared %d", lane.ID, expected, len(lane.Nodes))
			}
		}
		for _, nodeID := range lane.Nodes {
			node, ok := graph.Nodes[nodeID]
			if !ok {
				report.errorf("lane %d declares undeclared node %d", lane.ID, nodeID)
				continue
			}
			if node.LaneID != lane.ID {
				report.errorf("node %d declared by lane %d but owned by lane %d", nodeID, lane.ID, node.LaneID)
			}
		}
		if lane.StoplineNode != nil && !containsNode(lane.Nodes, *lane.StoplineNode) {
			report.warnf("lane %d stopline node %d is not in its node list", lane.ID, *lane.StoplineNode)
		}
		if len(lane.Downstream) > 0 {
			sum := 0.0
			for _, conn := range lane.Downstream {
				if _, ok := graph.Lanes[conn.TargetLane]; !ok {
					report.errorf("lane %d fan-out targets undeclared lane %d", lane.ID, conn.TargetLane)
				}
				sum += conn.SplitRatio
			}
			if math.Abs(sum-1.0) > splitRatioTolerance {
				report.warnf("lane %d fan-out split ratios sum to %f, want 1.0", lane.ID, sum)
			}
		}
	}

	nodeIDs := make([]NodeID, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
		node := graph.Nodes[id]
		if _, ok := graph.Lanes[node.LaneID]; !ok {
			report.errorf("node %d owned by undeclared lane %d", id, node.LaneID)
		}
		if !node.Connections.Disjoint() {
			report.errorf("node %d connection sets are not pairwise disjoint", id)
		}
		for _, set := range [][]NodeID{node.Connections.Direct, node.Connections.Near, node.Connections.Crossing} {
			for _, target := range set {
				if _, ok := graph.Nodes[target]; !ok {
					report.errorf("node %d connects to undeclared node %d", id, target)
				}
			}
		}
	}
	return report
}
