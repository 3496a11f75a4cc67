package lanegraph

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

/* Node expansion */

// ExpandLaneNodes subdivides every lane into fixed-length nodes and
// wires node-level connectivity:
//   - intra-lane direct edges node i -> node i+1;
//   - near edges between same-index nodes of adjacent lanes (lanes with
//     fewer nodes simply have no near edge past their length);
//   - the stop-line node, when declared, carries a nil position.
//
// Lanes that already declare a node list keep it; the others get
// ceil(TotalLength/SegmentLength) freshly numbered nodes. adjacency is
// the validated lane-level near relation.
func ExpandLaneNodes(lanes map[LaneID]*Lane, adjacency map[LaneID][]LaneID, verbose bool) (map[NodeID]*Node, error) {
	if verbose {
		fmt.Print("Expanding lanes into nodes...")
	}
	st := time.Now()

	ordered := sortedLanes(lanes)

	// Fresh ids continue after the highest declared one
	nextID := NodeID(0)
	for _, lane := range ordered {
		for _, id := range lane.Nodes {
			if id >= nextID {
				nextID = id + 1
			}
		}
	}
	for _, lane := range ordered {
		if len(lane.Nodes) > 0 {
			continue
		}
		num := lane.NumNodes()
		if num == 0 {
			return nil, fmt.Errorf("Lane %d has no declared nodes and no usable total_length/segment_length", lane.ID)
		}
		lane.Nodes = make([]NodeID, 0, num)
		for i := 0; i < num; i++ {
			lane.Nodes = append(lane.Nodes, nextID)
			nextID++
		}
	}

	nodes := make(map[NodeID]*Node)
	for _, lane := range ordered {
		for idx, nodeID := range lane.Nodes {
			if taken, ok := nodes[nodeID]; ok {
				return nil, errors.Errorf("Node %d declared by both lane %d and lane %d", nodeID, taken.LaneID, lane.ID)
			}
			node := &Node{
				ID:            nodeID,
				LaneID:        lane.ID,
				SegmentLength: lane.SegmentLength,
			}
			if lane.StoplineNode == nil || *lane.StoplineNode != nodeID {
				position := float64(idx) * lane.SegmentLength
				node.PositionInLane = &position
			}
			if idx < len(lane.Nodes)-1 {
				node.Connections.addDirect(lane.Nodes[idx+1])
			}
			nodes[nodeID] = node
		}
	}

	// Near edges between same-index nodes of adjacent lanes. Assumes
	// aligned segmentation between the two lanes.
	for _, lane := range ordered {
		for _, neighborID := range adjacency[lane.ID] {
			neighbor, ok := lanes[neighborID]
			if !ok {
				return nil, fmt.Errorf("Adjacent lane %d of lane %d not found", neighborID, lane.ID)
			}
			for idx, nodeID := range lane.Nodes {
				if idx >= len(neighbor.Nodes) {
					break
				}
				nodes[nodeID].Connections.addNear(neighbor.Nodes[idx])
			}
		}
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tNodes: %d\n", len(nodes))
	}
	return nodes, nil
}

// ApplyLaneConnections projects resolved lane-level connectivity onto
// boundary nodes: the last node of the source lane links to the first
// node of the target lane with the resolved class.
func ApplyLaneConnections(lanes map[LaneID]*Lane, nodes map[NodeID]*Node, resolved *ResolvedConnections) error {
	link := func(set map[LaneID][]LaneID, kind string) error {
		for from, targets := range set {
			fromLane, ok := lanes[from]
			if !ok || len(fromLane.Nodes) == 0 {
				return fmt.Errorf("Connection source lane %d has no nodes", from)
			}
			exit := fromLane.Nodes[len(fromLane.Nodes)-1]
			for _, to := range targets {
				toLane, ok := lanes[to]
				if !ok || len(toLane.Nodes) == 0 {
					return fmt.Errorf("Connection target lane %d has no nodes", to)
				}
				entry := toLane.Nodes[0]
				switch kind {
				case "direct":
					nodes[exit].Connections.addDirect(entry)
				case "near":
					nodes[exit].Connections.addNear(entry)
				default:
					nodes[exit].Connections.addCrossing(entry)
				}
			}
		}
		return nil
	}
	if err := link(resolved.Direct, "direct"); err != nil {
		return err
	}
	if err := link(resolved.Near, "near"); err != nil {
		return err
	}
	return link(resolved.Crossing, "crossing")
}

// MergeNodeTransitions folds a node-granularity classification into
// existing node connections (for sites where the trajectory file is
// tagged with node ids directly)
func MergeNodeTransitions(nodes map[NodeID]*Node, classified *ClassifiedConnections) {
	for from, targets := range classified.Direct {
		node, ok := nodes[NodeID(from)]
		if !ok {
			continue
		}
		for _, to := range targets {
			node.Connections.addDirect(NodeID(to))
		}
	}
	for from, targets := range classified.Near {
		node, ok := nodes[NodeID(from)]
		if !ok {
			continue
		}
		for _, to := range targets {
			node.Connections.addNear(NodeID(to))
		}
	}
}
