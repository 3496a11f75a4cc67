package lanegraph

/* Nodes stuff */

type NodeID int64

// Node is a fixed-length subdivision of a lane: the finest unit over
// which traffic state is reported
type Node struct {
	ID     NodeID
	LaneID LaneID
	// Distance along the lane from its start. Nil for the stop-line
	// node, which is a control point rather than a metric offset
	PositionInLane *float64
	SegmentLength  float64
	Connections    NodeConnections
}

// NodeConnections keeps the three directed edge sets of a node. The
// sets must stay pairwise disjoint; use the add* helpers to keep that
// invariant.
type NodeConnections struct {
	Direct   []NodeID `json:"direct"`
	Near     []NodeID `json:"near"`
	Crossing []NodeID `json:"crossing"`
}

func containsNode(ids []NodeID, id NodeID) bool {
	for i := range ids {
		if ids[i] == id {
			return true
		}
	}
	return false
}

// Has reports whether the target appears in any of the three sets
func (nc *NodeConnections) Has(id NodeID) bool {
	return containsNode(nc.Direct, id) || containsNode(nc.Near, id) || containsNode(nc.Crossing, id)
}

// Disjoint reports whether the three sets are pairwise disjoint
func (nc *NodeConnections) Disjoint() bool {
	seen := make(map[NodeID]struct{}, len(nc.Direct)+len(nc.Near)+len(nc.Crossing))
	for _, set := range [][]NodeID{nc.Direct, nc.Near, nc.Crossing} {
		for _, id := range set {
			if _, ok := seen[id]; ok {
				return false
			}
			seen[id] = struct{}{}
		}
	}
	return true
}

func removeNode(ids []NodeID, id NodeID) []NodeID {
	for i := range ids {
		if ids[i] == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// addDirect promotes: a target already held as near or crossing moves
// into the direct set
func (nc *NodeConnections) addDirect(id NodeID) {
	if containsNode(nc.Direct, id) {
		return
	}
	nc.Near = removeNode(nc.Near, id)
	nc.Crossing = removeNode(nc.Crossing, id)
	nc.Direct = append(nc.Direct, id)
}

// addNear promotes over crossing but never over direct
func (nc *NodeConnections) addNear(id NodeID) {
	if containsNode(nc.Direct, id) || containsNode(nc.Near, id) {
		return
	}
	nc.Crossing = removeNode(nc.Crossing, id)
	nc.Near = append(nc.Near, id)
}

func (nc *NodeConnections) addCrossing(id NodeID) {
	if !nc.Has(id) {
		nc.Crossing = append(nc.Crossing, id)
	}
}

// Total returns the number of edges over all three sets
func (nc *NodeConnections) Total() int {
	return len(nc.Direct) + len(nc.Near) + len(nc.Crossing)
}
