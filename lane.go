package lanegraph

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

/* Lanes stuff */

type LaneID int64

// NoJoinFID marks a lane without a resolvable road group.
// Such lanes form singleton groups and emit no sequential edges.
const NoJoinFID int64 = -1

// Lane is a physical road segment. Its node list is either declared
// upfront (simplified graph input) or produced by ExpandLaneNodes.
type Lane struct {
	ID            LaneID
	JoinFID       int64
	Nodes         []NodeID
	StoplineNode  *NodeID
	SegmentLength float64
	TotalLength   float64
	// Downstream fan-out with split ratios, when the site declares one
	Downstream []LaneConnection

	geom     orb.Geometry
	centroid orb.Point
}

// LaneConnection is a declared lane-to-lane downstream connection.
// Split ratios over one lane's fan-out are expected to sum to 1.0.
type LaneConnection struct {
	TargetLane LaneID  `json:"target_lane"`
	Movement   string  `json:"movement,omitempty"`
	TravelTime float64 `json:"travel_time,omitempty"`
	SplitRatio float64 `json:"split_ratio"`
}

// SetGeometry stores lane geometry and refreshes the derived centroid
func (lane *Lane) SetGeometry(geom orb.Geometry) {
	lane.geom = geom
	if geom != nil {
		centroid, _ := planar.CentroidArea(geom)
		lane.centroid = centroid
	}
}

func (lane *Lane) Geometry() orb.Geometry {
	return lane.geom
}

func (lane *Lane) Centroid() orb.Point {
	return lane.centroid
}

// NumNodes returns the declared node count or the count node expansion
// will produce: ceil(TotalLength / SegmentLength)
func (lane *Lane) NumNodes() int {
	if len(lane.Nodes) > 0 {
		return len(lane.Nodes)
	}
	if lane.SegmentLength <= 0 {
		return 0
	}
	num := int(lane.TotalLength / lane.SegmentLength)
	if float64(num)*lane.SegmentLength < lane.TotalLength {
		num++
	}
	return num
}

// nodesFromRange expands a simplified min/max declaration into an
// explicit node list
func nodesFromRange(minNode, maxNode NodeID, desc bool) []NodeID {
	if maxNode < minNode {
		return nil
	}
	nodes := make([]NodeID, 0, int(maxNode-minNode)+1)
	if desc {
		for id := maxNode; id >= minNode; id-- {
			nodes = append(nodes, id)
		}
		return nodes
	}
	for id := minNode; id <= maxNode; id++ {
		nodes = append(nodes, id)
	}
	return nodes
}
