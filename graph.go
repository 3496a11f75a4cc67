package lanegraph

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

/* Graph document */

// Graph is the assembled lane/node document shared by the aggregator
// and every downstream consumer. It is built once per run and frozen
// before aggregation starts.
type Graph struct {
	Lanes map[LaneID]*Lane
	Nodes map[NodeID]*Node
}

func NewGraph() *Graph {
	return &Graph{
		Lanes: make(map[LaneID]*Lane),
		Nodes: make(map[NodeID]*Node),
	}
}

// AssembleGraph merges lanes, expanded nodes and resolved lane-level
// connections into one document and validates it. A document with
// structural errors is refused.
func AssembleGraph(lanes map[LaneID]*Lane, nodes map[NodeID]*Node, resolved *ResolvedConnections) (*Graph, error) {
	if resolved != nil {
		if err := ApplyLaneConnections(lanes, nodes, resolved); err != nil {
			return nil, errors.Wrap(err, "Can't apply lane connections")
		}
	}
	graph := &Graph{Lanes: lanes, Nodes: nodes}
	report := graph.Validate()
	if len(report.Errors) > 0 {
		return nil, errors.Errorf("Graph has %d structural errors; first: %s", len(report.Errors), report.Errors[0])
	}
	return graph, nil
}

// NodeToLane returns the node -> owning lane mapping
func (graph *Graph) NodeToLane() map[NodeID]LaneID {
	mapping := make(map[NodeID]LaneID, len(graph.Nodes))
	for id, node := range graph.Nodes {
		mapping[id] = node.LaneID
	}
	return mapping
}

/* JSON persistence */

type laneDocument struct {
	LaneID        LaneID           `json:"lane_id"`
	Nodes         []NodeID         `json:"nodes"`
	StoplineNode  *NodeID          `json:"stopline_node"`
	SegmentLength float64          `json:"segment_length"`
	TotalLength   float64          `json:"total_length"`
	Downstream    []LaneConnection `json:"downstream_connections,omitempty"`
}

type nodeDocument struct {
	NodeID         NodeID          `json:"node_id"`
	LaneID         LaneID          `json:"lane_id"`
	PositionInLane *float64        `json:"position_in_lane"`
	SegmentLength  float64         `json:"segment_length"`
	Connections    NodeConnections `json:"node_connections"`
}

type graphDocument struct {
	Lanes []laneDocument `json:"lanes"`
	Nodes []nodeDocument `json:"nodes"`
}

func (graph *Graph) document() graphDocument {
	doc := graphDocument{
		Lanes: make([]laneDocument, 0, len(graph.Lanes)),
		Nodes: make([]nodeDocument, 0, len(graph.Nodes)),
	}
	for _, lane := range sortedLanes(graph.Lanes) {
		doc.Lanes = append(doc.Lanes, laneDocument{
			LaneID:        lane.ID,
			Nodes:         lane.Nodes,
			StoplineNode:  lane.StoplineNode,
			SegmentLength: lane.SegmentLength,
			TotalLength:   lane.TotalLength,
			Downstream:    lane.Downstream,
		})
	}
	nodeIDs := make([]NodeID, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
		node := graph.Nodes[id]
		connections := node.Connections
		if connections.Direct == nil {
			connections.Direct = []NodeID{}
		}
		if connections.Near == nil {
			connections.Near = []NodeID{}
		}
		if connections.Crossing == nil {
			connections.Crossing = []NodeID{}
		}
		doc.Nodes = append(doc.Nodes, nodeDocument{
			NodeID:         node.ID,
			LaneID:         node.LaneID,
			PositionInLane: node.PositionInLane,
			SegmentLength:  node.SegmentLength,
			Connections:    connections,
		})
	}
	return doc
}

// ExportToJSON persists the graph document. The document is validated
// first; a graph with structural errors is never written.
func (graph *Graph) ExportToJSON(fname string) error {
	report := graph.Validate()
	if len(report.Errors) > 0 {
		return errors.Errorf("Refusing to persist invalid graph: %s", report.Errors[0])
	}
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(graph.document()); err != nil {
		return errors.Wrap(err, "Can't encode graph")
	}
	return nil
}

// ImportGraphFromJSON loads a persisted graph document. Geometry is not
// part of the document; a loaded graph supports validation and
// aggregation but not spatial candidate building.
func ImportGraphFromJSON(fname string) (*Graph, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read graph file")
	}
	doc := graphDocument{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "Can't parse graph file '%s'", fname)
	}
	if doc.Lanes == nil {
		return nil, fmt.Errorf("Missing required field 'lanes' in graph file '%s'", fname)
	}
	if doc.Nodes == nil {
		return nil, fmt.Errorf("Missing required field 'nodes' in graph file '%s'", fname)
	}

	graph := NewGraph()
	for i := range doc.Lanes {
		laneDoc := doc.Lanes[i]
		graph.Lanes[laneDoc.LaneID] = &Lane{
			ID:            laneDoc.LaneID,
			JoinFID:       NoJoinFID,
			Nodes:         laneDoc.Nodes,
			StoplineNode:  laneDoc.StoplineNode,
			SegmentLength: laneDoc.SegmentLength,
			TotalLength:   laneDoc.TotalLength,
			Downstream:    laneDoc.Downstream,
		}
	}
	for i := range doc.Nodes {
		nodeDoc := doc.Nodes[i]
		graph.Nodes[nodeDoc.NodeID] = &Node{
			ID:             nodeDoc.NodeID,
			LaneID:         nodeDoc.LaneID,
			PositionInLane: nodeDoc.PositionInLane,
			SegmentLength:  nodeDoc.SegmentLength,
			Connections:    nodeDoc.Connections,
		}
	}
	return graph, nil
}

/* CSV export for downstream plotting collaborators */

// ExportLanesToCSV writes one row per lane with its WKT geometry, for
// map plotting tools
func (graph *Graph) ExportLanesToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"lane_id", "join_fid", "num_nodes", "segment_length", "total_length", "centroid", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for _, lane := range sortedLanes(graph.Lanes) {
		geomStr := ""
		if lane.Geometry() != nil {
			geomStr = wkt.MarshalString(lane.Geometry())
		}
		err = writer.Write([]string{
			strconv.FormatInt(int64(lane.ID), 10),
			strconv.FormatInt(lane.JoinFID, 10),
			strconv.Itoa(len(lane.Nodes)),
			strconv.FormatFloat(lane.SegmentLength, 'f', -1, 64),
			strconv.FormatFloat(lane.TotalLength, 'f', -1, 64),
			wkt.MarshalString(orb.Point(lane.Centroid())),
			geomStr,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write lane")
		}
	}
	return nil
}

// ExportNodesToCSV writes one row per node with its connection sets
// joined by commas
func (graph *Graph) ExportNodesToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"node_id", "lane_id", "position_in_lane", "segment_length", "direct", "near", "crossing"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	nodeIDs := make([]NodeID, 0, len(graph.Nodes))
	for id := range graph.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })
	for _, id := range nodeIDs {
		node := graph.Nodes[id]
		position := ""
		if node.PositionInLane != nil {
			position = strconv.FormatFloat(*node.PositionInLane, 'f', -1, 64)
		}
		err = writer.Write([]string{
			strconv.FormatInt(int64(node.ID), 10),
			strconv.FormatInt(int64(node.LaneID), 10),
			position,
			strconv.FormatFloat(node.SegmentLength, 'f', -1, 64),
			joinNodeIDs(node.Connections.Direct),
			joinNodeIDs(node.Connections.Near),
			joinNodeIDs(node.Connections.Crossing),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write node")
		}
	}
	return nil
}

func joinNodeIDs(ids []NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}
