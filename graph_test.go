package lanegraph

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	stopline := NodeID(3)
	lanes := map[LaneID]*Lane{
		1: {ID: 1, JoinFID: NoJoinFID, SegmentLength: 10.0, TotalLength: 20.0},
		2: {ID: 2, JoinFID: NoJoinFID, Nodes: []NodeID{2, 3}, StoplineNode: &stopline, SegmentLength: 10.0, TotalLength: 20.0},
	}
	nodes, err := ExpandLaneNodes(lanes, nil, false)
	require.NoError(t, err)

	resolved := &ResolvedConnections{
		Direct:   map[LaneID][]LaneID{1: {2}},
		Near:     map[LaneID][]LaneID{},
		Crossing: map[LaneID][]LaneID{},
	}
	graph, err := AssembleGraph(lanes, nodes, resolved)
	require.NoError(t, err)
	return graph
}

func TestAssembleGraph(t *testing.T) {
	graph := buildTestGraph(t)

	report := graph.Validate()
	assert.Empty(t, report.Errors)
	assert.Empty(t, report.Warnings)

	exit := graph.Lanes[1].Nodes[len(graph.Lanes[1].Nodes)-1]
	assert.Contains(t, graph.Nodes[exit].Connections.Direct, graph.Lanes[2].Nodes[0])

	mapping := graph.NodeToLane()
	for id, node := range graph.Nodes {
		assert.Equal(t, node.LaneID, mapping[id])
	}
}

func TestAssembleGraphRefusesDanglingTarget(t *testing.T) {
	lanes := map[LaneID]*Lane{
		1: {ID: 1, JoinFID: NoJoinFID, SegmentLength: 10.0, TotalLength: 20.0},
	}
	nodes, err := ExpandLaneNodes(lanes, nil, false)
	require.NoError(t, err)
	nodes[lanes[1].Nodes[0]].Connections.Crossing = append(nodes[lanes[1].Nodes[0]].Connections.Crossing, 9999)

	_, err = AssembleGraph(lanes, nodes, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "9999")
}

func TestValidateFindings(t *testing.T) {
	graph := buildTestGraph(t)

	// Node count no longer matches total_length/segment_length
	graph.Lanes[1].TotalLength = 35.0
	// Fan-out ratios drift away from 1.0
	graph.Lanes[1].Downstream = []LaneConnection{
		{TargetLane: 2, SplitRatio: 0.5},
		{TargetLane: 2, SplitRatio: 0.4},
	}
	report := graph.Validate()
	assert.Empty(t, report.Errors, "count and ratio mismatches are warnings, not errors")
	assert.Len(t, report.Warnings, 2)

	// A connection into nowhere is structural
	first := graph.Lanes[1].Nodes[0]
	graph.Nodes[first].Connections.Near = append(graph.Nodes[first].Connections.Near, 5000)
	report = graph.Validate()
	assert.NotEmpty(t, report.Errors)
}

func TestValidateDisjointness(t *testing.T) {
	graph := buildTestGraph(t)
	first := graph.Lanes[1].Nodes[0]
	second := graph.Lanes[1].Nodes[1]
	// Force the same target into two sets, bypassing the add helpers
	graph.Nodes[first].Connections.Near = append(graph.Nodes[first].Connections.Near, second)

	report := graph.Validate()
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "disjoint")
}

func TestValidateFanOutTarget(t *testing.T) {
	graph := buildTestGraph(t)
	graph.Lanes[1].Downstream = []LaneConnection{{TargetLane: 77, SplitRatio: 1.0}}

	report := graph.Validate()
	require.NotEmpty(t, report.Errors)
	assert.Contains(t, report.Errors[0], "77")
}

func TestGraphJSONRoundTrip(t *testing.T) {
	graph := buildTestGraph(t)
	graph.Lanes[1].Downstream = []LaneConnection{{TargetLane: 2, Movement: "through", TravelTime: 1.5, SplitRatio: 1.0}}

	fname := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, graph.ExportToJSON(fname))

	loaded, err := ImportGraphFromJSON(fname)
	require.NoError(t, err)

	require.Len(t, loaded.Lanes, len(graph.Lanes))
	require.Len(t, loaded.Nodes, len(graph.Nodes))
	for id, lane := range graph.Lanes {
		loadedLane := loaded.Lanes[id]
		require.NotNil(t, loadedLane)
		assert.Equal(t, lane.Nodes, loadedLane.Nodes)
		assert.Equal(t, lane.SegmentLength, loadedLane.SegmentLength)
		assert.Equal(t, lane.TotalLength, loadedLane.TotalLength)
		assert.Equal(t, lane.Downstream, loadedLane.Downstream)
		if lane.StoplineNode == nil {
			assert.Nil(t, loadedLane.StoplineNode)
		} else {
			require.NotNil(t, loadedLane.StoplineNode)
			assert.Equal(t, *lane.StoplineNode, *loadedLane.StoplineNode)
		}
	}
	for id, node := range graph.Nodes {
		loadedNode := loaded.Nodes[id]
		require.NotNil(t, loadedNode)
		assert.Equal(t, node.LaneID, loadedNode.LaneID)
		assert.Equal(t, node.SegmentLength, loadedNode.SegmentLength)
		if node.PositionInLane == nil {
			assert.Nil(t, loadedNode.PositionInLane)
		} else {
			require.NotNil(t, loadedNode.PositionInLane)
			assert.Equal(t, *node.PositionInLane, *loadedNode.PositionInLane)
		}
		assert.ElementsMatch(t, node.Connections.Direct, loadedNode.Connections.Direct)
		assert.ElementsMatch(t, node.Connections.Near, loadedNode.Connections.Near)
		assert.ElementsMatch(t, node.Connections.Crossing, loadedNode.Connections.Crossing)
	}

	report := loaded.Validate()
	assert.Empty(t, report.Errors)
}

func TestExportRefusesInvalidGraph(t *testing.T) {
	graph := buildTestGraph(t)
	first := graph.Lanes[1].Nodes[0]
	graph.Nodes[first].Connections.Direct = append(graph.Nodes[first].Connections.Direct, 9999)

	fname := filepath.Join(t.TempDir(), "graph.json")
	err := graph.ExportToJSON(fname)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Refusing to persist")
}

func TestGraphCSVExports(t *testing.T) {
	graph := buildTestGraph(t)
	dir := t.TempDir()
	require.NoError(t, graph.ExportLanesToCSV(filepath.Join(dir, "lanes.csv")))
	require.NoError(t, graph.ExportNodesToCSV(filepath.Join(dir, "nodes.csv")))
}
