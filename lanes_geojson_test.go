package lanegraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLanes(t *testing.T, content string) string {
	t.Helper()
	fname := filepath.Join(t.TempDir(), "lanes.geojson")
	require.NoError(t, os.WriteFile(fname, []byte(content), 0644))
	return fname
}

func TestImportLanesFromGeoJSON(t *testing.T) {
	fname := writeLanes(t, `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"fid": 1, "join_fid": 7},
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [30, 0]]}
    },
    {
      "type": "Feature",
      "properties": {"fid": 2, "join_fid": 7, "segment_length": 5, "total_length": 42.5, "stopline_node": 9},
      "geometry": {"type": "LineString", "coordinates": [[30, 0], [60, 0]]}
    },
    {
      "type": "Feature",
      "properties": {"fid": 3, "min_node": 10, "max_node": 12, "order": "desc"},
      "geometry": {"type": "LineString", "coordinates": [[0, 10], [30, 10]]}
    }
  ]
}`)
	lanes, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.NoError(t, err)
	require.Len(t, lanes, 3)

	// Defaults fill what the feature leaves out; the geometric length
	// backs a missing total_length
	assert.Equal(t, int64(7), lanes[1].JoinFID)
	assert.Equal(t, 10.0, lanes[1].SegmentLength)
	assert.Equal(t, 30.0, lanes[1].TotalLength)
	assert.Nil(t, lanes[1].StoplineNode)
	assert.Empty(t, lanes[1].Nodes)

	// Explicit properties win
	assert.Equal(t, 5.0, lanes[2].SegmentLength)
	assert.Equal(t, 42.5, lanes[2].TotalLength)
	require.NotNil(t, lanes[2].StoplineNode)
	assert.Equal(t, NodeID(9), *lanes[2].StoplineNode)

	// A min/max declaration expands to an explicit list, honoring order
	assert.Equal(t, int64(NoJoinFID), lanes[3].JoinFID)
	assert.Equal(t, []NodeID{12, 11, 10}, lanes[3].Nodes)

	centroid := lanes[1].Centroid()
	assert.Equal(t, orb.Point{15, 0}, centroid)
}

func TestImportLanesMissingFID(t *testing.T) {
	fname := writeLanes(t, `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"join_fid": 7},
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [30, 0]]}
    }
  ]
}`)
	_, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fid")
	assert.Contains(t, err.Error(), fname)
}

func TestImportLanesDuplicateID(t *testing.T) {
	fname := writeLanes(t, `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"fid": 1}, "geometry": {"type": "LineString", "coordinates": [[0, 0], [30, 0]]}},
    {"type": "Feature", "properties": {"fid": 1}, "geometry": {"type": "LineString", "coordinates": [[30, 0], [60, 0]]}}
  ]
}`)
	_, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Duplicate lane id")
}

func TestImportLanesPolygonNeedsTotalLength(t *testing.T) {
	fname := writeLanes(t, `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"fid": 1},
      "geometry": {"type": "Polygon", "coordinates": [[[0, 0], [30, 0], [30, 3], [0, 3], [0, 0]]]}
    }
  ]
}`)
	_, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_length")
}

func TestImportLanesMinWithoutMax(t *testing.T) {
	fname := writeLanes(t, `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"fid": 1, "min_node": 10},
      "geometry": {"type": "LineString", "coordinates": [[0, 0], [30, 0]]}
    }
  ]
}`)
	_, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_node")
}

func TestLanesGeoJSONRoundTrip(t *testing.T) {
	stopline := NodeID(9)
	lane := &Lane{
		ID:            1,
		JoinFID:       7,
		Nodes:         []NodeID{8, 9},
		StoplineNode:  &stopline,
		SegmentLength: 10.0,
		TotalLength:   20.0,
	}
	lane.SetGeometry(orb.LineString{{0, 0}, {20, 0}})
	lanes := map[LaneID]*Lane{1: lane}

	fname := filepath.Join(t.TempDir(), "out.geojson")
	require.NoError(t, ExportLanesToGeoJSON(fname, lanes))

	loaded, err := ImportLanesFromGeoJSON(fname, DefaultGraphConfig(), false)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(7), loaded[1].JoinFID)
	assert.Equal(t, 10.0, loaded[1].SegmentLength)
	assert.Equal(t, 20.0, loaded[1].TotalLength)
	require.NotNil(t, loaded[1].StoplineNode)
	assert.Equal(t, NodeID(9), *loaded[1].StoplineNode)
	assert.Equal(t, orb.LineString{{0, 0}, {20, 0}}, loaded[1].Geometry())
}
