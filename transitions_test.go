package lanegraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(vehicle string, timestamp float64, segment SegmentID) TrajectorySample {
	return TrajectorySample{VehicleID: vehicle, Timestamp: timestamp, SegmentID: segment, Speed: 10.0}
}

func TestExtractTransitions(t *testing.T) {
	samples := []TrajectorySample{
		sample("a", 0, 5),
		sample("a", 1, 5),
		sample("a", 2, 5),
		sample("a", 3, 7),
		sample("a", 4, 7),
		sample("a", 5, 9),
	}
	ts, fwd := ExtractTransitions(samples, false)

	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, 1, ts.Count(5, 7))
	assert.Equal(t, 1, ts.Count(7, 9))
	assert.Equal(t, 0, ts.Count(5, 9), "only consecutive changes count, never the transitive closure")
	assert.Equal(t, 0, ts.Count(5, 5), "dwelling on a segment emits nothing")

	// Every sample points at the vehicle's next segment change
	require.Len(t, fwd, len(samples))
	assert.Equal(t, ForwardIndex{3, 3, 3, 5, 5, -1}, fwd)
	next, ok := fwd.NextSegment(samples, 0)
	assert.True(t, ok)
	assert.Equal(t, SegmentID(7), next)
	_, ok = fwd.NextSegment(samples, 5)
	assert.False(t, ok)
}

func TestExtractTransitionsSingleSample(t *testing.T) {
	ts, fwd := ExtractTransitions([]TrajectorySample{sample("a", 0, 5)}, false)
	assert.Equal(t, 0, ts.Len())
	assert.Equal(t, ForwardIndex{-1}, fwd)
}

func TestExtractTransitionsPerVehicle(t *testing.T) {
	// Vehicle boundaries never emit a transition
	samples := []TrajectorySample{
		sample("a", 0, 5),
		sample("a", 1, 7),
		sample("b", 0, 9),
		sample("b", 1, 11),
	}
	ts, fwd := ExtractTransitions(samples, false)
	assert.Equal(t, 2, ts.Len())
	assert.Equal(t, 1, ts.Count(5, 7))
	assert.Equal(t, 1, ts.Count(9, 11))
	assert.Equal(t, 0, ts.Count(7, 9))
	assert.Equal(t, ForwardIndex{1, -1, 3, -1}, fwd)
}

func TestTransitionSetPairsOrder(t *testing.T) {
	ts := NewTransitionSet()
	ts.add(5, 7, 100)
	ts.add(5, 8, 40)
	ts.add(9, 11, 40)
	pairs := ts.Pairs()
	require.Len(t, pairs, 3)
	assert.Equal(t, TransitionCount{From: 5, To: 7, Count: 100}, pairs[0])
	// Ties break on (from, to)
	assert.Equal(t, TransitionCount{From: 5, To: 8, Count: 40}, pairs[1])
	assert.Equal(t, TransitionCount{From: 9, To: 11, Count: 40}, pairs[2])
}

func TestTransitionsCSVRoundTrip(t *testing.T) {
	ts := NewTransitionSet()
	ts.add(5, 7, 100)
	ts.add(5, 8, 40)
	ts.add(7, 9, 3)

	fname := filepath.Join(t.TempDir(), "transitions.csv")
	require.NoError(t, ts.ExportToCSV(fname))

	loaded, err := ImportTransitionsFromCSV(fname)
	require.NoError(t, err)
	assert.Equal(t, ts.Len(), loaded.Len())
	for _, pair := range ts.Pairs() {
		assert.Equal(t, pair.Count, loaded.Count(pair.From, pair.To))
	}
}

func TestImportTransitionsMissingColumn(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "broken.csv")
	require.NoError(t, os.WriteFile(fname, []byte("from_id,to_id\n5,7\n"), 0644))

	_, err := ImportTransitionsFromCSV(fname)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count")
	assert.Contains(t, err.Error(), fname)
}

func TestImportTransitionsNegativeCount(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "negative.csv")
	require.NoError(t, os.WriteFile(fname, []byte("from_id,to_id,count\n5,7,-1\n"), 0644))

	_, err := ImportTransitionsFromCSV(fname)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Negative count")
}
