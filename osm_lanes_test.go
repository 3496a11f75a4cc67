package lanegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLineByLength(t *testing.T) {
	// Roughly 1.1km of straight road along a meridian; one degree of
	// latitude is ~111km
	line := []GeoPoint{
		{Lon: 37.0, Lat: 55.0},
		{Lon: 37.0, Lat: 55.01},
	}
	totalMeters := getSphericalLength(line) * 1000.0
	require.Greater(t, totalMeters, 1000.0)

	chunks := splitLineByLength(line, 300.0)
	require.Greater(t, len(chunks), 2)

	// Chunks chain: each starts where the previous one ended
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1][len(chunks[i-1])-1], chunks[i][0])
	}

	// Every chunk except the tail is ~300m and lengths add back up
	sum := 0.0
	for i, chunk := range chunks {
		meters := getSphericalLength(chunk) * 1000.0
		sum += meters
		if i < len(chunks)-1 {
			assert.InDelta(t, 300.0, meters, 1.0)
		}
	}
	assert.InDelta(t, totalMeters, sum, 1.0)
}

func TestSplitLineByLengthShortLine(t *testing.T) {
	line := []GeoPoint{
		{Lon: 37.0, Lat: 55.0},
		{Lon: 37.0001, Lat: 55.0},
	}
	chunks := splitLineByLength(line, 300.0)
	require.Len(t, chunks, 1)
	assert.Equal(t, line, chunks[0])
}

func TestSplitLineByLengthDisabled(t *testing.T) {
	line := []GeoPoint{
		{Lon: 37.0, Lat: 55.0},
		{Lon: 37.0, Lat: 55.01},
	}
	chunks := splitLineByLength(line, 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, line, chunks[0])
}
