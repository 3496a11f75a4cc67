package lanegraph

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

/* Trajectory input */

// TrajectorySample is one timestamped observation of a vehicle, already
// resolved to a segment by the upstream spatial join. SegmentID holds a
// lane id or a node id depending on the tagging granularity of the
// file; callers must not mix levels.
type TrajectorySample struct {
	VehicleID string
	Timestamp float64
	SegmentID SegmentID
	Speed     float64
	// Vehicle class name; may be empty when only a width was observed
	Class string
	// Observed width in meters; 0 when the field is absent
	Width float64
}

// TrajectoryStats counts per-record data-quality outcomes of one load.
// Filtered records are not an error, but they are never swallowed
// without a count.
type TrajectoryStats struct {
	TotalRecords    int
	FilteredRecords int
}

// trajectory header names, matching the upstream collaborator's output
const (
	trajColVehicle = "id"
	trajColFrame   = "frame"
	trajColSegment = "node_id"
	trajColSpeed   = "v"
	trajColClass   = "car_type"
	trajColWidth   = "width"
)

// LoadTrajectoryCSV reads a trajectory file and returns its samples
// sorted by (vehicle, timestamp). Records without a resolvable segment
// id are dropped and counted. A missing required column is fatal.
func LoadTrajectoryCSV(fname string, verbose bool) ([]TrajectorySample, TrajectoryStats, error) {
	stats := TrajectoryStats{}

	file, err := os.Open(fname)
	if err != nil {
		return nil, stats, errors.Wrap(err, "Can't open trajectory file")
	}
	defer file.Close()

	if verbose {
		fmt.Printf("Reading trajectory file: '%s'...", fname)
	}
	st := time.Now()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, stats, errors.Wrap(err, "Can't read trajectory header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{trajColVehicle, trajColFrame, trajColSegment, trajColSpeed} {
		if _, ok := cols[required]; !ok {
			return nil, stats, fmt.Errorf("Missing required field '%s' in trajectory file '%s'", required, fname)
		}
	}
	classIdx, hasClass := cols[trajColClass]
	widthIdx, hasWidth := cols[trajColWidth]

	// The reader tolerates ragged optional columns, so required ones
	// must be length-checked per row
	maxRequiredIdx := 0
	for _, required := range []string{trajColVehicle, trajColFrame, trajColSegment, trajColSpeed} {
		if cols[required] > maxRequiredIdx {
			maxRequiredIdx = cols[required]
		}
	}

	samples := []TrajectorySample{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, errors.Wrap(err, "Can't read trajectory record")
		}
		stats.TotalRecords++

		if len(record) <= maxRequiredIdx {
			return nil, stats, fmt.Errorf("Row %d in trajectory file '%s' has %d fields, expected at least %d", stats.TotalRecords, fname, len(record), maxRequiredIdx+1)
		}

		segmentField := strings.TrimSpace(record[cols[trajColSegment]])
		if segmentField == "" {
			// Unresolved by the upstream spatial join
			stats.FilteredRecords++
			continue
		}
		segmentValue, err := strconv.ParseFloat(segmentField, 64)
		if err != nil {
			stats.FilteredRecords++
			continue
		}

		// Some exports terminate the frame field with a semicolon
		frameField := strings.TrimSuffix(strings.TrimSpace(record[cols[trajColFrame]]), ";")
		timestamp, err := strconv.ParseFloat(frameField, 64)
		if err != nil {
			return nil, stats, errors.Wrapf(err, "Bad frame value '%s' in trajectory file '%s'", frameField, fname)
		}
		speed, err := strconv.ParseFloat(strings.TrimSpace(record[cols[trajColSpeed]]), 64)
		if err != nil {
			return nil, stats, errors.Wrapf(err, "Bad speed value in trajectory file '%s'", fname)
		}

		sample := TrajectorySample{
			VehicleID: strings.TrimSpace(record[cols[trajColVehicle]]),
			Timestamp: timestamp,
			SegmentID: SegmentID(segmentValue),
			Speed:     speed,
		}
		if hasClass && classIdx < len(record) {
			sample.Class = strings.ToLower(strings.TrimSpace(record[classIdx]))
		}
		if hasWidth && widthIdx < len(record) {
			if width, err := strconv.ParseFloat(strings.TrimSpace(record[widthIdx]), 64); err == nil {
				sample.Width = width
			}
		}
		samples = append(samples, sample)
	}

	SortSamples(samples)

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tRecords: %d, filtered (no segment match): %d\n", stats.TotalRecords, stats.FilteredRecords)
	}
	return samples, stats, nil
}

// SortSamples orders samples by (vehicle, timestamp); every per-vehicle
// pass in the pipeline relies on this ordering
func SortSamples(samples []TrajectorySample) {
	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].VehicleID != samples[j].VehicleID {
			return samples[i].VehicleID < samples[j].VehicleID
		}
		return samples[i].Timestamp < samples[j].Timestamp
	})
}
