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

/* Observed transitions */

// SegmentID identifies either a lane or a node, depending on the
// granularity the trajectory file was tagged at. One transition table
// always holds a single granularity.
type SegmentID int64

type transitionKey struct {
	From SegmentID
	To   SegmentID
}

// TransitionCount is one aggregated ordered pair with its frequency
type TransitionCount struct {
	From  SegmentID
	To    SegmentID
	Count int
}

// TransitionSet aggregates observed segment-to-segment transitions over
// all vehicles. It is the sole behavioral evidence used to resolve
// candidate edges.
type TransitionSet struct {
	counts map[transitionKey]int
}

func NewTransitionSet() *TransitionSet {
	return &TransitionSet{counts: make(map[transitionKey]int)}
}

func (ts *TransitionSet) add(from, to SegmentID, count int) {
	ts.counts[transitionKey{From: from, To: to}] += count
}

// Count returns the observed frequency of an ordered pair
func (ts *TransitionSet) Count(from, to SegmentID) int {
	return ts.counts[transitionKey{From: from, To: to}]
}

// Observed reports whether the ordered pair occurred at least once
func (ts *TransitionSet) Observed(from, to SegmentID) bool {
	return ts.Count(from, to) > 0
}

// Len returns the number of distinct ordered pairs
func (ts *TransitionSet) Len() int {
	return len(ts.counts)
}

// Pairs returns all transitions sorted by descending count, ties by
// (from, to) for deterministic output
func (ts *TransitionSet) Pairs() []TransitionCount {
	pairs := make([]TransitionCount, 0, len(ts.counts))
	for key, count := range ts.counts {
		pairs = append(pairs, TransitionCount{From: key.From, To: key.To, Count: count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].From != pairs[j].From {
			return pairs[i].From < pairs[j].From
		}
		return pairs[i].To < pairs[j].To
	})
	return pairs
}

// Sources returns all distinct from-segments in ascending order
func (ts *TransitionSet) Sources() []SegmentID {
	seen := make(map[SegmentID]struct{})
	for key := range ts.counts {
		seen[key.From] = struct{}{}
	}
	sources := make([]SegmentID, 0, len(seen))
	for id := range seen {
		sources = append(sources, id)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

// Destinations returns all (to, count) tuples for one source, sorted by
// descending count
func (ts *TransitionSet) Destinations(from SegmentID) []TransitionCount {
	dests := []TransitionCount{}
	for key, count := range ts.counts {
		if key.From == from {
			dests = append(dests, TransitionCount{From: key.From, To: key.To, Count: count})
		}
	}
	sort.Slice(dests, func(i, j int) bool {
		if dests[i].Count != dests[j].Count {
			return dests[i].Count > dests[j].Count
		}
		return dests[i].To < dests[j].To
	})
	return dests
}

// ForwardIndex maps every sample index to the index of the same
// vehicle's next sample with a differing segment id, or -1. Computed
// once per trajectory and shared by transition extraction and occupancy
// spillover, instead of rescanning the trajectory per node per window.
type ForwardIndex []int

// NextSegment returns the next differing segment the vehicle of sample
// i reaches, if any
func (fwd ForwardIndex) NextSegment(samples []TrajectorySample, i int) (SegmentID, bool) {
	if i < 0 || i >= len(fwd) || fwd[i] < 0 {
		return 0, false
	}
	return samples[fwd[i]].SegmentID, true
}

// ExtractTransitions scans samples sorted by (vehicle, timestamp) and
// aggregates every segment change of every vehicle into counts. It also
// builds the forward index in the same pass. Single-sample trajectories
// emit nothing.
func ExtractTransitions(samples []TrajectorySample, verbose bool) (*TransitionSet, ForwardIndex) {
	if verbose {
		fmt.Print("Extracting transitions...")
	}
	st := time.Now()

	ts := NewTransitionSet()
	fwd := make(ForwardIndex, len(samples))
	for i := range fwd {
		fwd[i] = -1
	}

	emitted := 0
	start := 0
	for start < len(samples) {
		end := start + 1
		for end < len(samples) && samples[end].VehicleID == samples[start].VehicleID {
			end++
		}
		// One vehicle in samples[start:end]. Walk backwards so every
		// sample can inherit the change point found after it.
		next := -1
		for i := end - 1; i >= start; i-- {
			if i+1 < end {
				if samples[i+1].SegmentID != samples[i].SegmentID {
					next = i + 1
					ts.add(samples[i].SegmentID, samples[i+1].SegmentID, 1)
					emitted++
				}
			}
			fwd[i] = next
		}
		start = end
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tTransitions emitted: %d, distinct pairs: %d\n", emitted, ts.Len())
	}
	return ts, fwd
}

/* Transition table persistence */

const (
	transitionColFrom  = "from_id"
	transitionColTo    = "to_id"
	transitionColCount = "count"
)

// ExportToCSV persists the transition table sorted by descending count
func (ts *TransitionSet) ExportToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	err = writer.Write([]string{transitionColFrom, transitionColTo, transitionColCount})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}
	for _, pair := range ts.Pairs() {
		err = writer.Write([]string{
			strconv.FormatInt(int64(pair.From), 10),
			strconv.FormatInt(int64(pair.To), 10),
			strconv.Itoa(pair.Count),
		})
		if err != nil {
			return errors.Wrap(err, "Can't write transition")
		}
	}
	return nil
}

// ImportTransitionsFromCSV loads a persisted transition table. A
// missing required column is fatal and names the field and the file.
func ImportTransitionsFromCSV(fname string) (*TransitionSet, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open transitions file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "Can't read transitions header")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}
	for _, required := range []string{transitionColFrom, transitionColTo, transitionColCount} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("Missing required field '%s' in transitions file '%s'", required, fname)
		}
	}

	ts := NewTransitionSet()
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "Can't read transitions record")
		}
		from, err := strconv.ParseFloat(strings.TrimSpace(record[cols[transitionColFrom]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad from_id in transitions file '%s'", fname)
		}
		to, err := strconv.ParseFloat(strings.TrimSpace(record[cols[transitionColTo]]), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad to_id in transitions file '%s'", fname)
		}
		count, err := strconv.Atoi(strings.TrimSpace(record[cols[transitionColCount]]))
		if err != nil {
			return nil, errors.Wrapf(err, "Bad count in transitions file '%s'", fname)
		}
		if count < 0 {
			return nil, fmt.Errorf("Negative count for pair (%d, %d) in transitions file '%s'", int64(from), int64(to), fname)
		}
		ts.add(SegmentID(from), SegmentID(to), count)
	}
	return ts, nil
}
