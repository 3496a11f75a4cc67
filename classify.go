package lanegraph

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

/* Connection classifier */

// ClassifiedConnections is the per-pair verdict of the classifier over
// one transition table: the dominant destination(s) of each source are
// direct, the surviving remainder near, everything below the noise
// threshold discarded (but counted).
type ClassifiedConnections struct {
	Direct map[SegmentID][]SegmentID
	Near   map[SegmentID][]SegmentID
	// Number of (from, to) pairs discarded as noise, reported per input
	// file for auditability
	NoiseDiscarded int
}

// ClassifyTransitions resolves every observed source's destinations
// into direct/near/noise using the configured strategy. Ties at the
// maximum count all become direct (forks keep multiple successors).
func ClassifyTransitions(ts *TransitionSet, cfg GraphConfig, verbose bool) *ClassifiedConnections {
	if verbose {
		fmt.Print("Classifying transitions...")
	}
	st := time.Now()

	classified := &ClassifiedConnections{
		Direct: make(map[SegmentID][]SegmentID),
		Near:   make(map[SegmentID][]SegmentID),
	}

	for _, from := range ts.Sources() {
		dests := ts.Destinations(from)
		threshold := noiseThreshold(dests, cfg)

		maxCount := 0
		for _, dest := range dests {
			if dest.Count > maxCount {
				maxCount = dest.Count
			}
		}
		if maxCount <= 0 || float64(maxCount) < threshold {
			// Every destination of this source is noise
			classified.NoiseDiscarded += len(dests)
			continue
		}
		for _, dest := range dests {
			switch {
			case dest.Count == maxCount:
				classified.Direct[from] = append(classified.Direct[from], dest.To)
			case float64(dest.Count) >= threshold && dest.Count > 0:
				classified.Near[from] = append(classified.Near[from], dest.To)
			default:
				classified.NoiseDiscarded++
			}
		}
		sortSegmentIDs(classified.Direct[from])
		sortSegmentIDs(classified.Near[from])
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tSources: %d, noise discarded: %d\n", len(ts.Sources()), classified.NoiseDiscarded)
	}
	return classified
}

// noiseThreshold returns the minimal count a destination must reach to
// survive, according to the configured strategy
func noiseThreshold(dests []TransitionCount, cfg GraphConfig) float64 {
	switch cfg.Classifier {
	case ClassifierLowerQuartile:
		// With one or two destinations a quartile is meaningless; keep
		// everything
		if len(dests) <= 2 {
			return 0
		}
		counts := make([]float64, len(dests))
		for i, dest := range dests {
			counts[i] = float64(dest.Count)
		}
		sort.Float64s(counts)
		return stat.Quantile(0.25, stat.LinInterp, counts, nil)
	default:
		return float64(cfg.NoiseCountThreshold)
	}
}

func sortSegmentIDs(ids []SegmentID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// IsDirect reports whether the ordered pair was classified direct
func (cc *ClassifiedConnections) IsDirect(from, to SegmentID) bool {
	return containsSegment(cc.Direct[from], to)
}

// IsNear reports whether the ordered pair was classified near
func (cc *ClassifiedConnections) IsNear(from, to SegmentID) bool {
	return containsSegment(cc.Near[from], to)
}

func containsSegment(ids []SegmentID, id SegmentID) bool {
	for i := range ids {
		if ids[i] == id {
			return true
		}
	}
	return false
}
