package lanegraph

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"github.com/pkg/errors"
)

/* Spatial connectivity builder */

// CandidateConnections holds lane-level connections derived from
// geometry alone. Near candidates stay provisional until validated
// against observed transitions.
type CandidateConnections struct {
	Direct map[LaneID][]LaneID
	Near   map[LaneID][]LaneID
}

// laneCentroid adapts a lane centroid to the quadtree's Pointer
type laneCentroid struct {
	laneID LaneID
	point  orb.Point
}

func (lc laneCentroid) Point() orb.Point {
	return lc.point
}

// BuildSpatialCandidates derives direct edges from angular ordering
// within each road group and near candidates from a centroid radius
// query. Lanes without a resolvable road group form singleton groups
// and emit no direct edges.
func BuildSpatialCandidates(lanes map[LaneID]*Lane, cfg GraphConfig, verbose bool) (*CandidateConnections, error) {
	if verbose {
		fmt.Print("Building spatial candidates...")
	}
	st := time.Now()

	candidates := &CandidateConnections{
		Direct: make(map[LaneID][]LaneID),
		Near:   make(map[LaneID][]LaneID),
	}

	/* Direct edges: angular order within each road group */
	groups := make(map[int64][]*Lane)
	for _, lane := range lanes {
		if lane.JoinFID == NoJoinFID {
			continue
		}
		groups[lane.JoinFID] = append(groups[lane.JoinFID], lane)
	}
	for _, group := range groups {
		if len(group) <= 1 {
			continue
		}
		ordered := orderByAngle(group)
		for i := 0; i < len(ordered)-1; i++ {
			candidates.Direct[ordered[i]] = append(candidates.Direct[ordered[i]], ordered[i+1])
			// No automatic reverse edge: lanes are one way
		}
	}

	/* Near candidates: radius query over all lane centroids */
	if len(lanes) > 0 {
		bound := orb.Bound{Min: orb.Point{math.Inf(1), math.Inf(1)}, Max: orb.Point{math.Inf(-1), math.Inf(-1)}}
		for _, lane := range lanes {
			bound = bound.Extend(lane.Centroid())
		}
		// Pad so boundary centroids stay inside the tree's bound
		pad := cfg.NearRadiusMeters
		bound.Min[0] -= pad
		bound.Min[1] -= pad
		bound.Max[0] += pad
		bound.Max[1] += pad

		tree := quadtree.New(bound)
		for _, lane := range lanes {
			if err := tree.Add(laneCentroid{laneID: lane.ID, point: lane.Centroid()}); err != nil {
				return nil, errors.Wrapf(err, "Can't index centroid of lane %d", lane.ID)
			}
		}

		buf := []orb.Pointer{}
		for _, lane := range sortedLanes(lanes) {
			center := lane.Centroid()
			queryBound := orb.Bound{
				Min: orb.Point{center[0] - cfg.NearRadiusMeters, center[1] - cfg.NearRadiusMeters},
				Max: orb.Point{center[0] + cfg.NearRadiusMeters, center[1] + cfg.NearRadiusMeters},
			}
			buf = tree.InBound(buf[:0], queryBound)
			for _, pointer := range buf {
				neighbor := pointer.(laneCentroid)
				if neighbor.laneID == lane.ID {
					continue
				}
				if planar.Distance(center, neighbor.point) > cfg.NearRadiusMeters {
					continue
				}
				other := lanes[neighbor.laneID]
				// Same road group is already covered by direct
				if lane.JoinFID != NoJoinFID && other.JoinFID == lane.JoinFID {
					continue
				}
				candidates.Near[lane.ID] = append(candidates.Near[lane.ID], neighbor.laneID)
			}
			sortLaneIDs(candidates.Near[lane.ID])
		}
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tDirect sources: %d, near sources: %d\n", len(candidates.Direct), len(candidates.Near))
	}
	return candidates, nil
}

// orderByAngle sorts a road group's lanes by the angle of each centroid
// around the group's centroid mean. Approximates "next lane along the
// road"; degenerates if a group loops over more than one rotation.
func orderByAngle(group []*Lane) []LaneID {
	var meanX, meanY float64
	for _, lane := range group {
		meanX += lane.Centroid()[0]
		meanY += lane.Centroid()[1]
	}
	meanX /= float64(len(group))
	meanY /= float64(len(group))

	type laneAngle struct {
		id    LaneID
		angle float64
	}
	angles := make([]laneAngle, 0, len(group))
	for _, lane := range group {
		angles = append(angles, laneAngle{
			id:    lane.ID,
			angle: math.Atan2(lane.Centroid()[1]-meanY, lane.Centroid()[0]-meanX),
		})
	}
	sort.Slice(angles, func(i, j int) bool {
		if angles[i].angle != angles[j].angle {
			return angles[i].angle < angles[j].angle
		}
		return angles[i].id < angles[j].id
	})

	ordered := make([]LaneID, len(angles))
	for i := range angles {
		ordered[i] = angles[i].id
	}
	return ordered
}

/* Connection resolution: geometry candidates x observed transitions */

// ResolvedConnections is the final lane-level connectivity after
// combining spatial candidates with observed transition evidence
type ResolvedConnections struct {
	Direct   map[LaneID][]LaneID
	Near     map[LaneID][]LaneID
	Crossing map[LaneID][]LaneID
	// Observed jumps discarded as coincident-id noise (closer than the
	// crossing minimum distance) plus the classifier's noise count
	NoiseDiscarded int
}

// ResolveConnections merges geometric candidates with classified
// transition evidence:
//   - spatial direct edges are kept;
//   - a near candidate survives only if its exact ordered pair was
//     observed at least once, and is upgraded to direct when traffic
//     dominance classified it so;
//   - observed non-noise pairs in neither candidate set become crossing
//     when the centroid distance reaches the configured minimum.
//
// The three sets are disjoint by construction (direct > near > crossing).
func ResolveConnections(lanes map[LaneID]*Lane, candidates *CandidateConnections, ts *TransitionSet, cfg GraphConfig, verbose bool) *ResolvedConnections {
	classified := ClassifyTransitions(ts, cfg, verbose)

	if verbose {
		fmt.Print("Resolving lane connections...")
	}
	st := time.Now()

	resolved := &ResolvedConnections{
		Direct:         make(map[LaneID][]LaneID),
		Near:           make(map[LaneID][]LaneID),
		Crossing:       make(map[LaneID][]LaneID),
		NoiseDiscarded: classified.NoiseDiscarded,
	}

	isDirect := func(from, to LaneID) bool {
		return containsLane(resolved.Direct[from], to)
	}

	for from, targets := range candidates.Direct {
		for _, to := range targets {
			if !isDirect(from, to) {
				resolved.Direct[from] = append(resolved.Direct[from], to)
			}
		}
	}
	for from, targets := range candidates.Near {
		for _, to := range targets {
			if !ts.Observed(SegmentID(from), SegmentID(to)) {
				continue
			}
			if isDirect(from, to) {
				continue
			}
			// Traffic dominance turns a lateral candidate into the
			// primary successor
			if classified.IsDirect(SegmentID(from), SegmentID(to)) {
				resolved.Direct[from] = append(resolved.Direct[from], to)
				continue
			}
			resolved.Near[from] = append(resolved.Near[from], to)
		}
	}

	// Long-distance jumps seen only in trajectories become crossing
	for _, pair := range ts.Pairs() {
		from, to := LaneID(pair.From), LaneID(pair.To)
		if isDirect(from, to) || containsLane(resolved.Near[from], to) {
			continue
		}
		if !classified.IsDirect(pair.From, pair.To) && !classified.IsNear(pair.From, pair.To) {
			continue
		}
		fromLane, okFrom := lanes[from]
		toLane, okTo := lanes[to]
		if !okFrom || !okTo {
			continue
		}
		if planar.Distance(fromLane.Centroid(), toLane.Centroid()) < cfg.CrossingMinDistanceMeters {
			// Too close to be a real jump: coincident segment ids
			resolved.NoiseDiscarded++
			continue
		}
		resolved.Crossing[from] = append(resolved.Crossing[from], to)
	}

	for _, set := range []map[LaneID][]LaneID{resolved.Direct, resolved.Near, resolved.Crossing} {
		for id := range set {
			sortLaneIDs(set[id])
		}
	}

	if verbose {
		fmt.Printf("Done in %v\n", time.Since(st))
		fmt.Printf("\tDirect: %d, near: %d, crossing: %d, noise discarded: %d\n",
			countEdges(resolved.Direct), countEdges(resolved.Near), countEdges(resolved.Crossing), resolved.NoiseDiscarded)
	}
	return resolved
}

func countEdges(set map[LaneID][]LaneID) int {
	total := 0
	for id := range set {
		total += len(set[id])
	}
	return total
}

func containsLane(ids []LaneID, id LaneID) bool {
	for i := range ids {
		if ids[i] == id {
			return true
		}
	}
	return false
}

func sortLaneIDs(ids []LaneID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortedLanes(lanes map[LaneID]*Lane) []*Lane {
	ordered := make([]*Lane, 0, len(lanes))
	for _, lane := range lanes {
		ordered = append(ordered, lane)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })
	return ordered
}
