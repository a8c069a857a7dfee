package heatcense

import (
	"math"
	"sort"
	"time"

	"github.com/tidwall/rtree"
	"gonum.org/v1/gonum/floats"
)

// ObjectClass is where an Object sits in the Candidate -> Person ->
// Stationary state machine.
type ObjectClass int

const (
	ClassCandidate ObjectClass = iota
	ClassPerson
	ClassStationary
)

func (c ObjectClass) String() string {
	switch c {
	case ClassCandidate:
		return "candidate"
	case ClassPerson:
		return "person"
	case ClassStationary:
		return "stationary"
	default:
		return "unknown"
	}
}

// Object is one tracked foreground blob, carried across frames by the
// tracker's nearest-unclaimed-cluster association.
type Object struct {
	ID    uint64
	Class ObjectClass

	CentroidX, CentroidY float64
	PixelCount           int
	CovXX, CovXY, CovYY  float64

	misses int

	firstSeen      time.Time
	lastMoved      time.Time
	lastClassified time.Time
}

// TrackerParams tunes association, aging and classification.
type TrackerParams struct {
	WeightPosition  float64 // w_pos
	WeightSize      float64 // w_size
	WeightShape     float64 // w_shape
	MaximumMovement float64 // association gate: clusters beyond this are never matched

	MaxMisses       int // G: consecutive missed frames before an object is dropped
	MovementEpsilon float64
	StationaryAfter time.Duration
	MinimumSize     int // clusters with fewer pixels than this are discarded before tracking
}

// DefaultTrackerParams is a reasonable starting tuning for an indoor
// room-scale deployment.
func DefaultTrackerParams() TrackerParams {
	return TrackerParams{
		WeightPosition:  1.0,
		WeightSize:      0.5,
		WeightShape:     0.25,
		MaximumMovement: 4.0,
		MaxMisses:       5,
		MovementEpsilon: 0.5,
		StationaryAfter: 3 * time.Hour,
		MinimumSize:     4,
	}
}

// Tracker maintains the set of live Objects across frames. It is owned
// by the occupancy engine's task; no locking is needed since it is
// never touched from more than one goroutine.
type Tracker struct {
	params  TrackerParams
	objects map[uint64]*Object
	nextID  uint64
}

// NewTracker creates an empty tracker.
func NewTracker(params TrackerParams) *Tracker {
	return &Tracker{
		params:  params,
		objects: make(map[uint64]*Object),
	}
}

// Objects returns the live object set. Callers must not retain the
// returned slice past the next call to Update.
func (t *Tracker) Objects() []*Object {
	out := make([]*Object, 0, len(t.objects))
	for _, o := range t.objects {
		out = append(out, o)
	}
	return out
}

// Update associates clusters to existing objects, ages unmatched
// objects, spawns new Candidates for unclaimed clusters, and advances
// each matched object's classification state machine. It returns the
// set of object IDs that were dropped this frame (aged out on their
// MaxMisses-th consecutive miss), so callers can emit transition events.
func (t *Tracker) Update(clusters []PointCluster, now time.Time) (dropped []uint64) {
	idx := buildIndex(t.objects)

	claimed := make(map[uint64]bool, len(t.objects))
	unclaimedClusters := make([]bool, len(clusters))
	for i := range unclaimedClusters {
		unclaimedClusters[i] = true
	}

	type candidate struct {
		objID     uint64
		clusterIx int
		dist      float64
	}
	var pairs []candidate

	for i, c := range clusters {
		min := [2]float64{c.CentroidX - t.params.MaximumMovement, c.CentroidY - t.params.MaximumMovement}
		max := [2]float64{c.CentroidX + t.params.MaximumMovement, c.CentroidY + t.params.MaximumMovement}
		idx.Search(min, max, func(_, _ [2]float64, objID uint64) bool {
			obj := t.objects[objID]
			d := distance(obj, &c, t.params)
			if d <= t.params.MaximumMovement {
				pairs = append(pairs, candidate{objID: objID, clusterIx: i, dist: d})
			}
			return true
		})
	}

	// Stable sort with an explicit id tiebreak so that equal-distance
	// pairs resolve deterministically instead of depending on map
	// iteration order.
	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].dist != pairs[j].dist {
			return pairs[i].dist < pairs[j].dist
		}
		return pairs[i].objID < pairs[j].objID
	})

	for _, p := range pairs {
		if claimed[p.objID] || !unclaimedClusters[p.clusterIx] {
			continue
		}
		claimed[p.objID] = true
		unclaimedClusters[p.clusterIx] = false
		t.applyMatch(t.objects[p.objID], &clusters[p.clusterIx], now)
	}

	for id, obj := range t.objects {
		if claimed[id] {
			continue
		}
		obj.misses++
		if obj.misses >= t.params.MaxMisses {
			dropped = append(dropped, id)
			delete(t.objects, id)
		}
	}

	for i, free := range unclaimedClusters {
		if !free {
			continue
		}
		c := clusters[i]
		t.nextID++
		t.objects[t.nextID] = &Object{
			ID:             t.nextID,
			Class:          ClassCandidate,
			CentroidX:      c.CentroidX,
			CentroidY:      c.CentroidY,
			PixelCount:     c.PixelCount,
			CovXX:          c.CovXX,
			CovXY:          c.CovXY,
			CovYY:          c.CovYY,
			firstSeen:      now,
			lastMoved:      now,
			lastClassified: now,
		}
	}

	return dropped
}

// applyMatch merges a matched cluster's observation into obj and
// advances its classification.
func (t *Tracker) applyMatch(obj *Object, c *PointCluster, now time.Time) {
	dx := c.CentroidX - obj.CentroidX
	dy := c.CentroidY - obj.CentroidY
	moved := math.Hypot(dx, dy) > t.params.MovementEpsilon

	obj.misses = 0
	obj.CentroidX = c.CentroidX
	obj.CentroidY = c.CentroidY
	obj.PixelCount = c.PixelCount
	obj.CovXX, obj.CovXY, obj.CovYY = c.CovXX, c.CovXY, c.CovYY

	if moved {
		obj.lastMoved = now
	}

	switch obj.Class {
	case ClassCandidate:
		if moved {
			obj.Class = ClassPerson
			obj.lastClassified = now
		}
	case ClassPerson:
		if !moved && now.Sub(obj.lastMoved) >= t.params.StationaryAfter {
			obj.Class = ClassStationary
			obj.lastClassified = now
		}
	case ClassStationary:
		if moved {
			obj.Class = ClassPerson
			obj.lastClassified = now
		}
	}
}

// distance implements the weighted centroid/size/shape metric:
// d = w_pos*||delta centroid|| + w_size*|delta pixels|/max(pixels) + w_shape*||delta cov||_F
func distance(obj *Object, c *PointCluster, params TrackerParams) float64 {
	posTerm := math.Hypot(c.CentroidX-obj.CentroidX, c.CentroidY-obj.CentroidY)

	maxPixels := obj.PixelCount
	if c.PixelCount > maxPixels {
		maxPixels = c.PixelCount
	}
	sizeTerm := 0.0
	if maxPixels > 0 {
		sizeTerm = math.Abs(float64(c.PixelCount-obj.PixelCount)) / float64(maxPixels)
	}

	delta := []float64{c.CovXX - obj.CovXX, c.CovXY - obj.CovXY, c.CovXY - obj.CovXY, c.CovYY - obj.CovYY}
	shapeTerm := floats.Norm(delta, 2)

	return params.WeightPosition*posTerm + params.WeightSize*sizeTerm + params.WeightShape*shapeTerm
}

// buildIndex rebuilds an R-tree over the current objects' centroids each
// frame. Rebuilding is simpler and, at the pixel-grid object counts this
// system ever sees (single digits to low tens of people in a room), no
// slower than incremental maintenance.
func buildIndex(objects map[uint64]*Object) *rtree.RTreeG[uint64] {
	var tr rtree.RTreeG[uint64]
	for id, obj := range objects {
		pt := [2]float64{obj.CentroidX, obj.CentroidY}
		tr.Insert(pt, pt, id)
	}
	return &tr
}
