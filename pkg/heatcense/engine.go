package heatcense

import "time"

// OccupancyUpdate is published by the occupancy engine every time it
// finishes processing a frame. Occupied is true exactly when CountPersons
// is greater than zero.
type OccupancyUpdate struct {
	Timestamp      time.Time
	FrameSeq       uint64
	CountPersons   int
	Occupied       bool
	AmbientCelsius float64
	Objects        []Object
	Dropped        []uint64
}

// EngineParams bundles the tunables for the segmentation and tracking
// stages the occupancy engine drives each frame.
type EngineParams struct {
	Background BackgroundParams
	Tracker    TrackerParams
}

// DefaultEngineParams returns the engine's out-of-the-box tuning.
func DefaultEngineParams() EngineParams {
	return EngineParams{
		Background: DefaultBackgroundParams(),
		Tracker:    DefaultTrackerParams(),
	}
}

// Engine owns the BackgroundModel and Tracker exclusively and turns
// incoming oriented frames into OccupancyUpdate events. It is driven by
// exactly one goroutine (occupancyEngineTask in cmd/heatcense); no method on Engine is safe
// to call concurrently with another.
type Engine struct {
	background *BackgroundModel
	tracker    *Tracker
}

// NewEngine constructs an Engine sized for width x height frames.
func NewEngine(width, height int, params EngineParams) *Engine {
	return &Engine{
		background: NewBackgroundModel(width, height, params.Background),
		tracker:    NewTracker(params.Tracker),
	}
}

// Process runs one frame through background subtraction, clustering and
// tracking, and returns the resulting occupancy snapshot.
func (e *Engine) Process(f *Frame) OccupancyUpdate {
	mask := e.background.Segment(f)
	clusters := Clusters(mask, f.Width, f.Height, e.tracker.params.MinimumSize)
	dropped := e.tracker.Update(clusters, f.Timestamp)

	objs := e.tracker.Objects()
	count := 0
	snapshot := make([]Object, len(objs))
	for i, o := range objs {
		snapshot[i] = *o
		if o.Class == ClassPerson || o.Class == ClassStationary {
			count++
		}
	}

	return OccupancyUpdate{
		Timestamp:      f.Timestamp,
		FrameSeq:       f.SeqNum,
		CountPersons:   count,
		Occupied:       count > 0,
		AmbientCelsius: f.Ambient,
		Objects:        snapshot,
		Dropped:        dropped,
	}
}
