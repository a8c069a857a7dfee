package heatcense

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// FrameBus fans a stream of oriented Frames out to subscribers. Unlike
// the simple drop-newest broadcast a slow consumer usually gets, a slow
// subscriber here has its oldest buffered frame evicted to make room
// for the newest one: the occupancy engine and the renderer both only
// care about the most current state of the room, so an old frame is
// worthless once a newer one exists. The occupancy engine is expected
// to keep up; if it doesn't, Publish logs a warning so the mismatch is
// visible instead of silently degrading detection latency.
type FrameBus struct {
	mu          sync.Mutex
	subscribers map[chan *Frame]int // channel -> buffer capacity
	logger      *slog.Logger
}

// NewFrameBus creates an empty bus.
func NewFrameBus(logger *slog.Logger) *FrameBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameBus{subscribers: make(map[chan *Frame]int), logger: logger}
}

// Subscribe returns a channel of the given buffer depth that will
// receive every frame Published after this call.
func (b *FrameBus) Subscribe(buffer int) <-chan *Frame {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *Frame, buffer)
	b.mu.Lock()
	b.subscribers[ch] = buffer
	b.mu.Unlock()
	return ch
}

// Unsubscribe stops delivery to a channel returned by Subscribe and
// closes it.
func (b *FrameBus) Unsubscribe(ch <-chan *Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subscribers {
		if sub == ch {
			delete(b.subscribers, sub)
			close(sub)
			return
		}
	}
}

// Publish delivers f to every subscriber, dropping the oldest buffered
// frame (not f itself) when a subscriber's channel is full.
func (b *FrameBus) Publish(f *Frame, component string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- f:
		default:
			select {
			case <-ch:
			default:
			}
			b.logger.Warn("frame bus subscriber falling behind", "component", component)
			select {
			case ch <- f:
			default:
			}
		}
	}
}

// OccupancyBus fans out OccupancyUpdate events to subscribers. These are
// cheap to generate and the occupancy engine is the only producer, so a
// subscriber whose buffer is full simply misses the new update (it is
// dropped rather than evicting an older one).
type OccupancyBus struct {
	mu          sync.Mutex
	subscribers map[chan OccupancyUpdate]bool
}

// NewOccupancyBus creates an empty bus.
func NewOccupancyBus() *OccupancyBus {
	return &OccupancyBus{subscribers: make(map[chan OccupancyUpdate]bool)}
}

func (b *OccupancyBus) Subscribe(buffer int) <-chan OccupancyUpdate {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan OccupancyUpdate, buffer)
	b.mu.Lock()
	b.subscribers[ch] = true
	b.mu.Unlock()
	return ch
}

func (b *OccupancyBus) Publish(u OccupancyUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

// RuntimeState mirrors the lifecycle states a driven pipeline moves
// through, following the same Idle -> Running -> Stopped -> Closed
// shape used throughout this codebase's concurrent components.
type RuntimeState int

const (
	RuntimeIdle RuntimeState = iota
	RuntimeRunning
	RuntimeStopped
	RuntimeClosed
)

// Runtime wires the camera producer, orientation filter, occupancy
// engine, renderer and MQTT publisher tasks together and supervises
// them with an errgroup so that one task's failure cancels the rest
// cleanly instead of leaving orphaned goroutines.
type Runtime struct {
	mu    sync.Mutex
	state RuntimeState

	RawBus       *FrameBus
	OrientedBus  *FrameBus
	OccupancyBus *OccupancyBus

	cancel context.CancelFunc
	group  *errgroup.Group
	logger *slog.Logger
}

// NewRuntime constructs a Runtime with fresh buses.
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		state:        RuntimeIdle,
		RawBus:       NewFrameBus(logger),
		OrientedBus:  NewFrameBus(logger),
		OccupancyBus: NewOccupancyBus(),
		logger:       logger,
	}
}

// Run starts every task passed in and blocks until the context is
// cancelled or a task returns an error, then waits for the rest to
// finish their shutdown. Each task must return promptly when its ctx
// is cancelled.
func (r *Runtime) Run(ctx context.Context, tasks ...func(context.Context) error) error {
	r.mu.Lock()
	if r.state == RuntimeRunning || r.state == RuntimeClosed {
		r.mu.Unlock()
		return &InternalInvariantError{What: "Runtime.Run called while already running or closed"}
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(runCtx)
	r.cancel = cancel
	r.group = group
	r.state = RuntimeRunning
	r.mu.Unlock()

	for _, task := range tasks {
		task := task
		group.Go(func() error { return task(gctx) })
	}

	err := group.Wait()

	r.mu.Lock()
	r.state = RuntimeStopped
	r.mu.Unlock()

	return err
}

// Stop cancels every running task and returns without waiting; Run
// returns once the tasks have exited.
func (r *Runtime) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.state = RuntimeClosed
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State reports the runtime's current lifecycle state.
func (r *Runtime) State() RuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
