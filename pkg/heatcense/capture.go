package heatcense

import "sync"

// CaptureSnapshot pairs a raw frame with the foreground mask the
// background model produced for it, for diagnostic inspection.
type CaptureSnapshot struct {
	Frame      *Frame
	Foreground []bool
}

// Capture is a bounded in-memory ring buffer of the most recent
// snapshots. It never touches disk: the diagnostic need is "what did
// the sensor just see", not a persisted recording, so the buffer is
// capped and overwrites its oldest entry once full.
type Capture struct {
	mu    sync.Mutex
	ring  []CaptureSnapshot
	next  int
	count int
}

// NewCapture creates a ring buffer holding up to size snapshots.
func NewCapture(size int) *Capture {
	if size < 1 {
		size = 1
	}
	return &Capture{ring: make([]CaptureSnapshot, size)}
}

// Record appends a snapshot, evicting the oldest one once the buffer
// is full. The frame is not cloned; callers must not mutate it after
// passing it in.
func (c *Capture) Record(f *Frame, foreground []bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ring[c.next] = CaptureSnapshot{Frame: f, Foreground: foreground}
	c.next = (c.next + 1) % len(c.ring)
	if c.count < len(c.ring) {
		c.count++
	}
}

// Snapshots returns the captured snapshots oldest-first. The returned
// slice is a copy; mutating it does not affect the buffer.
func (c *Capture) Snapshots() []CaptureSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]CaptureSnapshot, 0, c.count)
	if c.count < len(c.ring) {
		out = append(out, c.ring[:c.count]...)
		return out
	}
	// Buffer is full and wrapped: oldest entry is at c.next.
	out = append(out, c.ring[c.next:]...)
	out = append(out, c.ring[:c.next]...)
	return out
}

// Len reports how many snapshots are currently held.
func (c *Capture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
