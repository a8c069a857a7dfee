package camera

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/heatcense/heatcense/pkg/heatcense"
)

// FakeSource generates synthetic thermal frames: a flat ambient floor
// plus any warm blobs injected via Inject. It exists so tests and demos
// can drive the pipeline without real I2C hardware.
type FakeSource struct {
	width, height int
	interval      time.Duration
	ambient       float64

	mu    sync.Mutex
	blobs []blob
	seq   uint64
}

type blob struct {
	x, y, radius, deltaC float64
}

// NewFakeSource creates a generator for a width x height grid, emitting
// one frame every interval.
func NewFakeSource(width, height int, interval time.Duration) *FakeSource {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &FakeSource{width: width, height: height, interval: interval, ambient: 21.0}
}

// SetAmbient sets the background temperature returned for pixels not
// covered by an injected blob.
func (f *FakeSource) SetAmbient(celsius float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ambient = celsius
}

// Inject adds a warm (or cool) circular region centered at (x, y) in
// pixel coordinates, deltaC degrees above ambient, for the next frames
// until ClearBlobs is called.
func (f *FakeSource) Inject(x, y, radius, deltaC float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs = append(f.blobs, blob{x: x, y: y, radius: radius, deltaC: deltaC})
}

// ClearBlobs removes every injected region, returning the scene to flat
// ambient.
func (f *FakeSource) ClearBlobs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs = nil
}

func (f *FakeSource) Open(ctx context.Context) error { return nil }
func (f *FakeSource) Close() error                   { return nil }
func (f *FakeSource) Width() int                     { return f.width }
func (f *FakeSource) Height() int                    { return f.height }

// Read blocks until the next sample tick and returns a frame rendered
// from the current ambient temperature and injected blobs.
func (f *FakeSource) Read(ctx context.Context) (*heatcense.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(f.interval):
	}

	f.mu.Lock()
	ambient := f.ambient
	blobs := make([]blob, len(f.blobs))
	copy(blobs, f.blobs)
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	pixels := make([]float64, f.width*f.height)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			v := ambient
			for _, b := range blobs {
				d := math.Hypot(float64(x)-b.x, float64(y)-b.y)
				if d <= b.radius {
					v += b.deltaC
				}
			}
			pixels[y*f.width+x] = v
		}
	}

	return &heatcense.Frame{
		Width:     f.width,
		Height:    f.height,
		Pixels:    pixels,
		Ambient:   ambient,
		Timestamp: time.Now(),
		SeqNum:    seq,
	}, nil
}
