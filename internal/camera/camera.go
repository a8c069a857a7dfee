// Package camera defines the thermal imager contract and the concrete
// camera sources that implement it. The I2C register protocol for any
// specific chip is treated as an external interface: this package wires
// up the bus and exposes temperatures, but does not re-derive the
// vendor's datasheet.
package camera

import (
	"context"
	"time"

	"github.com/heatcense/heatcense/pkg/heatcense"
)

// Kind identifies a supported thermal imager chip.
type Kind string

const (
	KindGridEYE  Kind = "grideye"  // Panasonic AMG88xx, 8x8
	KindMLX90640 Kind = "mlx90640" // Melexis, 32x24
	KindMLX90641 Kind = "mlx90641" // Melexis, 16x12
	KindFake     Kind = "fake"     // synthetic source for tests and demos
)

// Dimensions returns the pixel grid size for a chip Kind.
func (k Kind) Dimensions() (width, height int, ok bool) {
	switch k {
	case KindGridEYE:
		return 8, 8, true
	case KindMLX90641:
		return 16, 12, true
	case KindMLX90640:
		return 32, 24, true
	default:
		return 0, 0, false
	}
}

// Source is the interface every thermal imager backend implements. It
// mirrors the camera-abstraction shape used throughout this codebase:
// an explicit Open/Close lifecycle plus a blocking Read tied to ctx so
// the producer task can be cancelled cleanly mid-sample.
type Source interface {
	// Open prepares the device for sampling. It is called once before
	// the first Read.
	Open(ctx context.Context) error
	// Read blocks until one frame is available or ctx is cancelled.
	Read(ctx context.Context) (*heatcense.Frame, error)
	// Width and Height report the fixed pixel grid size.
	Width() int
	Height() int
	// Close releases the underlying bus/device.
	Close() error
}

// Config selects and tunes a Source.
type Config struct {
	Kind        Kind
	I2CBus      string        // e.g. "/dev/i2c-1"; ignored by KindFake
	SampleEvery time.Duration // sampling interval requested from the chip
}

// Open constructs the Source named by cfg.Kind.
func Open(ctx context.Context, cfg Config) (Source, error) {
	var src Source
	switch cfg.Kind {
	case KindFake:
		src = NewFakeSource(8, 8, cfg.SampleEvery)
	case KindGridEYE, KindMLX90640, KindMLX90641:
		w, h, _ := cfg.Kind.Dimensions()
		src = newPeriphSource(cfg.Kind, cfg.I2CBus, w, h, cfg.SampleEvery)
	default:
		return nil, &heatcense.DeviceError{Op: "open", Transient: false, Err: errUnknownKind(cfg.Kind)}
	}
	if err := src.Open(ctx); err != nil {
		return nil, err
	}
	return src, nil
}

type errUnknownKind Kind

func (e errUnknownKind) Error() string {
	return "unknown camera kind: " + string(e)
}
