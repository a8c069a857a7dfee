package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/heatcense/heatcense/pkg/heatcense"
)

// periphSource reads a real thermal imager over I2C via periph.io. The
// per-chip register map (page select, frame-rate register, raw-to-Celsius
// conversion) is vendor datasheet territory and is kept out of this
// package's scope; readRaw below is the single seam a concrete chip
// driver fills in.
type periphSource struct {
	kind          Kind
	busName       string
	width, height int
	interval      time.Duration

	mu  sync.Mutex
	bus i2c.BusCloser
	dev *i2c.Dev
	seq uint64
}

func newPeriphSource(kind Kind, busName string, width, height int, interval time.Duration) *periphSource {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &periphSource{kind: kind, busName: busName, width: width, height: height, interval: interval}
}

func (p *periphSource) Width() int  { return p.width }
func (p *periphSource) Height() int { return p.height }

// Open initializes the periph.io host drivers and opens the configured
// I2C bus, then addresses the device at its chip's fixed I2C address.
func (p *periphSource) Open(ctx context.Context) error {
	if _, err := host.Init(); err != nil {
		return &heatcense.DeviceError{Op: "host init", Transient: false, Err: err}
	}

	bus, err := i2creg.Open(p.busName)
	if err != nil {
		return &heatcense.DeviceError{Op: "open bus " + p.busName, Transient: false, Err: err}
	}

	addr, err := chipAddress(p.kind)
	if err != nil {
		bus.Close()
		return &heatcense.DeviceError{Op: "chip address", Transient: false, Err: err}
	}

	p.mu.Lock()
	p.bus = bus
	p.dev = &i2c.Dev{Addr: addr, Bus: bus}
	p.mu.Unlock()
	return nil
}

func (p *periphSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil
	}
	err := p.bus.Close()
	p.bus = nil
	p.dev = nil
	return err
}

// Read blocks for one sample interval, then reads and converts one
// frame. A bus read error is reported as a transient DeviceError so the
// camera producer task retries on the next tick rather than tearing
// down the stream over a single glitch.
func (p *periphSource) Read(ctx context.Context) (*heatcense.Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(p.interval):
	}

	p.mu.Lock()
	dev := p.dev
	p.seq++
	seq := p.seq
	p.mu.Unlock()

	if dev == nil {
		return nil, &heatcense.DeviceError{Op: "read", Transient: false, Err: fmt.Errorf("device not open")}
	}

	pixels, ambient, err := readRaw(dev, p.kind, p.width, p.height)
	if err != nil {
		return nil, &heatcense.DeviceError{Op: "read", Transient: true, Err: err}
	}

	return &heatcense.Frame{
		Width:     p.width,
		Height:    p.height,
		Pixels:    pixels,
		Ambient:   ambient,
		Timestamp: time.Now(),
		SeqNum:    seq,
	}, nil
}

func chipAddress(kind Kind) (uint16, error) {
	switch kind {
	case KindGridEYE:
		return 0x69, nil
	case KindMLX90640:
		return 0x33, nil
	case KindMLX90641:
		return 0x33, nil
	default:
		return 0, fmt.Errorf("no fixed I2C address for %s", kind)
	}
}

// readRaw is the seam for the chip-specific register reads, raw-to-Celsius
// conversion, and ambient/die temperature read. The vendor register map
// (frame-rate select, pixel scale factor, EEPROM calibration constants
// for the MLX chips) is kept out of this package: readRaw performs no
// bus access and returns an error naming the chip kind for every call.
func readRaw(dev *i2c.Dev, kind Kind, width, height int) (pixels []float64, ambient float64, err error) {
	return nil, 0, fmt.Errorf("%s register protocol not implemented", kind)
}
