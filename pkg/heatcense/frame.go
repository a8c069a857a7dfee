package heatcense

import "time"

// Frame is one sample from the thermal imager: a row-major grid of
// per-pixel temperatures in degrees Celsius, plus the time it was taken.
// Width and Height come from the configured camera kind (8x8 for a
// GridEYE, up to 32x24 for an MLX90640) and never change for the
// lifetime of a Frame's source.
type Frame struct {
	Width, Height int
	Pixels        []float64 // len == Width*Height, row-major
	Ambient       float64   // sensor-reported die/ambient temperature, degrees Celsius
	Timestamp     time.Time
	SeqNum        uint64
}

// At returns the temperature at (x, y). It panics if the coordinate is
// out of bounds, matching the package's convention that callers only
// ever iterate coordinates they derived from Width/Height.
func (f *Frame) At(x, y int) float64 {
	return f.Pixels[y*f.Width+x]
}

// Clone returns a deep copy of f so that a slow subscriber holding onto
// an old frame never observes mutation from a buffer being reused
// upstream.
func (f *Frame) Clone() *Frame {
	cp := *f
	cp.Pixels = make([]float64, len(f.Pixels))
	copy(cp.Pixels, f.Pixels)
	return &cp
}

// Orientation describes a fixed rotation applied to every frame before
// it reaches the occupancy engine or renderer, so a camera can be
// mounted upside-down or sideways without changing the math downstream.
type Orientation int

const (
	OrientationNormal Orientation = iota
	OrientationRotate90
	OrientationRotate180
	OrientationRotate270
)

// apply rotates f into a new Frame according to o, leaving f unchanged. Rotate90 and
// Rotate270 swap Width and Height.
func (o Orientation) apply(f *Frame) *Frame {
	switch o {
	case OrientationNormal:
		return f.Clone()
	case OrientationRotate180:
		out := &Frame{Width: f.Width, Height: f.Height, Ambient: f.Ambient, Timestamp: f.Timestamp, SeqNum: f.SeqNum}
		out.Pixels = make([]float64, len(f.Pixels))
		n := len(f.Pixels)
		for i, v := range f.Pixels {
			out.Pixels[n-1-i] = v
		}
		return out
	case OrientationRotate90:
		return rotate90(f, true)
	case OrientationRotate270:
		return rotate90(f, false)
	default:
		return f.Clone()
	}
}

// OrientationFilter combines a fixed rotation with optional horizontal
// and vertical mirroring, so a camera can be mounted upside-down,
// sideways, or behind a mirror without changing the math downstream.
// Rotation is applied first, then the mirror flips.
type OrientationFilter struct {
	Rotation       Orientation
	FlipHorizontal bool
	FlipVertical   bool
}

// Apply produces the oriented frame that feeds the occupancy engine and
// renderer.
func (o OrientationFilter) Apply(f *Frame) *Frame {
	out := o.Rotation.apply(f)
	if o.FlipHorizontal {
		flipHorizontal(out)
	}
	if o.FlipVertical {
		flipVertical(out)
	}
	return out
}

// flipHorizontal mirrors out left-to-right in place.
func flipHorizontal(out *Frame) {
	for y := 0; y < out.Height; y++ {
		row := out.Pixels[y*out.Width : (y+1)*out.Width]
		for x, j := 0, len(row)-1; x < j; x, j = x+1, j-1 {
			row[x], row[j] = row[j], row[x]
		}
	}
}

// flipVertical mirrors out top-to-bottom in place.
func flipVertical(out *Frame) {
	for y, j := 0, out.Height-1; y < j; y, j = y+1, j-1 {
		top := out.Pixels[y*out.Width : (y+1)*out.Width]
		bottom := out.Pixels[j*out.Width : (j+1)*out.Width]
		for x := range top {
			top[x], bottom[x] = bottom[x], top[x]
		}
	}
}

// rotate90 rotates clockwise when cw is true, counter-clockwise otherwise.
func rotate90(f *Frame, cw bool) *Frame {
	out := &Frame{Width: f.Height, Height: f.Width, Ambient: f.Ambient, Timestamp: f.Timestamp, SeqNum: f.SeqNum}
	out.Pixels = make([]float64, len(f.Pixels))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			var nx, ny int
			if cw {
				nx = f.Height - 1 - y
				ny = x
			} else {
				nx = y
				ny = f.Width - 1 - x
			}
			out.Pixels[ny*out.Width+nx] = v
		}
	}
	return out
}
