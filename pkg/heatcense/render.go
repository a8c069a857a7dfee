package heatcense

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

func freetypeFixedPoint(x, y int) fixed.Point26_6 {
	return fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
}

// Gradient maps a normalized temperature in [0, 1] to a color.
type Gradient func(t float64) color.RGBA

// Gradients is the set of named colorization gradients streams.mjpeg's
// "colorize" setting can select.
var Gradients = map[string]Gradient{
	"turbo":     turboGradient,
	"grayscale": grayscaleGradient,
	"ironbow":   ironbowGradient,
}

func clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

func grayscaleGradient(t float64) color.RGBA {
	v := uint8(clamp01(t) * 255)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// turboGradient is a compact polynomial approximation of Google's Turbo
// colormap, chosen because it (unlike jet) has no perceptually flat
// spots that would hide a person-sized temperature delta.
func turboGradient(t float64) color.RGBA {
	t = clamp01(t)
	r := clamp01(34.61+t*(1172.33+t*(-10793.56+t*(33300.12+t*(-38394.49+t*14825.05)))) / 255)
	g := clamp01(23.31+t*(557.33+t*(1225.33+t*(-3574.96+t*(1073.77+t*707.56)))) / 255)
	b := clamp01(27.2+t*(3211.1+t*(-15327.97+t*(27814+t*(-22569.18+t*6838.66)))) / 255)
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

func ironbowGradient(t float64) color.RGBA {
	t = clamp01(t)
	r := clamp01(1.5 * t)
	g := clamp01(2*t - 0.5)
	b := clamp01(2*t - 1.5)
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

// RenderParams configure colorization, scaling and the overlay.
type RenderParams struct {
	Gradient           Gradient
	UpscaleFactor      int
	UpscaleFilter      draw.Interpolator
	OverlayTemperature bool
	OverlayFahrenheit  bool

	TemperatureRangeFixed bool
	FixedMinCelsius       float64
	FixedMaxCelsius       float64
	DynamicWindowFrames   int
}

// UpscaleFilterByName resolves a config string to a draw.Interpolator,
// matching the filter names streams.mjpeg.upscale_filter accepts.
func UpscaleFilterByName(name string) (draw.Interpolator, error) {
	switch name {
	case "nearest":
		return draw.NearestNeighbor, nil
	case "triangle":
		return draw.ApproxBiLinear, nil
	case "catmull-rom":
		return draw.CatmullRom, nil
	case "mitchell":
		return mitchellFilter{}, nil
	case "lanczos3":
		return lanczos3Filter{}, nil
	default:
		return nil, fmt.Errorf("unknown upscale filter %q", name)
	}
}

// mitchellFilter scales with the Mitchell-Netravali kernel;
// golang.org/x/image/draw exposes Catmull-Rom and (Approx)BiLinear as
// built-in Kernels but not Mitchell by name, so this type builds a
// draw.Kernel from Mitchell's B=C=1/3 coefficients.
type mitchellFilter struct{}

func (mitchellFilter) Scale(dst draw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle, op draw.Op, opts *draw.Options) {
	k := draw.Kernel{Support: 2, At: mitchellKernel}
	k.Scale(dst, dr, src, sr, op, opts)
}

func mitchellKernel(t float64) float64 {
	const b, c = 1.0 / 3, 1.0 / 3
	t = math.Abs(t)
	if t < 1 {
		return ((12-9*b-6*c)*t*t*t + (-18+12*b+6*c)*t*t + (6 - 2*b)) / 6
	}
	if t < 2 {
		return ((-b-6*c)*t*t*t + (6*b+30*c)*t*t + (-12*b-48*c)*t + (8*b + 24*c)) / 6
	}
	return 0
}

// lanczos3Filter is the sharpest of the five upscale filters, trading a
// little ringing near hard edges for detail preservation, which matters
// when a thermal pixel edge is the entire signal for a detected person.
type lanczos3Filter struct{}

func (lanczos3Filter) Scale(dst draw.Image, dr image.Rectangle, src image.Image, sr image.Rectangle, op draw.Op, opts *draw.Options) {
	k := draw.Kernel{Support: 3, At: lanczosKernel}
	k.Scale(dst, dr, src, sr, op, opts)
}

func lanczosKernel(t float64) float64 {
	t = math.Abs(t)
	if t == 0 {
		return 1
	}
	if t >= 3 {
		return 0
	}
	piT := math.Pi * t
	return 3 * math.Sin(piT) * math.Sin(piT/3) / (piT * piT)
}

// DefaultRenderParams matches streams.mjpeg's out-of-the-box config.
func DefaultRenderParams() RenderParams {
	return RenderParams{
		Gradient:            turboGradient,
		UpscaleFactor:       16,
		UpscaleFilter:       lanczos3Filter{},
		OverlayTemperature:  true,
		DynamicWindowFrames: 32,
	}
}

var overlayFont = mustParseFont()

func mustParseFont() *truetype.Font {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
	return f
}

// Renderer turns Frames into colorized, upscaled JPEG images. It tracks
// a moving average of the observed temperature range when
// TemperatureRangeFixed is false, so the color scale follows the room's
// actual temperature spread instead of a fixed range that would wash
// out a cool room or clip a warm one.
type Renderer struct {
	params RenderParams

	mu          sync.Mutex
	minHistory  []float64
	maxHistory  []float64
	subscribers int
}

// NewRenderer constructs a Renderer with the given parameters.
func NewRenderer(params RenderParams) *Renderer {
	if params.Gradient == nil {
		params.Gradient = turboGradient
	}
	if params.UpscaleFilter == nil {
		params.UpscaleFilter = draw.CatmullRom
	}
	if params.UpscaleFactor <= 0 {
		params.UpscaleFactor = 1
	}
	return &Renderer{params: params}
}

// Activate and Deactivate implement the lazy subscription contract:
// the upstream oriented-frame bus is only subscribed to while at least
// one HTTP client is attached. Activate returns true exactly on the
// 0->1 transition and Deactivate returns true exactly on the 1->0
// transition, so callers know when to (un)subscribe.
func (r *Renderer) Activate() (firstSubscriber bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers++
	return r.subscribers == 1
}

func (r *Renderer) Deactivate() (lastSubscriber bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subscribers == 0 {
		return false
	}
	r.subscribers--
	return r.subscribers == 0
}

// Render colorizes, overlays and upscales f, returning an encoded JPEG.
func (r *Renderer) Render(f *Frame) ([]byte, error) {
	lo, hi := r.temperatureRange(f)

	base := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			t := (f.At(x, y) - lo) / span
			base.SetRGBA(x, y, r.params.Gradient(t))
		}
	}

	scaled := image.NewRGBA(image.Rect(0, 0, f.Width*r.params.UpscaleFactor, f.Height*r.params.UpscaleFactor))
	r.params.UpscaleFilter.Scale(scaled, scaled.Bounds(), base, base.Bounds(), draw.Over, nil)

	if r.params.OverlayTemperature {
		if err := r.drawOverlay(scaled, f); err != nil {
			return nil, &RendererError{Err: err}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 85}); err != nil {
		return nil, &RendererError{Err: err}
	}
	return buf.Bytes(), nil
}

// temperatureRange returns the colorization bounds for f: either the
// configured fixed bounds, or a moving average of the frame's own
// min/max over the configured window.
func (r *Renderer) temperatureRange(f *Frame) (lo, hi float64) {
	if r.params.TemperatureRangeFixed {
		return r.params.FixedMinCelsius, r.params.FixedMaxCelsius
	}

	fmin, fmax := f.Pixels[0], f.Pixels[0]
	for _, v := range f.Pixels {
		if v < fmin {
			fmin = v
		}
		if v > fmax {
			fmax = v
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	window := r.params.DynamicWindowFrames
	if window <= 0 {
		window = 32
	}
	r.minHistory = append(r.minHistory, fmin)
	r.maxHistory = append(r.maxHistory, fmax)
	if len(r.minHistory) > window {
		r.minHistory = r.minHistory[len(r.minHistory)-window:]
	}
	if len(r.maxHistory) > window {
		r.maxHistory = r.maxHistory[len(r.maxHistory)-window:]
	}

	return average(r.minHistory), average(r.maxHistory)
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// drawOverlay stamps the per-cell temperature as small text onto img,
// one label per source pixel cell, using freetype to rasterize the
// text into the already-upscaled image.
func (r *Renderer) drawOverlay(img draw.Image, f *Frame) error {
	ctx := freetype.NewContext()
	ctx.SetFont(overlayFont)
	ctx.SetFontSize(float64(r.params.UpscaleFactor) / 2.2)
	ctx.SetDst(img, img.Bounds())
	ctx.SetClip(img.Bounds())
	ctx.SetSrc(image.NewUniform(color.White))

	cell := r.params.UpscaleFactor
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			v := f.At(x, y)
			label := fmt.Sprintf("%.0f", v)
			if r.params.OverlayFahrenheit {
				label = fmt.Sprintf("%.0f", v*9/5+32)
			}
			pt := freetypeFixedPoint(x*cell+2, y*cell+cell-2)
			if _, err := ctx.DrawString(label, pt); err != nil {
				return err
			}
		}
	}
	return nil
}
