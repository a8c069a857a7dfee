package heatcense

import (
	"bytes"
	"image/jpeg"
	"testing"
	"time"
)

func TestRenderer_ActivateDeactivateTransitions(t *testing.T) {
	r := NewRenderer(DefaultRenderParams())

	if first := r.Activate(); !first {
		t.Fatal("expected first Activate to report 0->1 transition")
	}
	if first := r.Activate(); first {
		t.Fatal("second Activate should not report a transition")
	}
	if last := r.Deactivate(); last {
		t.Fatal("first Deactivate (2->1) should not report a transition")
	}
	if last := r.Deactivate(); !last {
		t.Fatal("second Deactivate (1->0) should report a transition")
	}
}

func TestRenderer_RenderProducesValidJPEG(t *testing.T) {
	r := NewRenderer(DefaultRenderParams())
	f := &Frame{Width: 8, Height: 8, Pixels: make([]float64, 64), Timestamp: time.Now()}
	for i := range f.Pixels {
		f.Pixels[i] = 20 + float64(i%10)
	}

	out, err := r.Render(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("renderer output is not a valid JPEG: %v", err)
	}
	b := img.Bounds()
	wantW, wantH := 8*r.params.UpscaleFactor, 8*r.params.UpscaleFactor
	if b.Dx() != wantW || b.Dy() != wantH {
		t.Fatalf("expected %dx%d, got %dx%d", wantW, wantH, b.Dx(), b.Dy())
	}
}

func TestUpscaleFilterByName(t *testing.T) {
	for _, name := range []string{"nearest", "triangle", "catmull-rom", "mitchell", "lanczos3"} {
		if _, err := UpscaleFilterByName(name); err != nil {
			t.Errorf("expected filter %q to resolve, got error: %v", name, err)
		}
	}
	if _, err := UpscaleFilterByName("bicubic"); err == nil {
		t.Error("expected error for unknown filter name")
	}
}

func TestRenderer_FixedRangeIsStableAcrossFrames(t *testing.T) {
	params := DefaultRenderParams()
	params.TemperatureRangeFixed = true
	params.FixedMinCelsius = 10
	params.FixedMaxCelsius = 30
	r := NewRenderer(params)

	lo1, hi1 := r.temperatureRange(&Frame{Width: 1, Height: 1, Pixels: []float64{50}})
	lo2, hi2 := r.temperatureRange(&Frame{Width: 1, Height: 1, Pixels: []float64{-10}})
	if lo1 != lo2 || hi1 != hi2 {
		t.Fatalf("fixed range should not depend on frame content: (%f,%f) vs (%f,%f)", lo1, hi1, lo2, hi2)
	}
}

func TestGradients_CoverFullRange(t *testing.T) {
	for name, g := range Gradients {
		lo := g(0)
		hi := g(1)
		if lo == hi {
			t.Errorf("gradient %q produced the same color at both ends of its range", name)
		}
	}
}
