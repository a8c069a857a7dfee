package heatcense

import "testing"

func gridFrame(w, h int) *Frame {
	f := &Frame{Width: w, Height: h, Pixels: make([]float64, w*h), Ambient: 21.5}
	for i := range f.Pixels {
		f.Pixels[i] = float64(i)
	}
	return f
}

func TestOrientationFilter_NormalIsIdentity(t *testing.T) {
	f := gridFrame(3, 2)
	out := OrientationFilter{}.Apply(f)
	for i, v := range out.Pixels {
		if v != f.Pixels[i] {
			t.Fatalf("pixel %d: expected %f, got %f", i, f.Pixels[i], v)
		}
	}
	if out.Ambient != f.Ambient {
		t.Fatalf("expected Ambient to be carried through, got %f", out.Ambient)
	}
}

func TestOrientationFilter_FlipHorizontalReversesEachRow(t *testing.T) {
	f := gridFrame(3, 2) // rows: [0 1 2] [3 4 5]
	out := OrientationFilter{FlipHorizontal: true}.Apply(f)
	want := []float64{2, 1, 0, 5, 4, 3}
	for i, v := range want {
		if out.Pixels[i] != v {
			t.Fatalf("pixel %d: expected %f, got %f", i, v, out.Pixels[i])
		}
	}
}

func TestOrientationFilter_FlipVerticalReversesRowOrder(t *testing.T) {
	f := gridFrame(3, 2) // rows: [0 1 2] [3 4 5]
	out := OrientationFilter{FlipVertical: true}.Apply(f)
	want := []float64{3, 4, 5, 0, 1, 2}
	for i, v := range want {
		if out.Pixels[i] != v {
			t.Fatalf("pixel %d: expected %f, got %f", i, v, out.Pixels[i])
		}
	}
}

func TestOrientationFilter_RotationAppliesBeforeFlip(t *testing.T) {
	// Rotate180 on a 3x2 grid reverses the whole buffer; flipping
	// horizontally after that should reverse each row of the rotated
	// result, not of the original.
	f := gridFrame(3, 2) // [0 1 2] [3 4 5]
	out := OrientationFilter{Rotation: OrientationRotate180, FlipHorizontal: true}.Apply(f)
	// Rotate180 alone: [5 4 3] [2 1 0]; flip each row: [3 4 5] [0 1 2]
	want := []float64{3, 4, 5, 0, 1, 2}
	for i, v := range want {
		if out.Pixels[i] != v {
			t.Fatalf("pixel %d: expected %f, got %f", i, v, out.Pixels[i])
		}
	}
}
