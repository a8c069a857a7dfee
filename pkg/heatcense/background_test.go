package heatcense

import (
	"math"
	"testing"
)

func TestBackgroundModel_ConstantInputConvergesToBackground(t *testing.T) {
	m := NewBackgroundModel(1, 1, DefaultBackgroundParams())

	var lastMask []bool
	for i := 0; i < 200; i++ {
		f := &Frame{Width: 1, Height: 1, Pixels: []float64{21.0}}
		lastMask = m.Segment(f)
	}

	if lastMask[0] {
		t.Fatal("constant input should converge to background, got foreground")
	}
}

func TestBackgroundModel_WarmBlobBecomesForeground(t *testing.T) {
	m := NewBackgroundModel(1, 1, DefaultBackgroundParams())

	for i := 0; i < 100; i++ {
		m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{21.0}})
	}

	mask := m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{34.0}})
	if !mask[0] {
		t.Fatal("sudden hot pixel should be classified as foreground")
	}
}

func TestBackgroundModel_WeightsStaySumNormalized(t *testing.T) {
	m := NewBackgroundModel(1, 1, DefaultBackgroundParams())
	inputs := []float64{21, 21.5, 34, 21, 22, 35, 21.2, 21.1}
	for _, v := range inputs {
		m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{v}})
	}

	p := m.pixels[0]
	sum := 0.0
	for _, c := range p.components {
		sum += c.weight
	}
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("expected component weights to sum to ~1, got %f", sum)
	}
}

func TestBackgroundModel_EmptyGridProducesEmptyMask(t *testing.T) {
	m := NewBackgroundModel(2, 2, DefaultBackgroundParams())
	mask := m.Segment(&Frame{Width: 2, Height: 2, Pixels: make([]float64, 4)})
	if len(mask) != 4 {
		t.Fatalf("expected mask length 4, got %d", len(mask))
	}
}

func TestBackgroundModel_FirstFrameIsAllBackground(t *testing.T) {
	m := NewBackgroundModel(2, 2, DefaultBackgroundParams())
	mask := m.Segment(&Frame{Width: 2, Height: 2, Pixels: []float64{21, 22, 23, 24}})
	for i, fg := range mask {
		if fg {
			t.Fatalf("pixel %d: frame 0 should be background, got foreground", i)
		}
	}
}

func TestBackgroundModel_NaNLeavesModelUnchangedAndReportsBackground(t *testing.T) {
	m := NewBackgroundModel(1, 1, DefaultBackgroundParams())
	for i := 0; i < 50; i++ {
		m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{21.0}})
	}
	before := append([]gmmComponent(nil), m.pixels[0].components...)

	mask := m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{math.NaN()}})
	if mask[0] {
		t.Fatal("NaN observation should be reported as background")
	}

	after := m.pixels[0].components
	if len(before) != len(after) {
		t.Fatalf("NaN observation should not change component count: before %d, after %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("NaN observation mutated component %d: before %+v, after %+v", i, before[i], after[i])
		}
	}
}

func TestBackgroundModel_MatchesClosestComponentNotFirstWithinThreshold(t *testing.T) {
	m := NewBackgroundModel(1, 1, DefaultBackgroundParams())
	// Seed two components: one centered near 20, one near 30. Then widen
	// the match threshold so that an observation at 29.5 falls within
	// threshold of both (about 3.3 and 0.2 standard deviations away).
	for i := 0; i < 80; i++ {
		m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{20.0}})
	}
	for i := 0; i < 80; i++ {
		m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{30.0}})
	}
	m.params.MatchThreshold = 4.0
	meanNear20Before, meanNear30Before := meansByProximity(m.pixels[0].components)

	m.Segment(&Frame{Width: 1, Height: 1, Pixels: []float64{29.5}})

	meanNear20After, meanNear30After := meansByProximity(m.pixels[0].components)
	if meanNear20After != meanNear20Before {
		t.Fatalf("observation at 29.5 should not move the component near 20, before %f after %f", meanNear20Before, meanNear20After)
	}
	if meanNear30After == meanNear30Before {
		t.Fatal("observation at 29.5 should move the component near 30 toward it")
	}
}

func meansByProximity(components []gmmComponent) (near20, near30 float64) {
	for _, c := range components {
		if math.Abs(c.mean-20) < math.Abs(c.mean-30) {
			near20 = c.mean
		} else {
			near30 = c.mean
		}
	}
	return near20, near30
}
