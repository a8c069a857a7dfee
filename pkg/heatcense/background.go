package heatcense

import (
	"math"
	"sort"
)

// gmmComponent is one Gaussian in a pixel's mixture: a weight, a mean
// temperature, and a variance. Components are kept sorted by nothing in
// particular during update; Background/foreground decisions sort a copy
// by w/sigma descending as specified.
type gmmComponent struct {
	weight   float64
	mean     float64
	variance float64
}

// BackgroundParams controls the per-pixel Gaussian Mixture Model.
type BackgroundParams struct {
	MaxComponents   int
	LearningRate    float64 // alpha
	InitialVariance float64 // sigma0^2
	InitialWeight   float64 // w0
	MatchThreshold  float64 // tau, in standard deviations

	// ConfidenceCutoff is the cumulative weight fraction (sorted by w/sigma
	// descending) treated as background: components within the prefix
	// that sums to ConfidenceCutoff or more are background, the remainder
	// is foreground. This is 1-T in the (1-T) cutoff some background
	// subtraction literature uses, stored pre-subtracted so the per-pixel
	// classify loop does not need the extra arithmetic.
	ConfidenceCutoff float64
}

// DefaultBackgroundParams returns a reasonable starting tuning for an
// indoor room-scale deployment.
func DefaultBackgroundParams() BackgroundParams {
	return BackgroundParams{
		MaxComponents:    4,
		LearningRate:     0.01,
		InitialVariance:  9.0,
		InitialWeight:    0.05,
		MatchThreshold:   2.5,
		ConfidenceCutoff: 0.999,
	}
}

// pixelModel is the mixture for a single pixel.
type pixelModel struct {
	components []gmmComponent
}

// BackgroundModel is the per-pixel GMM background/foreground segmenter.
// It is exclusively owned and mutated by the occupancy engine's task; no
// other goroutine touches it, so it carries no internal locking.
type BackgroundModel struct {
	params        BackgroundParams
	width, height int
	pixels        []pixelModel
}

// NewBackgroundModel allocates a model for a width x height sensor.
func NewBackgroundModel(width, height int, params BackgroundParams) *BackgroundModel {
	m := &BackgroundModel{
		params: params,
		width:  width,
		height: height,
		pixels: make([]pixelModel, width*height),
	}
	return m
}

// Segment updates every pixel's mixture with the observed frame and
// returns a boolean foreground mask (true == foreground), one entry per
// pixel in the same row-major order as Frame.Pixels. A freshly
// constructed model with no observations yet classifies every pixel as
// background: each pixel's first observation seeds a single component
// that, once renormalized, holds the model's entire weight and so sorts
// into the background prefix immediately.
func (m *BackgroundModel) Segment(f *Frame) []bool {
	mask := make([]bool, len(f.Pixels))
	for i, v := range f.Pixels {
		mask[i] = m.updatePixel(i, v)
	}
	return mask
}

// updatePixel applies the GMM update rule to a single pixel and reports
// whether the observation was classified as foreground. An observation
// that matches no existing component is foreground, except a pixel's
// very first observation, which is classified like a matched one. A NaN reading
// (a dropout from the sensor) leaves the model untouched and is
// reported as background: there was no real observation to learn from
// or to flag as a warm body.
func (m *BackgroundModel) updatePixel(idx int, observed float64) bool {
	if math.IsNaN(observed) {
		return false
	}

	p := &m.pixels[idx]
	alpha := m.params.LearningRate

	matched := -1
	bestDist := math.Inf(1)
	for i := range p.components {
		c := &p.components[i]
		sigma := sqrtPositive(c.variance)
		if sigma == 0 {
			sigma = sqrtPositive(m.params.InitialVariance)
		}
		dist := math.Abs(observed-c.mean) / sigma
		if dist <= m.params.MatchThreshold && dist < bestDist {
			bestDist = dist
			matched = i
		}
	}

	active := matched
	if matched >= 0 {
		c := &p.components[matched]
		rho := alpha * gaussianDensity(observed, c.mean, c.variance)
		c.weight += alpha * (1 - c.weight)
		delta := observed - c.mean
		c.mean += rho * delta
		c.variance = (1-rho)*c.variance + rho*delta*delta
		for i := range p.components {
			if i != matched {
				p.components[i].weight *= (1 - alpha)
			}
		}
	} else if len(p.components) < m.params.MaxComponents {
		firstObservation := len(p.components) == 0
		p.components = append(p.components, gmmComponent{
			weight:   m.params.InitialWeight,
			mean:     observed,
			variance: m.params.InitialVariance,
		})
		active = len(p.components) - 1
		renormalize(p.components)
		if !firstObservation {
			// No existing component explained the observation.
			return true
		}
	} else {
		active = worstComponent(p.components)
		p.components[active] = gmmComponent{
			weight:   m.params.InitialWeight,
			mean:     observed,
			variance: m.params.InitialVariance,
		}
		renormalize(p.components)
		return true
	}

	return m.classify(p, active)
}

// classify decides whether the given component index represents
// background, by sorting components by weight/sigma descending and
// accumulating weight until the confidence cutoff is reached;
// components within that prefix are background.
func (m *BackgroundModel) classify(p *pixelModel, active int) bool {
	if len(p.components) == 0 {
		return false
	}
	order := make([]int, len(p.components))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ca, cb := p.components[order[a]], p.components[order[b]]
		ra := ca.weight / sqrtPositive(ca.variance+1e-9)
		rb := cb.weight / sqrtPositive(cb.variance+1e-9)
		return ra > rb
	})

	cum := 0.0
	backgroundSet := make(map[int]bool, len(order))
	for _, i := range order {
		if cum >= m.params.ConfidenceCutoff {
			break
		}
		backgroundSet[i] = true
		cum += p.components[i].weight
	}

	return !backgroundSet[active]
}

// gaussianDensity is N(x; mean, variance), used to weight how much a
// matched observation should move that component's mean and variance:
// an observation near the component's center adapts it faster than one
// at the edge of the match threshold.
func gaussianDensity(x, mean, variance float64) float64 {
	if variance <= 0 {
		return 0
	}
	exponent := -((x - mean) * (x - mean)) / (2 * variance)
	return math.Exp(exponent) / math.Sqrt(2*math.Pi*variance)
}

func renormalize(components []gmmComponent) {
	sum := 0.0
	for _, c := range components {
		sum += c.weight
	}
	if sum == 0 {
		return
	}
	for i := range components {
		components[i].weight /= sum
	}
}

func worstComponent(components []gmmComponent) int {
	worst := 0
	worstScore := components[0].weight / sqrtPositive(components[0].variance+1e-9)
	for i := 1; i < len(components); i++ {
		score := components[i].weight / sqrtPositive(components[i].variance+1e-9)
		if score < worstScore {
			worst = i
			worstScore = score
		}
	}
	return worst
}

func sqrtPositive(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
