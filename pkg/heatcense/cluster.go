package heatcense

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// PointCluster summarizes one 8-connected foreground component.
type PointCluster struct {
	CentroidX, CentroidY float64
	MinX, MinY           int
	MaxX, MaxY           int
	PixelCount           int

	// Covariance is the normalized 2x2 shape descriptor (covariance of
	// pixel coordinates about the centroid, divided by PixelCount) used
	// by the tracker's distance metric.
	CovXX, CovXY, CovYY float64
}

// Clusters runs 8-connected connected-component labeling over mask
// (true == foreground, row-major width x height) and returns one
// PointCluster per component with at least minimumSize pixels, smaller
// components being treated as sensor noise rather than real blobs.
// Labeling scans in row-major order and merges with a union-find, so
// the result is deterministic for a given mask regardless of goroutine
// scheduling.
func Clusters(mask []bool, width, height int, minimumSize int) []PointCluster {
	labels := make([]int, len(mask))
	for i := range labels {
		labels[i] = -1
	}
	uf := newUnionFind(len(mask))

	neighborOffsets := [][2]int{{-1, -1}, {0, -1}, {1, -1}, {-1, 0}}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !mask[idx] {
				continue
			}
			labels[idx] = idx // tentative: own index as label root
			for _, off := range neighborOffsets {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || nx >= width || ny < 0 || ny >= height {
					continue
				}
				nidx := ny*width + nx
				if mask[nidx] {
					uf.union(idx, nidx)
				}
			}
		}
	}

	groups := make(map[int][]int)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			if !mask[idx] {
				continue
			}
			root := uf.find(idx)
			groups[root] = append(groups[root], idx)
		}
	}

	// Deterministic output order: by the smallest pixel index in the
	// component (the first member appended in the row-major scan above),
	// i.e. the order in which the scan first reaches each component.
	roots := make([]int, 0, len(groups))
	for root := range groups {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return groups[roots[i]][0] < groups[roots[j]][0] })

	clusters := make([]PointCluster, 0, len(roots))
	for _, root := range roots {
		members := groups[root]
		if len(members) < minimumSize {
			continue
		}
		clusters = append(clusters, summarize(members, width))
	}
	return clusters
}

func summarize(indices []int, width int) PointCluster {
	c := PointCluster{MinX: width, MinY: 1 << 30}
	sumX, sumY := 0.0, 0.0
	for _, idx := range indices {
		x, y := idx%width, idx/width
		sumX += float64(x)
		sumY += float64(y)
		if x < c.MinX {
			c.MinX = x
		}
		if x > c.MaxX {
			c.MaxX = x
		}
		if y < c.MinY {
			c.MinY = y
		}
		if y > c.MaxY {
			c.MaxY = y
		}
	}
	n := float64(len(indices))
	c.PixelCount = len(indices)
	c.CentroidX = sumX / n
	c.CentroidY = sumY / n

	xs := make([]float64, len(indices))
	ys := make([]float64, len(indices))
	for i, idx := range indices {
		xs[i] = float64(idx % width)
		ys[i] = float64(idx / width)
	}
	// Population covariance (divided by n) about the centroid already
	// computed above, used as the tracker's shape descriptor.
	// stat.Covariance divides by n-1, so its result is rescaled to the
	// same normalization; a single-pixel cluster keeps CovXY at zero.
	c.CovXX = stat.MomentAbout(2, xs, c.CentroidX, nil)
	c.CovYY = stat.MomentAbout(2, ys, c.CentroidY, nil)
	if len(indices) > 1 {
		c.CovXY = stat.Covariance(xs, ys, nil) * (n - 1) / n
	}

	return c
}

// unionFind is a standard disjoint-set with path compression and
// union-by-rank, used to merge 8-connected foreground pixels.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p, rank: make([]int, n)}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
