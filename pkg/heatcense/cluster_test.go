package heatcense

import "testing"

func maskFromRows(rows []string) ([]bool, int, int) {
	height := len(rows)
	width := len(rows[0])
	mask := make([]bool, width*height)
	for y, row := range rows {
		for x, c := range row {
			if c == '#' {
				mask[y*width+x] = true
			}
		}
	}
	return mask, width, height
}

func TestClusters_EmptyMaskProducesNoClusters(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"....",
		"....",
	})
	got := Clusters(mask, w, h, 0)
	if len(got) != 0 {
		t.Fatalf("expected 0 clusters, got %d", len(got))
	}
}

func TestClusters_SingleBlob(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"......",
		"..##..",
		"..##..",
		"......",
	})
	got := Clusters(mask, w, h, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(got))
	}
	if got[0].PixelCount != 4 {
		t.Fatalf("expected pixel count 4, got %d", got[0].PixelCount)
	}
	if got[0].CentroidX != 2.5 || got[0].CentroidY != 1.5 {
		t.Fatalf("unexpected centroid: (%f, %f)", got[0].CentroidX, got[0].CentroidY)
	}
}

func TestClusters_DiagonalTouchIsOneComponent(t *testing.T) {
	// 8-connectivity: a diagonal touch merges the two pixels.
	mask, w, h := maskFromRows([]string{
		"#.",
		".#",
	})
	got := Clusters(mask, w, h, 0)
	if len(got) != 1 {
		t.Fatalf("expected diagonal pixels to merge into 1 cluster, got %d", len(got))
	}
	if got[0].PixelCount != 2 {
		t.Fatalf("expected pixel count 2, got %d", got[0].PixelCount)
	}
}

func TestClusters_TwoSeparateBlobs(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"#....#",
		"......",
		"#....#",
	})
	got := Clusters(mask, w, h, 0)
	if len(got) != 4 {
		t.Fatalf("expected 4 separate single-pixel clusters, got %d", len(got))
	}
}

func TestClusters_IsDeterministic(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"###..##",
		"#....#.",
		"......#",
	})
	first := Clusters(mask, w, h, 0)
	second := Clusters(mask, w, h, 0)
	if len(first) != len(second) {
		t.Fatalf("cluster count differs across runs: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cluster %d differs across runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestClusters_MinimumSizeDiscardsSmallComponents(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		"#....###",
		".....###",
		"........",
	})
	got := Clusters(mask, w, h, 4)
	if len(got) != 1 {
		t.Fatalf("expected the lone 1-pixel blob to be discarded, got %d clusters", len(got))
	}
	if got[0].PixelCount != 6 {
		t.Fatalf("expected surviving cluster to have 6 pixels, got %d", got[0].PixelCount)
	}
}

func TestClusters_BoundingBox(t *testing.T) {
	mask, w, h := maskFromRows([]string{
		".....",
		".###.",
		".....",
	})
	got := Clusters(mask, w, h, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(got))
	}
	c := got[0]
	if c.MinX != 1 || c.MaxX != 3 || c.MinY != 1 || c.MaxY != 1 {
		t.Fatalf("unexpected bounding box: minx=%d maxx=%d miny=%d maxy=%d", c.MinX, c.MaxX, c.MinY, c.MaxY)
	}
}
