package refine

import (
	"context"
	"testing"

	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/mmspace"
	"github.com/cajal-go/shapedist/pkg/qmms"
	"github.com/cajal-go/shapedist/pkg/slb"
)

func buildCells(t *testing.T) []*qmms.QMMS {
	t.Helper()
	shapes := [][][]float64{
		{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}},
		{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}},
		{{0, 5, 6}, {5, 0, 5}, {6, 5, 0}},
		{{0, 9, 9}, {9, 0, 9}, {9, 9, 0}},
	}
	var out []*qmms.QMMS
	for i, d := range shapes {
		cell, err := mmspace.New("cell", d, nil)
		if err != nil {
			t.Fatalf("mmspace.New: %v", err)
		}
		q, err := qmms.Build(cell, qmms.Options{NumClusters: 2})
		if err != nil {
			t.Fatalf("qmms.Build cell %d: %v", i, err)
		}
		out = append(out, q)
	}
	return out
}

func TestRunDenseWhenKCoversAll(t *testing.T) {
	cells := buildCells(t)
	n := len(cells)

	mm := make([]*mmspace.MMSpace, n)
	for i, q := range cells {
		mm[i] = q.Source
	}
	slbDmat, err := slb.Matrix(context.Background(), mm, dispatch.Options{})
	if err != nil {
		t.Fatalf("slb.Matrix: %v", err)
	}

	res, err := Run(context.Background(), cells, slbDmat, Params{K: n, Alpha: 1.0}, dispatch.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if !res.Known[i][j] {
				t.Errorf("expected (%d,%d) known when k>=N-1", i, j)
			}
		}
	}
}

func buildCellsFrom(t *testing.T, shapes [][][]float64) []*qmms.QMMS {
	t.Helper()
	var out []*qmms.QMMS
	for i, d := range shapes {
		cell, err := mmspace.New("cell", d, nil)
		if err != nil {
			t.Fatalf("mmspace.New: %v", err)
		}
		q, err := qmms.Build(cell, qmms.Options{NumClusters: 2})
		if err != nil {
			t.Fatalf("qmms.Build cell %d: %v", i, err)
		}
		out = append(out, q)
	}
	return out
}

func runOn(t *testing.T, cells []*qmms.QMMS, params Params) Result {
	t.Helper()
	n := len(cells)
	mm := make([]*mmspace.MMSpace, n)
	for i, q := range cells {
		mm[i] = q.Source
	}
	slbDmat, err := slb.Matrix(context.Background(), mm, dispatch.Options{})
	if err != nil {
		t.Fatalf("slb.Matrix: %v", err)
	}
	res, err := Run(context.Background(), cells, slbDmat, params, dispatch.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

// Two identical cells: their pair must be computed exactly (known) at qGW
// distance zero.
func TestRunIdenticalCellsZeroDistance(t *testing.T) {
	triangle := [][]float64{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	cells := buildCellsFrom(t, [][][]float64{triangle, triangle})
	res := runOn(t, cells, Params{K: 1, Alpha: 1.0})

	if !res.Known[0][1] {
		t.Fatalf("expected (0,1) known")
	}
	if res.Distance[0][1] > 1e-6 {
		t.Errorf("distance between identical cells = %v, want ~0", res.Distance[0][1])
	}
}

func TestRunScaledCellsPositiveDistance(t *testing.T) {
	triangle := [][]float64{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	scaled := [][]float64{{0, 2, 4}, {2, 0, 2}, {4, 2, 0}}
	cells := buildCellsFrom(t, [][][]float64{triangle, scaled})
	res := runOn(t, cells, Params{K: 1, Alpha: 1.0})

	if !res.Known[0][1] {
		t.Fatalf("expected (0,1) known")
	}
	if res.Distance[0][1] <= 0 {
		t.Errorf("distance between differently scaled cells = %v, want > 0", res.Distance[0][1])
	}
}

// With one 10x-scaled outlier among three cells, the nearest neighbor of the
// two close cells must be each other, not the outlier.
func TestRunFindsNearestNeighborAmongOutlier(t *testing.T) {
	triangle := [][]float64{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	outlier := [][]float64{{0, 10, 20}, {10, 0, 10}, {20, 10, 0}}
	cells := buildCellsFrom(t, [][][]float64{triangle, triangle, outlier})
	res := runOn(t, cells, Params{K: 1, Alpha: 1.0})

	if !res.Known[0][1] {
		t.Errorf("expected the two identical cells (0,1) to be each other's computed neighbor")
	}
	if res.Distance[0][1] > 1e-6 {
		t.Errorf("distance between the two identical cells = %v, want ~0", res.Distance[0][1])
	}
}

func TestRunDiagonalZeroAndKnown(t *testing.T) {
	cells := buildCells(t)
	res := runOn(t, cells, Params{K: 1, Alpha: 0.5})
	for i := range cells {
		if !res.Known[i][i] {
			t.Errorf("diagonal (%d,%d) should be known", i, i)
		}
		if res.Distance[i][i] != 0 {
			t.Errorf("diagonal (%d,%d) = %v, want 0", i, i, res.Distance[i][i])
		}
	}
}

func TestRunNonNegativeDistances(t *testing.T) {
	cells := buildCells(t)
	res := runOn(t, cells, Params{K: 1, Alpha: 0.5})
	for i := range cells {
		for j := range cells {
			if res.Distance[i][j] < 0 {
				t.Errorf("negative distance at (%d,%d): %v", i, j, res.Distance[i][j])
			}
		}
	}
}

// Running the controller twice on the same inputs must produce the same
// result: the controller carries no state across calls to Run.
func TestRunIsDeterministic(t *testing.T) {
	cells := buildCells(t)
	n := len(cells)
	mm := make([]*mmspace.MMSpace, n)
	for i, q := range cells {
		mm[i] = q.Source
	}
	slbDmat, err := slb.Matrix(context.Background(), mm, dispatch.Options{})
	if err != nil {
		t.Fatalf("slb.Matrix: %v", err)
	}

	res1, err := Run(context.Background(), cells, slbDmat, Params{K: 1, Alpha: 0.5}, dispatch.Options{})
	if err != nil {
		t.Fatalf("Run (first): %v", err)
	}
	res2, err := Run(context.Background(), cells, slbDmat, Params{K: 1, Alpha: 0.5}, dispatch.Options{})
	if err != nil {
		t.Fatalf("Run (second): %v", err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if res1.Known[i][j] != res2.Known[i][j] {
				t.Errorf("known mask differs between runs at (%d,%d)", i, j)
			}
			if res1.Distance[i][j] != res2.Distance[i][j] {
				t.Errorf("distance differs between runs at (%d,%d): %v vs %v", i, j, res1.Distance[i][j], res2.Distance[i][j])
			}
		}
	}
}

// Shuffling the input order of the cells must not change the distance
// computed between any two given shapes, only its position in the matrix.
func TestRunStableUnderShuffling(t *testing.T) {
	triangle := [][]float64{{0, 1, 2}, {1, 0, 1}, {2, 1, 0}}
	scaled := [][]float64{{0, 2, 4}, {2, 0, 2}, {4, 2, 0}}
	outlier := [][]float64{{0, 10, 20}, {10, 0, 10}, {20, 10, 0}}

	original := buildCellsFrom(t, [][][]float64{triangle, scaled, outlier})
	resOrig := runOn(t, original, Params{K: 2, Alpha: 1.0})

	// Shuffled order: outlier, triangle, scaled.
	shuffled := buildCellsFrom(t, [][][]float64{outlier, triangle, scaled})
	resShuf := runOn(t, shuffled, Params{K: 2, Alpha: 1.0})

	// original index i maps to shuffled index perm[i].
	perm := []int{1, 2, 0}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			si, sj := perm[i], perm[j]
			if diff := absDiff(resOrig.Distance[i][j], resShuf.Distance[si][sj]); diff > 1e-6 {
				t.Errorf("distance(%d,%d)=%v != shuffled distance(%d,%d)=%v", i, j, resOrig.Distance[i][j], si, sj, resShuf.Distance[si][sj])
			}
		}
	}
}

func absDiff(a, b float64) float64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

func TestRunProducesSymmetricResult(t *testing.T) {
	cells := buildCells(t)
	n := len(cells)
	mm := make([]*mmspace.MMSpace, n)
	for i, q := range cells {
		mm[i] = q.Source
	}
	slbDmat, err := slb.Matrix(context.Background(), mm, dispatch.Options{})
	if err != nil {
		t.Fatalf("slb.Matrix: %v", err)
	}

	res, err := Run(context.Background(), cells, slbDmat, Params{K: 1, Alpha: 0.5}, dispatch.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if res.Distance[i][j] != res.Distance[j][i] {
				t.Errorf("asymmetric result at (%d,%d): %v vs %v", i, j, res.Distance[i][j], res.Distance[j][i])
			}
			if res.Known[i][j] != res.Known[j][i] {
				t.Errorf("asymmetric known mask at (%d,%d)", i, j)
			}
		}
	}
}
