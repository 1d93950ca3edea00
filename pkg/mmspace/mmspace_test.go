package mmspace

import (
	"math"
	"testing"
)

func TestNewRejectsAsymmetric(t *testing.T) {
	d := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1.5, 0},
	}
	if _, err := New("bad", d, nil); err == nil {
		t.Fatal("expected error for asymmetric distance matrix")
	}
}

func TestNewRejectsNonzeroDiagonal(t *testing.T) {
	d := [][]float64{
		{0, 1},
		{1, 0.1},
	}
	if _, err := New("bad", d, nil); err == nil {
		t.Fatal("expected error for nonzero diagonal")
	}
}

func TestNewRejectsTooFewPoints(t *testing.T) {
	d := [][]float64{{0}}
	if _, err := New("single", d, nil); err == nil {
		t.Fatal("expected error for a cell with fewer than 2 points")
	}
}

func TestNewRejectsBadMeasure(t *testing.T) {
	d := [][]float64{
		{0, 1},
		{1, 0},
	}
	if _, err := New("bad", d, []float64{0.2, 0.2}); err == nil {
		t.Fatal("expected error for measure not summing to 1")
	}
}

func TestNewDefaultsToUniform(t *testing.T) {
	d := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1, 0},
	}
	m, err := New("x", d, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range m.Mu {
		if math.Abs(p-1.0/3.0) > 1e-12 {
			t.Errorf("expected uniform measure, got %v", p)
		}
	}
}

func TestSortedVectorform(t *testing.T) {
	d := [][]float64{
		{0, 2, 1},
		{2, 0, 3},
		{1, 3, 0},
	}
	m, err := New("x", d, nil)
	if err != nil {
		t.Fatal(err)
	}
	dsort, order := m.SortedVectorform()
	want := []float64{1, 2, 3}
	for k, v := range want {
		if dsort[k] != v {
			t.Errorf("dsort[%d]=%v, want %v", k, dsort[k], v)
		}
	}
	if order[0] != [2]int{0, 2} {
		t.Errorf("order[0]=%v, want (0,2)", order[0])
	}
}

func TestDistanceInverseCDF(t *testing.T) {
	d := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1, 0},
	}
	m, err := New("x", d, nil)
	if err != nil {
		t.Fatal(err)
	}
	cdf := m.DistanceInverseCDF()
	if len(cdf.F) != 4 || len(cdf.U) != 4 {
		t.Fatalf("expected length 4 CDF arrays, got F=%d U=%d", len(cdf.F), len(cdf.U))
	}
	if cdf.F[0] != 0 {
		t.Errorf("F[0] should be 0, got %v", cdf.F[0])
	}
	sum := 0.0
	for _, u := range cdf.U {
		sum += u
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("cumulative sum of U should be 1, got %v", sum)
	}
	for k := 1; k < len(cdf.F); k++ {
		if cdf.F[k] < cdf.F[k-1] {
			t.Errorf("F should be nondecreasing, F[%d]=%v < F[%d]=%v", k, cdf.F[k], k-1, cdf.F[k-1])
		}
	}
}

func TestDistanceInverseCDFPermutationInvariant(t *testing.T) {
	d1 := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1, 0},
	}
	// permute points (0,1,2) -> (2,0,1)
	d2 := [][]float64{
		{0, 2, 1},
		{2, 0, 1},
		{1, 1, 0},
	}
	m1, _ := New("x", d1, nil)
	m2, _ := New("y", d2, nil)
	c1 := m1.DistanceInverseCDF()
	c2 := m2.DistanceInverseCDF()
	for k := range c1.F {
		if math.Abs(c1.F[k]-c2.F[k]) > 1e-9 || math.Abs(c1.U[k]-c2.U[k]) > 1e-9 {
			t.Fatalf("permutation should not change the sorted CDF: k=%d c1=(%v,%v) c2=(%v,%v)", k, c1.F[k], c1.U[k], c2.F[k], c2.U[k])
		}
	}
}
