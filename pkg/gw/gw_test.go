package gw

import "testing"

func approxEqual(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < tol
}

func uniform(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1.0 / float64(n)
	}
	return out
}

func TestSolveIdenticalSpacesZeroDistance(t *testing.T) {
	D := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1, 0},
	}
	mu := uniform(3)

	res := Solve(D, D, mu, mu, nil, Options{})
	if res.GW > 1e-6 {
		t.Errorf("gw distance between identical spaces = %v, want ~0", res.GW)
	}
}

func TestSolveMarginalsRespected(t *testing.T) {
	A := [][]float64{
		{0, 1, 2},
		{1, 0, 3},
		{2, 3, 0},
	}
	B := [][]float64{
		{0, 5},
		{5, 0},
	}
	muA := uniform(3)
	muB := uniform(2)

	res := Solve(A, B, muA, muB, nil, Options{})

	rowSums := make([]float64, 3)
	colSums := make([]float64, 2)
	for i, row := range res.Plan {
		for j, v := range row {
			rowSums[i] += v
			colSums[j] += v
		}
	}
	for i, want := range muA {
		if !approxEqual(rowSums[i], want, 1e-6) {
			t.Errorf("row sum %d = %v, want %v", i, rowSums[i], want)
		}
	}
	for j, want := range muB {
		if !approxEqual(colSums[j], want, 1e-6) {
			t.Errorf("col sum %d = %v, want %v", j, colSums[j], want)
		}
	}
}

func TestSolveNonNegativeDistance(t *testing.T) {
	A := [][]float64{
		{0, 2, 4},
		{2, 0, 6},
		{4, 6, 0},
	}
	B := [][]float64{
		{0, 1},
		{1, 0},
	}
	res := Solve(A, B, uniform(3), uniform(2), nil, Options{})
	if res.GW < 0 {
		t.Errorf("gw distance = %v, want >= 0", res.GW)
	}
	for _, row := range res.Plan {
		for _, v := range row {
			if v < -1e-9 {
				t.Errorf("plan entry %v < 0", v)
			}
		}
	}
}
