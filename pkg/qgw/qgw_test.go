package qgw

import (
	"testing"

	"github.com/cajal-go/shapedist/pkg/gw"
	"github.com/cajal-go/shapedist/pkg/mmspace"
	"github.com/cajal-go/shapedist/pkg/qmms"
)

func buildQMMS(t *testing.T, name string, d [][]float64, labels []int) *qmms.QMMS {
	t.Helper()
	cell, err := mmspace.New(name, d, nil)
	if err != nil {
		t.Fatalf("mmspace.New: %v", err)
	}
	q, err := qmms.BuildWithLabels(cell, labels)
	if err != nil {
		t.Fatalf("qmms.BuildWithLabels: %v", err)
	}
	return q
}

func TestDistanceIdenticalSpacesZero(t *testing.T) {
	d := [][]float64{
		{0, 1, 5, 6},
		{1, 0, 5, 6},
		{5, 5, 0, 1},
		{6, 6, 1, 0},
	}
	labels := []int{0, 0, 1, 1}

	A := buildQMMS(t, "A", d, labels)
	B := buildQMMS(t, "B", d, labels)

	res := Distance(A, B, nil, Options{})
	if res.Distance > 1e-6 {
		t.Errorf("qgw distance between identical spaces = %v, want ~0", res.Distance)
	}
}

func TestDistancePlanMarginals(t *testing.T) {
	dA := [][]float64{
		{0, 1, 5, 6},
		{1, 0, 5, 6},
		{5, 5, 0, 1},
		{6, 6, 1, 0},
	}
	dB := [][]float64{
		{0, 2},
		{2, 0},
	}
	A := buildQMMS(t, "A", dA, []int{0, 0, 1, 1})
	B := buildQMMS(t, "B", dB, []int{0, 1})

	res := Distance(A, B, nil, Options{})

	rowMass := make(map[int]float64)
	colMass := make(map[int]float64)
	for _, e := range res.Plan {
		rowMass[e.I] += e.Mass
		colMass[e.J] += e.Mass
	}
	for i, want := range A.Source.Mu {
		if got := rowMass[i]; absDiff(got, want) > 1e-6 {
			t.Errorf("row %d mass = %v, want %v", i, got, want)
		}
	}
	for j, want := range B.Source.Mu {
		if got := colMass[j]; absDiff(got, want) > 1e-6 {
			t.Errorf("col %d mass = %v, want %v", j, got, want)
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

// At num_clusters = N every cluster is a singleton, so quantization is the
// identity: SubICDM equals the source ICDM and the lifted plan equals the
// coarse plan entry for entry. qgw's distance must then match the unquantized
// GW kernel on the same spaces exactly, up to floating-point summation order.
func TestDistanceExactAtFullResolution(t *testing.T) {
	dA := [][]float64{
		{0, 1, 2},
		{1, 0, 1},
		{2, 1, 0},
	}
	dB := [][]float64{
		{0, 2, 5},
		{2, 0, 3},
		{5, 3, 0},
	}
	A := buildQMMS(t, "A", dA, []int{0, 1, 2})
	B := buildQMMS(t, "B", dB, []int{0, 1, 2})

	got := Distance(A, B, nil, Options{}).Distance

	cellA, err := mmspace.New("A", dA, nil)
	if err != nil {
		t.Fatalf("mmspace.New A: %v", err)
	}
	cellB, err := mmspace.New("B", dB, nil)
	if err != nil {
		t.Fatalf("mmspace.New B: %v", err)
	}
	want := gw.Solve(cellA.D, cellB.D, cellA.Mu, cellB.Mu, nil, gw.Options{}).GW

	if absDiff(got, want) > 1e-6 {
		t.Errorf("qgw distance at full resolution = %v, want gw kernel distance %v", got, want)
	}
}

// Refining two coincident-point clusters (0≡1, 2≡3) into their four
// singletons loses no information: the merged points are literally
// identical, so the coarse 2-cluster representation and the full
// 4-singleton representation describe the same transport problem. Distance
// must not change (in particular, not increase) as num_clusters grows from
// 2 to 4.
func TestDistanceMonotoneUnderRefinement(t *testing.T) {
	dA := [][]float64{
		{0, 0, 10, 10},
		{0, 0, 10, 10},
		{10, 10, 0, 0},
		{10, 10, 0, 0},
	}
	dB := [][]float64{
		{0, 0, 20, 20},
		{0, 0, 20, 20},
		{20, 20, 0, 0},
		{20, 20, 0, 0},
	}

	coarseA := buildQMMS(t, "A-coarse", dA, []int{0, 0, 1, 1})
	coarseB := buildQMMS(t, "B-coarse", dB, []int{0, 0, 1, 1})
	fineA := buildQMMS(t, "A-fine", dA, []int{0, 1, 2, 3})
	fineB := buildQMMS(t, "B-fine", dB, []int{0, 1, 2, 3})

	coarse := Distance(coarseA, coarseB, nil, Options{}).Distance
	fine := Distance(fineA, fineB, nil, Options{}).Distance

	if fine > coarse+0.05 {
		t.Errorf("fine-resolution distance %v exceeds coarse %v by more than numeric slack", fine, coarse)
	}
}
