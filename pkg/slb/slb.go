// Package slb computes the Second Lower Bound (SLB) for Gromov-Wasserstein
// distance, a cheap globally-computable lower bound derived purely from the
// sorted inverse-CDF of each space's pairwise distances.
package slb

import (
	"math"

	"github.com/cajal-go/shapedist/pkg/mmspace"
)

// Distance computes the SLB distance between two spaces given their
// distance inverse CDFs:
//
//  1. cumulate U and V into the step-function breakpoints;
//  2. take the squared L2 distance between the two inverse CDFs viewed as
//     step functions on [0,1], integrated over the merged breakpoint grid;
//  3. return 0.5*sqrt(L2).
func Distance(x, y mmspace.CDF) float64 {
	cumU := cumsum(x.U)
	cumV := cumsum(y.U)
	l2 := l2Distance(x.F, cumU, y.F, cumV)
	if l2 < 0 {
		l2 = 0
	}
	return 0.5 * math.Sqrt(l2)
}

func cumsum(u []float64) []float64 {
	out := make([]float64, len(u))
	running := 0.0
	for i, v := range u {
		running += v
		out[i] = running
	}
	return out
}

// l2Distance integrates (f(t)-g(t))^2 over t in [0,1], where f is the step
// function with value f[k] on (cumU[k-1], cumU[k]] (cumU[-1]=0) and g is
// defined analogously from g/cumV. Both cumU and cumV are assumed to end at
// (approximately) 1.
func l2Distance(f, cumU, g, cumV []float64) float64 {
	i, j := 0, 0
	prevT := 0.0
	total := 0.0

	for i < len(f) && j < len(g) {
		a, b := cumU[i], cumV[j]
		t := a
		if b < t {
			t = b
		}
		width := t - prevT
		if width > 0 {
			diff := f[i] - g[j]
			total += diff * diff * width
		}
		if a <= t {
			i++
		}
		if b <= t {
			j++
		}
		prevT = t
	}
	return total
}
