// Package qgw computes the quantized Gromov-Wasserstein distance between
// two quantized metric-measure spaces: coarse GW on cluster medoids,
// refined into a sparse full-resolution plan via in-block comonotone
// 1D optimal transport.
package qgw

import (
	"math"

	"github.com/cajal-go/shapedist/pkg/gw"
	"github.com/cajal-go/shapedist/pkg/qmms"
	"github.com/cajal-go/shapedist/pkg/transport"
)

const massEpsilon = 1e-12

// Entry is one nonzero cell of the lifted full-resolution plan, indexed by
// the *original* (unpermuted) point indices of A and B.
type Entry struct {
	I, J int
	Mass float64
}

// Options configures the coarse GW solve.
type Options struct {
	GW gw.Options
}

// Result is the qGW distance plus the sparse full-resolution plan that
// produced it.
type Result struct {
	Distance float64
	Plan     []Entry
}

// Distance computes the qGW distance between A and B. initialCoarsePlan, if
// non-nil, warm-starts the coarse GW solve with an ns_A-by-ns_B plan (e.g.
// derived from a previous round's result at a coarser clustering); its
// linearized cost is -2*A.SubICDM*initialCoarsePlan*B.SubICDM', matching
// the GW kernel's own warm-start contract.
func Distance(A, B *qmms.QMMS, initialCoarsePlan [][]float64, opts Options) Result {
	coarse := gw.Solve(A.SubICDM, B.SubICDM, A.QDistribution, B.QDistribution, initialCoarsePlan, opts.GW)

	full := liftPlan(A, B, coarse.Plan)
	cross := crossTerm(A.ICDM, B.ICDM, full)
	loss := A.CA + B.CA - 2*cross
	dist := math.Sqrt(math.Max(0, loss)) / 2

	return Result{Distance: dist, Plan: mapToOriginal(A, B, full)}
}

// liftPlan redistributes each nonzero coarse cell (k,l) across the
// individual points of cluster k in A and cluster l in B via the
// north-west-corner rule, since within-cluster ordering (distance-to-medoid
// ascending, established at qMMS construction) makes both sides comonotone.
// Returned indices are in A/B's permuted (cluster-contiguous) space.
func liftPlan(A, B *qmms.QMMS, coarse [][]float64) []Entry {
	var out []Entry
	for k := 0; k < A.Ns; k++ {
		loK, hiK := A.QIndices[k], A.QIndices[k+1]
		for l := 0; l < B.Ns; l++ {
			mass := coarse[k][l]
			if mass <= massEpsilon {
				continue
			}
			loL, hiL := B.QIndices[l], B.QIndices[l+1]

			supply := scaledBlock(A.Distribution[loK:hiK], mass, A.QDistribution[k])
			demand := scaledBlock(B.Distribution[loL:hiL], mass, B.QDistribution[l])

			for _, e := range transport.NorthWestCorner1D(supply, demand) {
				out = append(out, Entry{I: loK + e.I, J: loL + e.J, Mass: e.Mass})
			}
		}
	}
	return out
}

// scaledBlock rescales a block's point measures so they sum to mass instead
// of clusterMass (which they summed to in the quantized distribution).
func scaledBlock(points []float64, mass, clusterMass float64) []float64 {
	out := make([]float64, len(points))
	if clusterMass <= 0 {
		return out
	}
	scale := mass / clusterMass
	for i, v := range points {
		out[i] = v * scale
	}
	return out
}

// crossTerm computes <A P B^T, P> over a sparse plan, i.e.
// sum over pairs of entries (i,j,m) and (i',j',m') of
// ICDM_A[i][i'] * m * m' * ICDM_B[j][j'].
func crossTerm(icdmA, icdmB [][]float64, entries []Entry) float64 {
	total := 0.0
	for a := range entries {
		ea := entries[a]
		for b := range entries {
			eb := entries[b]
			total += icdmA[ea.I][eb.I] * ea.Mass * eb.Mass * icdmB[ea.J][eb.J]
		}
	}
	return total
}

func mapToOriginal(A, B *qmms.QMMS, entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for k, e := range entries {
		out[k] = Entry{I: A.Permutation[e.I], J: B.Permutation[e.J], Mass: e.Mass}
	}
	return out
}
