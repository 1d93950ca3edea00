// Package mmspace defines the metric-measure space: a square distance
// matrix paired with a probability vector, plus the sorted-vectorform and
// inverse-CDF views the rest of the engine builds on.
package mmspace

import (
	"fmt"
	"math"

	"github.com/cajal-go/shapedist/pkg/errs"
)

const (
	symmetryTolerance = 1e-9
	measureTolerance  = 1e-7
)

// MMSpace is a finite metric-measure space: N points, a symmetric
// zero-diagonal distance matrix D, and a probability vector Mu.
//
// MMSpace is immutable after construction.
type MMSpace struct {
	Name string
	N    int
	D    [][]float64
	Mu   []float64
}

// New validates (D, mu) and returns an MMSpace. D must be square,
// symmetric within 1e-9, zero on the diagonal, and free of NaNs; mu must be
// nonnegative and sum to 1 within 1e-7. A nil mu defaults to uniform 1/N.
func New(name string, d [][]float64, mu []float64) (*MMSpace, error) {
	n := len(d)
	if n < 2 {
		return nil, fmt.Errorf("%w: cell %q has %d points, need at least 2", errs.ErrMalformedInput, name, n)
	}
	for _, row := range d {
		if len(row) != n {
			return nil, fmt.Errorf("%w: cell %q distance matrix is not square", errs.ErrMalformedInput, name)
		}
	}
	for i := 0; i < n; i++ {
		if d[i][i] != 0 {
			return nil, fmt.Errorf("%w: cell %q has nonzero diagonal at %d", errs.ErrMalformedInput, name, i)
		}
		for j := i + 1; j < n; j++ {
			if math.IsNaN(d[i][j]) || math.IsNaN(d[j][i]) {
				return nil, fmt.Errorf("%w: cell %q has NaN distance at (%d,%d)", errs.ErrMalformedInput, name, i, j)
			}
			if math.Abs(d[i][j]-d[j][i]) > symmetryTolerance {
				return nil, fmt.Errorf("%w: cell %q is not symmetric at (%d,%d)", errs.ErrMalformedInput, name, i, j)
			}
			if d[i][j] < 0 {
				return nil, fmt.Errorf("%w: cell %q has negative distance at (%d,%d)", errs.ErrMalformedInput, name, i, j)
			}
		}
	}

	if mu == nil {
		mu = Uniform(n)
	} else {
		if len(mu) != n {
			return nil, fmt.Errorf("%w: cell %q measure length %d != %d", errs.ErrMalformedInput, name, len(mu), n)
		}
		sum := 0.0
		for _, p := range mu {
			if p < 0 || math.IsNaN(p) {
				return nil, fmt.Errorf("%w: cell %q measure has a negative or NaN entry", errs.ErrMalformedInput, name)
			}
			sum += p
		}
		if math.Abs(sum-1.0) > measureTolerance {
			return nil, fmt.Errorf("%w: cell %q measure sums to %v, not 1", errs.ErrMalformedInput, name, sum)
		}
	}

	return &MMSpace{Name: name, N: n, D: d, Mu: mu}, nil
}

// Uniform returns the uniform probability vector of length n.
func Uniform(n int) []float64 {
	mu := make([]float64, n)
	p := 1.0 / float64(n)
	for i := range mu {
		mu[i] = p
	}
	return mu
}

// pairIndex is a strict-upper-triangle entry (i<j) together with its value.
type pairIndex struct {
	i, j int
	d    float64
}

// SortedVectorform flattens the strict upper triangle of D into a vector
// sorted ascending by distance, returning the sorted distances and the
// (i,j) pairs in the order they ended up. Ties are broken by original
// (i,j) lexicographic order, which does not affect any downstream integral.
func (m *MMSpace) SortedVectorform() (dsort []float64, order [][2]int) {
	n := m.N
	count := n * (n - 1) / 2
	pairs := make([]pairIndex, 0, count)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pairIndex{i, j, m.D[i][j]})
		}
	}
	sortPairsStable(pairs)

	dsort = make([]float64, count)
	order = make([][2]int, count)
	for k, p := range pairs {
		dsort[k] = p.d
		order[k] = [2]int{p.i, p.j}
	}
	return dsort, order
}

// sortPairsStable sorts pairs by distance ascending, breaking ties by
// original (i,j) order (which is already the enumeration order, so a
// stable sort preserves it).
func sortPairsStable(pairs []pairIndex) {
	// insertion sort is adequate for the small cell sizes this engine
	// targets and keeps the tie-break rule obviously stable; callers with
	// very large N should pre-sort via a different strategy.
	for i := 1; i < len(pairs); i++ {
		v := pairs[i]
		j := i - 1
		for j >= 0 && pairs[j].d > v.d {
			pairs[j+1] = pairs[j]
			j--
		}
		pairs[j+1] = v
	}
}

// CDF is the inverse cumulative distance distribution of a space: F[k] is
// the k-th smallest inter-point distance (F[0]=0), U[k] is the total
// measure-mass of point pairs at that distance, and the cumulative sum of
// U reaches 1.
type CDF struct {
	F []float64
	U []float64
}

// DistanceInverseCDF computes the (F, U) pair: prepend 0 to the sorted
// vectorform and Σμᵢ² to the reordered pairwise-mass vector.
func (m *MMSpace) DistanceInverseCDF() CDF {
	dsort, order := m.SortedVectorform()

	f := make([]float64, len(dsort)+1)
	u := make([]float64, len(dsort)+1)

	f[0] = 0
	selfMass := 0.0
	for _, p := range m.Mu {
		selfMass += p * p
	}
	u[0] = selfMass

	for k, pr := range order {
		f[k+1] = dsort[k]
		u[k+1] = m.Mu[pr[0]] * m.Mu[pr[1]] * 2
	}
	return CDF{F: f, U: u}
}
