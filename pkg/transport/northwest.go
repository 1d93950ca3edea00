package transport

import "math"

// NorthWestCorner1D solves the 1D optimal-transport problem between two
// comonotone measures via the north-west-corner rule. When both sides are
// already ordered so that the i-th unit of supply and the j-th unit of
// demand are nondecreasing in the same underlying quantity (here,
// distance-to-medoid within a cluster block), the north-west-corner
// coupling is the optimal transport plan — no cost matrix is needed, which
// is what makes the in-block refinement cheap.
func NorthWestCorner1D(supply, demand []float64) []Entry {
	m, n := len(supply), len(demand)
	if m == 0 || n == 0 {
		return nil
	}
	ra := append([]float64(nil), supply...)
	rb := append([]float64(nil), demand...)

	entries := make([]Entry, 0, m+n-1)
	i, j := 0, 0
	for i < m && j < n {
		val := math.Min(ra[i], rb[j])
		if val > 0 {
			entries = append(entries, Entry{i, j, val})
		}
		ra[i] -= val
		rb[j] -= val
		switch {
		case ra[i] <= 1e-15 && rb[j] <= 1e-15:
			i++
			j++
		case ra[i] <= 1e-15:
			i++
		default:
			j++
		}
	}
	return entries
}

// NorthWestCornerDense is NorthWestCorner1D's result expanded into a dense
// m-by-n matrix, used by the GW kernel to seed its first iteration when the
// caller supplies no initial plan.
func NorthWestCornerDense(supply, demand []float64) [][]float64 {
	m, n := len(supply), len(demand)
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for _, e := range NorthWestCorner1D(supply, demand) {
		out[e.I][e.J] = e.Mass
	}
	return out
}
