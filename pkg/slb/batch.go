package slb

import (
	"context"

	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/mmspace"
)

// PairKey identifies an unordered pair of cell indices, i<j.
type PairKey struct {
	I, J int
}

// Matrix computes the pairwise SLB distance matrix for a population of
// cells, dispatching each unordered pair {i,j} through the parallel
// dispatcher. The result is symmetric with zero diagonal.
func Matrix(ctx context.Context, cells []*mmspace.MMSpace, opts dispatch.Options) ([][]float64, error) {
	n := len(cells)
	cdfs := make([]mmspace.CDF, n)
	for i, c := range cells {
		cdfs[i] = c.DistanceInverseCDF()
	}

	keys := make([]PairKey, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			keys = append(keys, PairKey{i, j})
		}
	}

	type result struct {
		i, j int
		d    float64
	}
	fn := func(k PairKey, payload []mmspace.CDF) result {
		return result{k.I, k.J, Distance(payload[k.I], payload[k.J])}
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}

	results, errc := dispatch.MapUnordered(ctx, cdfs, keys, fn, opts)
	for r := range results {
		out[r.i][r.j] = r.d
		out[r.j][r.i] = r.d
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}
