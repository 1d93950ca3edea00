// Package qmms builds the quantized metric-measure space: a cell reordered
// so that points fall into cluster-contiguous, medoid-sorted blocks, plus
// the coarse medoid distance matrix and moments the qGW engine needs to
// avoid recomputing them on every pair.
package qmms

import (
	"context"
	"fmt"
	"sort"

	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/errs"
	"github.com/cajal-go/shapedist/pkg/mmspace"
	"github.com/cajal-go/shapedist/pkg/obs"
)

// QMMS is a metric-measure space equipped with a clustering. Its points
// have been permuted so that cluster membership is contiguous and, within
// each cluster, ordered by ascending distance to that cluster's medoid.
type QMMS struct {
	// Source is the original space, unpermuted.
	Source *mmspace.MMSpace
	// ICDM is Source.D permuted into cluster-contiguous, medoid-sorted
	// order.
	ICDM [][]float64
	// Distribution is Source.Mu permuted the same way.
	Distribution []float64
	// Permutation maps permuted index -> original index, i.e.
	// ICDM[a][b] == Source.D[Permutation[a]][Permutation[b]].
	Permutation []int
	// Ns is the number of clusters actually formed (may be less than a
	// requested NumClusters if the hierarchy collapses early).
	Ns int
	// QIndices has length Ns+1: cluster s occupies permuted indices
	// [QIndices[s], QIndices[s+1]).
	QIndices []int
	// SubICDM is the Ns-by-Ns distance matrix between cluster medoids.
	SubICDM [][]float64
	// QDistribution is the per-cluster total mass, length Ns.
	QDistribution []float64
	// CA is <(D⊙D)mu, mu> over the full space.
	CA float64
	// CAs is <(SubICDM⊙SubICDM)q, q> over the quantized space.
	CAs float64
	// ASAs is SubICDM . QDistribution.
	ASAs []float64
}

// Options configures quantization.
type Options struct {
	// NumClusters is the target cluster count used by Build. It is ignored
	// by BuildWithLabels and by BuildAll jobs that carry their own Labels.
	NumClusters int
	// Logger and Metrics, if non-nil, receive a warning and a counter
	// increment when the clustering collapses below NumClusters.
	Logger  *obs.Logger
	Metrics *obs.Metrics
}

// Build quantizes cell by clustering it into roughly opts.NumClusters
// clusters via centroid-linkage agglomerative clustering, then reordering
// it into cluster-contiguous, medoid-sorted form. This is the no-labels
// constructor; callers who already have cluster assignments (e.g. replaying
// a saved clustering) should use BuildWithLabels instead — the two are kept
// as separate named constructors rather than overloaded on an optional
// parameter, since the labels change the computed Ns downstream.
func Build(cell *mmspace.MMSpace, opts Options) (*QMMS, error) {
	k := opts.NumClusters
	if k <= 0 {
		k = 1
	}
	if k > cell.N {
		k = cell.N
	}
	labels := centroidLinkageCluster(cell.D, k)
	q, err := BuildWithLabels(cell, labels)
	if err != nil {
		return nil, err
	}
	if q.Ns < opts.NumClusters {
		if opts.Logger != nil {
			opts.Logger.With("cell", cell.Name).With("requested", opts.NumClusters).With("actual", q.Ns).Warn("clustering collapsed below requested cluster count")
		}
		if opts.Metrics != nil {
			opts.Metrics.ClustersDegenerateTotal.Inc()
		}
	}
	return q, nil
}

// BuildWithLabels quantizes cell using an explicit cluster-label assignment
// (labels[i] is the 0-based cluster of point i). Labels need not be
// contiguous or sorted; they are canonicalized internally.
func BuildWithLabels(cell *mmspace.MMSpace, labels []int) (*QMMS, error) {
	n := cell.N
	if len(labels) != n {
		return nil, fmt.Errorf("%w: cell %q has %d points but %d cluster labels", errs.ErrMalformedInput, cell.Name, n, len(labels))
	}
	labels = canonicalizeLabels(labels)

	ns := 0
	for _, l := range labels {
		if l+1 > ns {
			ns = l + 1
		}
	}
	if ns > n {
		return nil, fmt.Errorf("%w: cell %q produced %d clusters for %d points", errs.ErrDegenerateClustering, cell.Name, ns, n)
	}

	perm := sortByClusterThenIndex(labels)
	icdm, dist := permuteSpace(cell.D, cell.Mu, perm)

	qIndices := clusterBoundaries(labels, perm, ns)

	for s := 0; s < ns; s++ {
		lo, hi := qIndices[s], qIndices[s+1]
		medoidOffset := argminRowSum(icdm, lo, hi)
		reorderClusterByMedoid(icdm, dist, perm, lo, hi, medoidOffset)
	}

	qDist := make([]float64, ns)
	for s := 0; s < ns; s++ {
		sum := 0.0
		for i := qIndices[s]; i < qIndices[s+1]; i++ {
			sum += dist[i]
		}
		qDist[s] = sum
	}

	medoidIdx := make([]int, ns)
	for s := 0; s < ns; s++ {
		medoidIdx[s] = qIndices[s]
	}
	subICDM := make([][]float64, ns)
	for a, ia := range medoidIdx {
		subICDM[a] = make([]float64, ns)
		for b, ib := range medoidIdx {
			subICDM[a][b] = icdm[ia][ib]
		}
	}

	cA := quadraticForm(cell.D, cell.Mu)
	cAs := quadraticForm(subICDM, qDist)
	aSAs := matVec(subICDM, qDist)

	return &QMMS{
		Source:        cell,
		ICDM:          icdm,
		Distribution:  dist,
		Permutation:   perm,
		Ns:            ns,
		QIndices:      qIndices,
		SubICDM:       subICDM,
		QDistribution: qDist,
		CA:            cA,
		CAs:           cAs,
		ASAs:          aSAs,
	}, nil
}

// CellJob is one input to BuildAll: a cell plus optional explicit cluster
// labels. A nil Labels derives clustering from the shared Options.
type CellJob struct {
	Cell   *mmspace.MMSpace
	Labels []int
}

type indexedQMMS struct {
	idx int
	q   *QMMS
}

// BuildAll quantizes a population of cells in parallel through the shared
// work dispatcher, fanning qMMS construction out the same way pkg/slb fans
// out pairwise SLB and pkg/refine fans out pairwise qGW. Each job's labels win
// over opts.NumClusters when supplied, per the same rule as BuildWithLabels
// vs Build. A failure on any cell (e.g. a label count that does not match
// the cell's point count) aborts the whole run and no partial output is
// returned, matching the dispatcher's panic-aborts-the-run contract.
func BuildAll(ctx context.Context, jobs []CellJob, opts Options, dispatchOpts dispatch.Options) ([]*QMMS, error) {
	keys := make([]int, len(jobs))
	for i := range keys {
		keys[i] = i
	}

	fn := func(idx int, payload []CellJob) indexedQMMS {
		j := payload[idx]
		var q *QMMS
		var err error
		if j.Labels != nil {
			q, err = BuildWithLabels(j.Cell, j.Labels)
		} else {
			q, err = Build(j.Cell, opts)
		}
		if err != nil {
			panic(err)
		}
		return indexedQMMS{idx, q}
	}

	results, errc := dispatch.MapUnordered(ctx, jobs, keys, fn, dispatchOpts)
	out := make([]*QMMS, len(jobs))
	for r := range results {
		out[r.idx] = r.q
	}
	if err := <-errc; err != nil {
		return nil, err
	}
	return out, nil
}

// canonicalizeLabels remaps arbitrary integer labels to a dense 0..k-1
// range, preserving first-seen order, so downstream code never needs to
// reason about gaps or negative labels.
func canonicalizeLabels(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))
	next := 0
	for i, l := range labels {
		r, ok := remap[l]
		if !ok {
			r = next
			remap[l] = r
			next++
		}
		out[i] = r
	}
	return out
}

// sortByClusterThenIndex returns a permutation (permuted position ->
// original index) ordered by ascending cluster label, with original index
// as the tie-break — the latter is overwritten by medoid-distance sorting
// per cluster in a later pass, but gives a stable starting order.
func sortByClusterThenIndex(labels []int) []int {
	perm := make([]int, len(labels))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return labels[perm[a]] < labels[perm[b]]
	})
	return perm
}

func permuteSpace(d [][]float64, mu []float64, perm []int) ([][]float64, []float64) {
	n := len(perm)
	icdm := make([][]float64, n)
	for a := range icdm {
		icdm[a] = make([]float64, n)
		for b := range icdm[a] {
			icdm[a][b] = d[perm[a]][perm[b]]
		}
	}
	dist := make([]float64, n)
	for a := range dist {
		dist[a] = mu[perm[a]]
	}
	return icdm, dist
}

// clusterBoundaries computes the Ns+1 cut points of the permuted cluster
// labels (already contiguous by construction of perm).
func clusterBoundaries(labels []int, perm []int, ns int) []int {
	n := len(perm)
	bounds := make([]int, 0, ns+1)
	bounds = append(bounds, 0)
	for a := 1; a < n; a++ {
		if labels[perm[a]] != labels[perm[a-1]] {
			bounds = append(bounds, a)
		}
	}
	bounds = append(bounds, n)
	return bounds
}

// argminRowSum returns the offset (relative to lo) of the point in
// icdm[lo:hi, lo:hi] with the smallest sum of distances to the rest of the
// cluster — the medoid.
func argminRowSum(icdm [][]float64, lo, hi int) int {
	best := 0
	bestSum := rowSumWithin(icdm, lo, hi, lo)
	for a := lo + 1; a < hi; a++ {
		s := rowSumWithin(icdm, lo, hi, a)
		if s < bestSum {
			bestSum = s
			best = a - lo
		}
	}
	return best
}

func rowSumWithin(icdm [][]float64, lo, hi, row int) float64 {
	sum := 0.0
	for b := lo; b < hi; b++ {
		sum += icdm[row][b]
	}
	return sum
}

// reorderClusterByMedoid rewrites icdm, dist and perm in place so that
// cluster [lo,hi) is sorted by ascending distance to its medoid (the point
// at offset medoidOffset).
func reorderClusterByMedoid(icdm [][]float64, dist []float64, perm []int, lo, hi, medoidOffset int) {
	medoidRow := lo + medoidOffset

	// localOrder[k] = the old global index that should occupy new position lo+k.
	localOrder := make([]int, hi-lo)
	for k := range localOrder {
		localOrder[k] = lo + k
	}
	sort.SliceStable(localOrder, func(a, b int) bool {
		return icdm[medoidRow][localOrder[a]] < icdm[medoidRow][localOrder[b]]
	})

	// globalSrc[newPos] = oldPos that newPos's data comes from, identity
	// outside [lo,hi).
	n := len(perm)
	globalSrc := make([]int, n)
	for a := 0; a < n; a++ {
		globalSrc[a] = a
	}
	for k, oldPos := range localOrder {
		globalSrc[lo+k] = oldPos
	}

	newPerm := make([]int, n)
	newDist := make([]float64, n)
	for a := 0; a < n; a++ {
		newPerm[a] = perm[globalSrc[a]]
		newDist[a] = dist[globalSrc[a]]
	}

	newICDM := make([][]float64, n)
	for a := 0; a < n; a++ {
		newICDM[a] = make([]float64, n)
		for b := 0; b < n; b++ {
			newICDM[a][b] = icdm[globalSrc[a]][globalSrc[b]]
		}
	}

	copy(perm, newPerm)
	copy(dist, newDist)
	for a := 0; a < n; a++ {
		copy(icdm[a], newICDM[a])
	}
}

func quadraticForm(m [][]float64, w []float64) float64 {
	total := 0.0
	for i, row := range m {
		for j, v := range row {
			total += v * v * w[i] * w[j]
		}
	}
	return total
}

func matVec(m [][]float64, w []float64) []float64 {
	out := make([]float64, len(m))
	for i, row := range m {
		sum := 0.0
		for j, v := range row {
			sum += v * w[j]
		}
		out[i] = sum
	}
	return out
}
