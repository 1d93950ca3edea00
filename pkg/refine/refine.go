// Package refine drives the adaptive k-nearest-neighbor refinement loop:
// seed from SLB, dispatch qGW jobs for the pairs most likely to matter,
// and fill whatever remains unknown with an SLB+median estimator once the
// statistical error model says further exact computation would not change
// the k-NN graph.
package refine

import (
	"context"
	"io"
	"math"
	"sort"
	"time"

	"github.com/cajal-go/shapedist/pkg/dispatch"
	"github.com/cajal-go/shapedist/pkg/obs"
	"github.com/cajal-go/shapedist/pkg/qgw"
	"github.com/cajal-go/shapedist/pkg/qmms"
)

// Params configures the refinement controller.
type Params struct {
	// K is the target number of nearest neighbors per row.
	K int
	// Alpha in [0,1] is the accuracy target: higher alpha tolerates fewer
	// expected missed neighbors ("injuries") before the loop stops early.
	Alpha float64
	// Bins is the resolution of the empirical (qgw-slb) error model. Zero
	// selects 200.
	Bins int
	// MaxRounds caps the controller loop as a safety valve against a
	// misbehaving error model; it is not part of the termination
	// criterion itself. Zero selects a generous default.
	MaxRounds int
	// Logger and Metrics, if non-nil, receive per-round diagnostics. Both
	// are optional so tests and simple callers can omit them.
	Logger  *obs.Logger
	Metrics *obs.Metrics
}

func (p Params) bins() int {
	if p.Bins > 0 {
		return p.Bins
	}
	return 200
}

func (p Params) maxRounds() int {
	if p.MaxRounds > 0 {
		return p.MaxRounds
	}
	return 200
}

// Result is the refinement controller's output.
type Result struct {
	// Distance[i][j] is the qGW distance if Known[i][j], else the
	// SLB+median estimate.
	Distance [][]float64
	Known    [][]bool
}

type pairKey struct{ I, J int }

// Run executes the controller to convergence (or Params.MaxRounds) and
// returns the combined exact/estimated distance matrix.
func Run(ctx context.Context, qmmsArr []*qmms.QMMS, slb [][]float64, params Params, dispatchOpts dispatch.Options) (Result, error) {
	logger := params.Logger
	if logger == nil {
		logger = obs.NewLogger(obs.Debug, io.Discard)
	}

	n := len(qmmsArr)
	qgwDmat := make([][]float64, n)
	known := make([][]bool, n)
	for i := range qgwDmat {
		qgwDmat[i] = make([]float64, n)
		known[i] = make([]bool, n)
		known[i][i] = true
	}

	if params.K >= n-1 {
		pairs := allOffDiagonalPairs(n)
		results, errc := dispatchQGW(ctx, qmmsArr, pairs, dispatchOpts)
		for r := range results {
			qgwDmat[r.I][r.J] = r.D
			qgwDmat[r.J][r.I] = r.D
			known[r.I][r.J] = true
			known[r.J][r.I] = true
		}
		if err := <-errc; err != nil {
			return Result{}, err
		}
		return Result{Distance: qgwDmat, Known: known}, nil
	}

	seed := seedCandidates(slb, params.K)
	results, errc := dispatchQGW(ctx, qmmsArr, seed, dispatchOpts)
	for r := range results {
		qgwDmat[r.I][r.J] = r.D
		qgwDmat[r.J][r.I] = r.D
		known[r.I][r.J] = true
		known[r.J][r.I] = true
	}
	if err := <-errc; err != nil {
		return Result{}, err
	}

	for round := 0; round < params.maxRounds(); round++ {
		errs := observedErrors(qgwDmat, slb, known, n)
		if len(errs) == 0 {
			break
		}
		model := newErrorModel(errs, params.bins())
		median := model.quantileValue(0.5)

		cutoff := rowCutoffs(qgwDmat, slb, known, n, params.K, median)
		candidates := selectCandidates(slb, known, cutoff, n)
		if len(candidates) == 0 {
			break
		}

		emit, done := chooseEmitSet(candidates, model, params.K, n, params.Alpha)
		if done {
			break
		}

		roundStart := time.Now()
		roundErr := logger.Round(round, func() (int, error) {
			results, errc := dispatchQGW(ctx, qmmsArr, emit, dispatchOpts)
			for r := range results {
				qgwDmat[r.I][r.J] = r.D
				qgwDmat[r.J][r.I] = r.D
				known[r.I][r.J] = true
				known[r.J][r.I] = true
				if params.Metrics != nil {
					params.Metrics.QGWMinusSLB.Observe(r.D - slb[r.I][r.J])
					params.Metrics.QGWJobsTotal.WithLabelValues("computed").Inc()
				}
			}
			if err := <-errc; err != nil {
				return 0, err
			}
			return len(emit), nil
		})
		if roundErr != nil {
			return Result{}, roundErr
		}
		if params.Metrics != nil {
			params.Metrics.RoundDuration.Observe(time.Since(roundStart).Seconds())
		}
	}

	finalErrs := observedErrors(qgwDmat, slb, known, n)
	finalMedian := 0.0
	if len(finalErrs) > 0 {
		finalMedian = median(finalErrs)
	}
	estimated := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || known[i][j] {
				continue
			}
			qgwDmat[i][j] = slb[i][j] + finalMedian
			if i < j {
				estimated++
			}
		}
	}
	if params.Metrics != nil && estimated > 0 {
		params.Metrics.QGWJobsTotal.WithLabelValues("estimated").Add(float64(estimated))
	}

	return Result{Distance: qgwDmat, Known: known}, nil
}

type qgwJobResult struct {
	I, J int
	D    float64
}

func dispatchQGW(ctx context.Context, qmmsArr []*qmms.QMMS, keys []pairKey, opts dispatch.Options) (<-chan qgwJobResult, <-chan error) {
	fn := func(k pairKey, payload []*qmms.QMMS) qgwJobResult {
		res := qgw.Distance(payload[k.I], payload[k.J], nil, qgw.Options{})
		return qgwJobResult{I: k.I, J: k.J, D: res.Distance}
	}
	return dispatch.MapUnordered(ctx, qmmsArr, keys, fn, opts)
}

func allOffDiagonalPairs(n int) []pairKey {
	pairs := make([]pairKey, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pairKey{i, j})
		}
	}
	return pairs
}

// seedCandidates selects, for each row, the indices of the k smallest SLB
// values (j != i), deduplicated into canonical (min,max) pairs.
func seedCandidates(slb [][]float64, k int) []pairKey {
	n := len(slb)
	seen := make(map[pairKey]bool)
	var out []pairKey
	for i := 0; i < n; i++ {
		order := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				order = append(order, j)
			}
		}
		sort.Slice(order, func(a, b int) bool { return slb[i][order[a]] < slb[i][order[b]] })
		limit := k
		if limit > len(order) {
			limit = len(order)
		}
		for _, j := range order[:limit] {
			key := canonical(i, j)
			if !seen[key] {
				seen[key] = true
				out = append(out, key)
			}
		}
	}
	return out
}

func canonical(i, j int) pairKey {
	if i < j {
		return pairKey{i, j}
	}
	return pairKey{j, i}
}

// observedErrors collects (qgw-slb) over known off-diagonal pairs.
func observedErrors(qgwDmat, slb [][]float64, known [][]bool, n int) []float64 {
	var out []float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if known[i][j] {
				out = append(out, qgwDmat[i][j]-slb[i][j])
			}
		}
	}
	return out
}

func median(sorted []float64) float64 {
	cp := append([]float64(nil), sorted...)
	sort.Float64s(cp)
	m := len(cp)
	if m%2 == 1 {
		return cp[m/2]
	}
	return (cp[m/2-1] + cp[m/2]) / 2
}

// errorModel is an empirical CDF of observed (qgw-slb) errors, coarsened to
// `bins` quantile breakpoints for fast repeated querying.
type errorModel struct {
	breakpoints []float64 // ascending, length bins+1
}

func newErrorModel(samples []float64, bins int) *errorModel {
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)
	m := len(cp)
	bp := make([]float64, bins+1)
	for b := 0; b <= bins; b++ {
		frac := float64(b) / float64(bins)
		pos := frac * float64(m-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		if hi >= m {
			hi = m - 1
		}
		if lo == hi {
			bp[b] = cp[lo]
		} else {
			w := pos - float64(lo)
			bp[b] = cp[lo]*(1-w) + cp[hi]*w
		}
	}
	return &errorModel{breakpoints: bp}
}

// quantileValue returns the value at quantile q in [0,1] (e.g. q=0.5 is the
// median).
func (m *errorModel) quantileValue(q float64) float64 {
	bins := len(m.breakpoints) - 1
	idx := int(math.Round(q * float64(bins)))
	if idx < 0 {
		idx = 0
	}
	if idx > bins {
		idx = bins
	}
	return m.breakpoints[idx]
}

// quantileOf returns the fraction of the empirical distribution at or below
// x — the probability that an observed (qgw-slb) error is <= x.
func (m *errorModel) quantileOf(x float64) float64 {
	bp := m.breakpoints
	idx := sort.SearchFloat64s(bp, x)
	for idx+1 < len(bp) && bp[idx+1] == x {
		idx++
	}
	if idx >= len(bp) {
		return 1.0
	}
	return float64(idx) / float64(len(bp)-1)
}

// rowCutoffs computes, for each row, the (k+1)-th smallest value of a
// "pessimistic" row where unknown entries are replaced by slb+median.
func rowCutoffs(qgwDmat, slb [][]float64, known [][]bool, n, k int, errMedian float64) []float64 {
	cutoff := make([]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, 0, n-1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			if known[i][j] {
				row = append(row, qgwDmat[i][j])
			} else {
				row = append(row, slb[i][j]+errMedian)
			}
		}
		sort.Float64s(row)
		idx := k
		if idx >= len(row) {
			idx = len(row) - 1
		}
		if idx < 0 {
			idx = 0
		}
		cutoff[i] = row[idx]
	}
	return cutoff
}

type candidate struct {
	i, j      int
	threshold float64
}

// selectCandidates collects unknown pairs (i,j) with slb[i][j] <= cutoff[i]
// or slb[i][j] <= cutoff[j], keeping the smaller of the two thresholds
// (i.e. the row that finds it most urgent).
func selectCandidates(slb [][]float64, known [][]bool, cutoff []float64, n int) []candidate {
	var out []candidate
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if known[i][j] {
				continue
			}
			okI := slb[i][j] <= cutoff[i]
			okJ := slb[i][j] <= cutoff[j]
			if !okI && !okJ {
				continue
			}
			th := math.Inf(1)
			if okI {
				th = math.Min(th, cutoff[i]-slb[i][j])
			}
			if okJ {
				th = math.Min(th, cutoff[j]-slb[i][j])
			}
			out = append(out, candidate{i, j, th})
		}
	}
	return out
}

// chooseEmitSet applies the budget/K1/K2 progressive-doubling rule to
// decide which candidates to dispatch this round. Returns done=true if the
// controller should terminate (no further computation needed).
func chooseEmitSet(candidates []candidate, model *errorModel, k, n int, alpha float64) ([]pairKey, bool) {
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].threshold < candidates[b].threshold })

	budget := float64(k) * float64(n) * (1 - alpha)

	cumulative := 0.0
	k1 := len(candidates)
	for idx, c := range candidates {
		cumulative += model.quantileOf(c.threshold)
		if cumulative > budget {
			k1 = idx
			break
		}
	}

	k2 := len(candidates)
	for idx, c := range candidates {
		if model.quantileOf(c.threshold) > 0.5 {
			k2 = idx
			break
		}
	}

	kStop := k1
	if k2 < kStop {
		kStop = k2
	}

	if kStop >= len(candidates) {
		return nil, true
	}

	start := (len(candidates) + kStop) / 2
	if start >= len(candidates) {
		start = len(candidates) - 1
	}

	maxBlock := 5 * n
	end := len(candidates)
	if end-start > maxBlock {
		end = start + maxBlock
	}

	emit := make([]pairKey, 0, end-start)
	for _, c := range candidates[start:end] {
		emit = append(emit, pairKey{c.i, c.j})
	}
	return emit, false
}
