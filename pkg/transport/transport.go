// Package transport solves the linear optimal-transport subproblems that
// the GW kernel and the qGW engine need: an exact transportation-simplex
// solver for general cost matrices, used for the per-iteration linear OT
// subproblem, and the north-west-corner rule for the comonotone 1D case
// the qGW in-block refinement relies on.
package transport

import "math"

// Entry is one nonzero cell of a sparse transport plan.
type Entry struct {
	I, J int
	Mass float64
}

const defaultTolerance = 1e-10

// Options configures the transportation-simplex solver.
type Options struct {
	// MaxIter caps the number of pivots. Zero selects a default scaled to
	// problem size. Hitting the cap is not an error: the last basic
	// feasible solution found is returned.
	MaxIter int
	// Tolerance below which a reduced cost is treated as nonnegative.
	Tolerance float64
}

func (o Options) tolerance() float64 {
	if o.Tolerance > 0 {
		return o.Tolerance
	}
	return defaultTolerance
}

// Solve finds a transport plan minimizing sum(cost[i][j]*plan[i][j]) subject
// to row sums = supply and column sums = demand, via the transportation
// simplex method: a north-west-corner initial basic feasible solution,
// refined by MODI-potential stepping-stone pivots until no negative reduced
// cost remains or MaxIter is hit.
//
// supply and demand must be nonnegative and have (approximately) equal
// total mass; callers in this module always pass probability vectors, so
// this holds by construction.
func Solve(cost [][]float64, supply, demand []float64, opts Options) []Entry {
	m, n := len(supply), len(demand)
	if m == 0 || n == 0 {
		return nil
	}
	maxIter := opts.MaxIter
	if maxIter <= 0 {
		maxIter = 50 + 20*(m+n)
	}
	tol := opts.tolerance()

	basis := initialBasisNorthWestCorner(supply, demand)

	for iter := 0; iter < maxIter; iter++ {
		u, v, ok := potentials(basis, cost, m, n)
		if !ok {
			// disconnected basis tree (can occur after a degenerate pivot
			// leaves the basis short); patch with a zero-mass basic cell
			// to keep the tree spanning and retry potentials next loop.
			patchDisconnectedBasis(&basis, m, n)
			continue
		}

		ei, ej, reduced := mostNegativeReducedCost(cost, u, v, basis, m, n, tol)
		if reduced >= -tol {
			break
		}

		cycle, ok := findCycle(basis, ei, ej, m, n)
		if !ok {
			break
		}
		applyPivot(&basis, cycle)
	}

	return toEntries(basis)
}

type cell struct {
	i, j  int
	value float64
}

func initialBasisNorthWestCorner(supply, demand []float64) []cell {
	m, n := len(supply), len(demand)
	ra := append([]float64(nil), supply...)
	rb := append([]float64(nil), demand...)

	basis := make([]cell, 0, m+n-1)
	i, j := 0, 0
	for i < m && j < n {
		val := math.Min(ra[i], rb[j])
		basis = append(basis, cell{i, j, val})
		ra[i] -= val
		rb[j] -= val
		switch {
		case i == m-1 && j == n-1:
			i++
		case ra[i] <= 1e-15 && i < m-1:
			i++
		default:
			j++
		}
	}
	return basis
}

// potentials computes row potentials u and column potentials v such that
// u[i]+v[j] == cost[i][j] for every basic cell, by propagating outward from
// u[0]=0 over the basis tree. Returns ok=false if the basis does not span
// all rows and columns (disconnected tree).
func potentials(basis []cell, cost [][]float64, m, n int) (u, v []float64, ok bool) {
	u = make([]float64, m)
	v = make([]float64, n)
	uSet := make([]bool, m)
	vSet := make([]bool, n)

	if m == 0 {
		return u, v, true
	}
	u[0] = 0
	uSet[0] = true
	changed := true
	for changed {
		changed = false
		for _, c := range basis {
			if uSet[c.i] && !vSet[c.j] {
				v[c.j] = cost[c.i][c.j] - u[c.i]
				vSet[c.j] = true
				changed = true
			} else if vSet[c.j] && !uSet[c.i] {
				u[c.i] = cost[c.i][c.j] - v[c.j]
				uSet[c.i] = true
				changed = true
			}
		}
	}
	for i := range uSet {
		if !uSet[i] {
			return u, v, false
		}
	}
	for j := range vSet {
		if !vSet[j] {
			return u, v, false
		}
	}
	return u, v, true
}

func mostNegativeReducedCost(cost [][]float64, u, v []float64, basis []cell, m, n int, tol float64) (ei, ej int, best float64) {
	isBasic := make(map[[2]int]bool, len(basis))
	for _, c := range basis {
		isBasic[[2]int{c.i, c.j}] = true
	}
	best = 0
	ei, ej = -1, -1
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if isBasic[[2]int{i, j}] {
				continue
			}
			rc := cost[i][j] - u[i] - v[j]
			if rc < best {
				best = rc
				ei, ej = i, j
			}
		}
	}
	if ei == -1 || best >= -tol {
		return -1, -1, 0
	}
	return ei, ej, best
}

// cycleStep is one (i,j,sign) entry in the pivot cycle: sign +1 means mass
// increases there, -1 means it decreases.
type cycleStep struct {
	basisIdx int // index into basis, or -1 for the entering cell
	i, j     int
	sign     float64
}

// findCycle locates the unique cycle formed by adding the entering cell
// (ei,ej) to the basis tree, via a DFS over the tree that alternates
// row/column moves, and returns it as an alternating +/- sequence starting
// with the entering cell at +1.
func findCycle(basis []cell, ei, ej, m, n int) ([]cycleStep, bool) {
	rowCells := make(map[int][]int, m)
	colCells := make(map[int][]int, n)
	for idx, c := range basis {
		rowCells[c.i] = append(rowCells[c.i], idx)
		colCells[c.j] = append(colCells[c.j], idx)
	}

	type node struct {
		isRow bool
		idx   int
	}
	start := node{true, ei}
	target := node{false, ej}

	type parentInfo struct {
		parent   node
		basisIdx int
		valid    bool
	}
	visited := map[node]parentInfo{start: {valid: true}}
	queue := []node{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			break
		}
		if cur.isRow {
			for _, bidx := range rowCells[cur.idx] {
				c := basis[bidx]
				nxt := node{false, c.j}
				if _, ok := visited[nxt]; !ok {
					visited[nxt] = parentInfo{parent: cur, basisIdx: bidx, valid: true}
					queue = append(queue, nxt)
				}
			}
		} else {
			for _, bidx := range colCells[cur.idx] {
				c := basis[bidx]
				nxt := node{true, c.i}
				if _, ok := visited[nxt]; !ok {
					visited[nxt] = parentInfo{parent: cur, basisIdx: bidx, valid: true}
					queue = append(queue, nxt)
				}
			}
		}
	}

	if _, ok := visited[target]; !ok {
		return nil, false
	}

	var path []parentInfo
	cur := target
	for cur != start {
		pi := visited[cur]
		path = append(path, pi)
		cur = pi.parent
	}

	// path is ordered target -> ... -> start; reverse to start -> ... -> target
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}

	steps := make([]cycleStep, 0, len(path)+1)
	steps = append(steps, cycleStep{basisIdx: -1, i: ei, j: ej, sign: 1})
	sign := -1.0
	for _, pi := range path {
		c := basis[pi.basisIdx]
		steps = append(steps, cycleStep{basisIdx: pi.basisIdx, i: c.i, j: c.j, sign: sign})
		sign = -sign
	}
	return steps, true
}

// applyPivot shifts mass theta (the smallest value among minus-cells) around
// the cycle, swapping the entering cell into the basis and the first
// zeroed-out minus-cell out.
func applyPivot(basis *[]cell, cycle []cycleStep) {
	theta := math.Inf(1)
	leavingIdx := -1
	for _, s := range cycle {
		if s.sign < 0 {
			v := (*basis)[s.basisIdx].value
			if v < theta {
				theta = v
				leavingIdx = s.basisIdx
			}
		}
	}
	if math.IsInf(theta, 1) {
		theta = 0
	}

	for _, s := range cycle {
		if s.basisIdx == -1 {
			continue
		}
		(*basis)[s.basisIdx].value += s.sign * theta
	}

	entering := cycle[0]
	if leavingIdx >= 0 {
		(*basis)[leavingIdx] = cell{entering.i, entering.j, theta}
	} else {
		*basis = append(*basis, cell{entering.i, entering.j, theta})
	}
}

// patchDisconnectedBasis adds a zero-mass basic cell connecting an
// unvisited row to an unvisited column, restoring a spanning tree. This is
// a standard degeneracy-handling fallback for the transportation simplex;
// it never changes the represented plan since the added cell carries zero
// mass.
func patchDisconnectedBasis(basis *[]cell, m, n int) {
	rowSeen := make([]bool, m)
	colSeen := make([]bool, n)
	for _, c := range *basis {
		rowSeen[c.i] = true
		colSeen[c.j] = true
	}
	for i := 0; i < m; i++ {
		if !rowSeen[i] {
			for j := 0; j < n; j++ {
				if !colSeen[j] {
					*basis = append(*basis, cell{i, j, 0})
					return
				}
			}
			*basis = append(*basis, cell{i, 0, 0})
			return
		}
	}
	for j := 0; j < n; j++ {
		if !colSeen[j] {
			*basis = append(*basis, cell{0, j, 0})
			return
		}
	}
}

func toEntries(basis []cell) []Entry {
	out := make([]Entry, 0, len(basis))
	for _, c := range basis {
		if c.value > 1e-15 {
			out = append(out, Entry{c.i, c.j, c.value})
		}
	}
	return out
}
