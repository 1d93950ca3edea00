// Package gw computes the Gromov-Wasserstein transport plan and distance
// between two small metric-measure spaces, via an entropy-free
// conditional-gradient (mirror-descent) solver over the quadratic GW
// objective.
package gw

import (
	"math"

	"github.com/cajal-go/shapedist/pkg/transport"
)

// Options configures the GW solver.
type Options struct {
	// MaxIter caps conditional-gradient iterations. Zero selects a
	// default.
	MaxIter int
	// Tolerance is the relative-objective-change stopping threshold.
	// Zero selects a default.
	Tolerance float64
}

func (o Options) maxIter() int {
	if o.MaxIter > 0 {
		return o.MaxIter
	}
	return 100
}

func (o Options) tolerance() float64 {
	if o.Tolerance > 0 {
		return o.Tolerance
	}
	return 1e-9
}

// Result is the output of the GW kernel: the transport plan (dense, since
// the kernel only ever runs on small spaces) and the GW distance.
type Result struct {
	Plan [][]float64
	GW   float64
}

// Solve computes an optimal transport plan between (A, mu) and (B, nu) under
// the quadratic GW loss
//
//	<(A⊙A)mu,mu> + <(B⊙B)nu,nu> - 2*<A P B^T, P>
//
// minimized over couplings P with row sums mu and column sums nu, via
// conditional gradient: at each iteration, linearize around the current
// plan, solve the induced linear OT problem exactly (pkg/transport), line
// search along the descent direction, and stop on small relative objective
// change or MaxIter. initialPlan, if non-nil, warm-starts the iteration
// (used by the qGW engine's coarse plan with an initial-cost variant).
func Solve(A, B [][]float64, mu, nu []float64, initialPlan [][]float64, opts Options) Result {
	m, n := len(mu), len(nu)
	cA := quadraticForm(A, mu)
	cB := quadraticForm(B, nu)

	P := initialPlan
	if P == nil {
		P = transport.NorthWestCornerDense(mu, nu)
	}

	prevObj := gwObjective(A, B, P, cA, cB)
	for iter := 0; iter < opts.maxIter(); iter++ {
		cost := linearizedCost(A, B, P)
		entries := transport.Solve(cost, mu, nu, transport.Options{})
		Q := denseFromEntries(entries, m, n)

		Pnext, obj := lineSearch(A, B, P, Q, cA, cB, prevObj)
		P = Pnext

		if prevObj > 0 {
			relChange := math.Abs(prevObj-obj) / prevObj
			if relChange < opts.tolerance() {
				prevObj = obj
				break
			}
		}
		prevObj = obj
	}

	gwDist := math.Sqrt(math.Max(0, prevObj)) / 2.0
	return Result{Plan: P, GW: gwDist}
}

// quadraticForm computes <(M⊙M)w, w>.
func quadraticForm(M [][]float64, w []float64) float64 {
	total := 0.0
	for i, row := range M {
		for j, v := range row {
			total += v * v * w[i] * w[j]
		}
	}
	return total
}

// linearizedCost computes C = -2*A*P*B^T, the gradient direction of the
// quadratic term (the constant c_A+c_B cancels when choosing the descent
// direction).
func linearizedCost(A, B, P [][]float64) [][]float64 {
	m := len(A)
	n := len(B)
	// AP[i][k] = sum_j A[i][j]*P[j][k], shape (m, n_B rows of P = len(mu_B))
	nb := len(P[0])
	AP := make([][]float64, m)
	for i := 0; i < m; i++ {
		AP[i] = make([]float64, nb)
		for k := 0; k < nb; k++ {
			sum := 0.0
			for j := 0; j < len(P); j++ {
				sum += A[i][j] * P[j][k]
			}
			AP[i][k] = sum
		}
	}
	cost := make([][]float64, m)
	for i := 0; i < m; i++ {
		cost[i] = make([]float64, n)
		for l := 0; l < n; l++ {
			sum := 0.0
			for k := 0; k < nb; k++ {
				sum += AP[i][k] * B[l][k]
			}
			cost[i][l] = -2 * sum
		}
	}
	return cost
}

// gwObjective evaluates c_A + c_B - 2*<A P B^T, P> (the quantity whose
// sqrt/2 is the GW distance).
func gwObjective(A, B, P [][]float64, cA, cB float64) float64 {
	cross := frobeniusCross(A, B, P)
	return cA + cB - 2*cross
}

// frobeniusCross computes <A P B^T, P> = sum_{i,j,k,l} A[i][j] P[j][k] B[k][l] P[i][l].
func frobeniusCross(A, B, P [][]float64) float64 {
	m := len(P)
	n := len(P[0])
	// First compute AP[i][k] = sum_j A[i][j] P[j][k]
	AP := make([][]float64, m)
	for i := 0; i < m; i++ {
		AP[i] = make([]float64, n)
		for k := 0; k < n; k++ {
			sum := 0.0
			for j := 0; j < m; j++ {
				sum += A[i][j] * P[j][k]
			}
			AP[i][k] = sum
		}
	}
	// Then APB[i][l] = sum_k AP[i][k] B[k][l]
	total := 0.0
	for i := 0; i < m; i++ {
		for l := 0; l < n; l++ {
			sum := 0.0
			for k := 0; k < n; k++ {
				sum += AP[i][k] * B[k][l]
			}
			total += sum * P[i][l]
		}
	}
	return total
}

// lineSearch chooses the step size gamma in [0,1] along P + gamma*(Q-P) that
// minimizes the quadratic GW objective; for this quadratic objective the
// optimal gamma has a closed form, clamped to [0,1].
func lineSearch(A, B [][]float64, P, Q [][]float64, cA, cB, currentObj float64) ([][]float64, float64) {
	m := len(P)
	n := len(P[0])

	diff := make([][]float64, m)
	for i := range diff {
		diff[i] = make([]float64, n)
		for j := range diff[i] {
			diff[i][j] = Q[i][j] - P[i][j]
		}
	}

	// objective(gamma) = cA + cB - 2*<A (P+g*diff) B^T, P+g*diff>
	// = currentObj - 2*g*(cross(P,diff)+cross(diff,P)) - 2*g^2*cross(diff,diff)
	linTerm := -2 * (bilinear(A, B, P, diff) + bilinear(A, B, diff, P))
	quadTerm := -2 * bilinear(A, B, diff, diff)

	gamma := 1.0
	switch {
	case quadTerm > 0:
		g := -linTerm / (2 * quadTerm)
		if g < 0 {
			g = 0
		} else if g > 1 {
			g = 1
		}
		gamma = g
	case quadTerm == 0:
		if linTerm >= 0 {
			gamma = 0
		} else {
			gamma = 1
		}
	}

	Pnext := make([][]float64, m)
	for i := range Pnext {
		Pnext[i] = make([]float64, n)
		for j := range Pnext[i] {
			Pnext[i][j] = P[i][j] + gamma*diff[i][j]
		}
	}
	obj := gwObjective(A, B, Pnext, cA, cB)
	if obj > currentObj {
		// Numerical slip in the closed-form step; fall back to no move.
		return P, currentObj
	}
	return Pnext, obj
}

// bilinear computes <A X B^T, Y> = sum A[i][j] X[j][k] B[k][l] Y[i][l].
func bilinear(A, B, X, Y [][]float64) float64 {
	m := len(Y)
	n := len(Y[0])
	nb := len(X[0])
	AX := make([][]float64, m)
	for i := 0; i < m; i++ {
		AX[i] = make([]float64, nb)
		for k := 0; k < nb; k++ {
			sum := 0.0
			for j := 0; j < len(X); j++ {
				sum += A[i][j] * X[j][k]
			}
			AX[i][k] = sum
		}
	}
	total := 0.0
	for i := 0; i < m; i++ {
		for l := 0; l < n; l++ {
			sum := 0.0
			for k := 0; k < nb; k++ {
				sum += AX[i][k] * B[k][l]
			}
			total += sum * Y[i][l]
		}
	}
	return total
}

func denseFromEntries(entries []transport.Entry, m, n int) [][]float64 {
	out := make([][]float64, m)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for _, e := range entries {
		out[e.I][e.J] = e.Mass
	}
	return out
}
