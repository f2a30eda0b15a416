package gmodel

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/gosse/state"
)

// Rates holds all the per-state rates of a fully specified model,
// ready for likelihood computation.
type Rates struct {
	space *state.Space
	// s and x are speciation and extinction rates per composite
	// state; x is zero for the widespread states.
	s []float64
	x []float64
	// sTot is the total speciation rate per state; for a widespread
	// state with range inheritance it sums the three outcomes of
	// its class.
	sTot []float64
	// a is the anagenetic operator. Off-diagonal cells hold
	// transition rates, the diagonal accounts for leaving the state
	// by any event.
	a *mat64.Dense
	// clado enables widespread range inheritance at speciation.
	clado bool
}

// NewRates builds the rate tables from per-state speciation and
// extinction rates and the free transition-rate matrix. Unless the
// model carries separate extirpation parameters, range contraction of
// a widespread lineage reuses the extinction rate of the lost area.
func NewRates(sp *state.Space, s, x []float64, q *mat64.Dense, separateExtirpation, cladoEvents bool) (*Rates, error) {
	n := sp.NStates()
	if len(s) != n || len(x) != n {
		return nil, fmt.Errorf("expected %d speciation and extinction rates, got %d and %d",
			n, len(s), len(x))
	}
	rows, cols := q.Dims()
	if rows != n || cols != n {
		return nil, fmt.Errorf("transition matrix is %dx%d, expected %dx%d", rows, cols, n, n)
	}
	r := &Rates{
		space: sp,
		s:     append([]float64(nil), s...),
		x:     append([]float64(nil), x...),
		sTot:  make([]float64, n),
		a:     mat64.NewDense(n, n, nil),
		clado: cladoEvents,
	}
	for i := 0; i < n; i++ {
		if s[i] < 0 || x[i] < 0 {
			return nil, fmt.Errorf("negative rate for state %s", sp.StateName(i))
		}
		if sp.RangeOf(i) == state.RangeAB {
			r.x[i] = 0
			if cladoEvents {
				r.sTot[i] = s[i-2] + s[i-1] + s[i]
			} else {
				r.sTot[i] = s[i]
			}
		} else {
			r.sTot[i] = s[i]
		}
	}

	r.a.Copy(q)
	if !separateExtirpation {
		for k := 0; k < sp.NClasses(); k++ {
			ab := sp.Index(state.RangeAB, k)
			ia := sp.Index(state.RangeA, k)
			ib := sp.Index(state.RangeB, k)
			// Losing area B leaves an endemic A lineage and vice
			// versa.
			r.a.Set(ab, ia, r.a.At(ab, ia)+r.x[ib])
			r.a.Set(ab, ib, r.a.At(ab, ib)+r.x[ia])
		}
	}
	for i := 0; i < n; i++ {
		off := 0.0
		for j := 0; j < n; j++ {
			if j != i {
				off += r.a.At(i, j)
			}
		}
		r.a.Set(i, i, -off-r.sTot[i]-r.x[i])
	}
	return r, nil
}

// Combine merges the conditional likelihoods of two sister branches
// at their parent node. For a widespread parent the three possible
// range inheritance outcomes are averaged over the two assignments of
// the daughters.
func (r *Rates) Combine(dl, dr, dp []float64) {
	for i := range dp {
		if r.clado && r.space.RangeOf(i) == state.RangeAB {
			a := i - 2
			b := i - 1
			dp[i] = 0.5 * (r.s[a]*(dl[a]*dr[i]+dl[i]*dr[a]) +
				r.s[b]*(dl[b]*dr[i]+dl[i]*dr[b]) +
				r.s[i]*(dl[a]*dr[b]+dl[b]*dr[a]))
		} else {
			dp[i] = r.s[i] * dl[i] * dr[i]
		}
	}
}

// uppassTop turns state weights at a parent node into weights at the
// top of a child branch, using the sister branch conditional
// likelihoods dr. It is the transpose of the node combination with
// respect to the child.
func (r *Rates) uppassTop(gp, dr, h []float64) {
	for i := range h {
		h[i] = 0
	}
	for i, w := range gp {
		if w == 0 {
			continue
		}
		if r.clado && r.space.RangeOf(i) == state.RangeAB {
			a := i - 2
			b := i - 1
			h[a] += w * 0.5 * (r.s[a]*dr[i] + r.s[i]*dr[b])
			h[i] += w * 0.5 * (r.s[a]*dr[a] + r.s[b]*dr[b])
			h[b] += w * 0.5 * (r.s[b]*dr[i] + r.s[i]*dr[a])
		} else {
			h[i] += w * r.s[i] * dr[i]
		}
	}
}

// Generator returns the pure anagenetic generator: the off-diagonal
// rates of the operator with a diagonal making every row sum to zero.
func (r *Rates) Generator() *mat64.Dense {
	n := len(r.s)
	g := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			v := r.a.At(i, j)
			g.Set(i, j, v)
			sum += v
		}
		g.Set(i, i, -sum)
	}
	return g
}

// Equilibrium returns the stationary distribution of the anagenetic
// process: the left null vector of the generator.
func (r *Rates) Equilibrium() ([]float64, error) {
	n := len(r.s)
	g := r.Generator()
	gt := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			gt.Set(j, i, g.At(i, j))
		}
	}

	var eig mat64.Eigen
	if !eig.Factorize(gt, false, true) {
		return nil, fmt.Errorf("no stationary distribution for the anagenetic process")
	}
	// The stationary distribution is the eigenvector for the
	// eigenvalue closest to zero.
	values := eig.Values(nil)
	best := 0
	for i := 1; i < n; i++ {
		if cmplx.Abs(values[i]) < cmplx.Abs(values[best]) {
			best = i
		}
	}

	vectors := eig.Vectors()
	pi := make([]float64, n)
	sum := 0.0
	for i := 0; i < n; i++ {
		pi[i] = vectors.At(i, best)
		sum += pi[i]
	}
	if sum < 0 {
		for i := range pi {
			pi[i] = -pi[i]
		}
	}
	total := 0.0
	for i := range pi {
		if pi[i] < 0 {
			pi[i] = 0
		}
		total += pi[i]
	}
	if !(total > 0) || math.IsNaN(total) || math.IsInf(total, 0) {
		return nil, fmt.Errorf("no stationary distribution for the anagenetic process")
	}
	for i := range pi {
		pi[i] /= total
	}
	return pi, nil
}
