package gmodel

import (
	"github.com/gonum/blas"
	"github.com/gonum/blas/blas64"

	"bitbucket.org/Davydov/gosse/state"
)

// downSystem is the coupled extinction/likelihood system integrated
// along a branch from the node towards its parent. The state vector
// is [E, D]: per-state extinction probabilities followed by the
// conditional likelihoods of the data below the branch.
type downSystem struct {
	r  *Rates
	ae []float64
	ad []float64
}

func newDownSystem(r *Rates) *downSystem {
	n := len(r.s)
	return &downSystem{
		r:  r,
		ae: make([]float64, n),
		ad: make([]float64, n),
	}
}

// Dim returns the dimension of the system.
func (sys *downSystem) Dim() int {
	return 2 * len(sys.r.s)
}

// Derivatives computes the time derivatives of E and D. The linear
// part goes through the anagenetic operator, the nonlinear terms come
// from speciation: an extinct or a sampled lineage on one side of the
// split, and for a widespread state the three range inheritance
// outcomes.
func (sys *downSystem) Derivatives(t float64, y, dy []float64) {
	r := sys.r
	n := len(r.s)
	e, d := y[:n], y[n:]
	de, dd := dy[:n], dy[n:]

	ra := r.a.RawMatrix()
	blas64.Gemv(blas.NoTrans, 1, ra,
		blas64.Vector{Inc: 1, Data: e}, 0, blas64.Vector{Inc: 1, Data: sys.ae})
	blas64.Gemv(blas.NoTrans, 1, ra,
		blas64.Vector{Inc: 1, Data: d}, 0, blas64.Vector{Inc: 1, Data: sys.ad})

	for i := 0; i < n; i++ {
		if r.clado && r.space.RangeOf(i) == state.RangeAB {
			a := i - 2
			b := i - 1
			de[i] = sys.ae[i] +
				r.s[a]*e[a]*e[i] + r.s[b]*e[b]*e[i] + r.s[i]*e[a]*e[b]
			dd[i] = sys.ad[i] +
				r.s[a]*(e[a]*d[i]+e[i]*d[a]) +
				r.s[b]*(e[b]*d[i]+e[i]*d[b]) +
				r.s[i]*(e[a]*d[b]+e[b]*d[a])
			continue
		}
		de[i] = r.x[i] + sys.ae[i] + r.s[i]*e[i]*e[i]
		dd[i] = sys.ad[i] + 2*r.s[i]*d[i]*e[i]
	}
}

// upSystem integrates the extinction probabilities together with the
// reconstruction weights G backwards along a branch, from the parent
// end down to the node. G follows the adjoint of the linearized
// likelihood flow, so its integration is exact for the nonlinear E
// coupling. The state vector is [E, G].
type upSystem struct {
	r  *Rates
	ae []float64
	ag []float64
}

func newUpSystem(r *Rates) *upSystem {
	n := len(r.s)
	return &upSystem{
		r:  r,
		ae: make([]float64, n),
		ag: make([]float64, n),
	}
}

// Dim returns the dimension of the system.
func (sys *upSystem) Dim() int {
	return 2 * len(sys.r.s)
}

// Derivatives computes the derivatives of E and G with respect to the
// distance from the node.
func (sys *upSystem) Derivatives(t float64, y, dy []float64) {
	r := sys.r
	n := len(r.s)
	e, g := y[:n], y[n:]
	de, dg := dy[:n], dy[n:]

	ra := r.a.RawMatrix()
	blas64.Gemv(blas.NoTrans, 1, ra,
		blas64.Vector{Inc: 1, Data: e}, 0, blas64.Vector{Inc: 1, Data: sys.ae})
	blas64.Gemv(blas.Trans, 1, ra,
		blas64.Vector{Inc: 1, Data: g}, 0, blas64.Vector{Inc: 1, Data: sys.ag})

	for i := 0; i < n; i++ {
		if r.clado && r.space.RangeOf(i) == state.RangeAB {
			a := i - 2
			b := i - 1
			de[i] = sys.ae[i] +
				r.s[a]*e[a]*e[i] + r.s[b]*e[b]*e[i] + r.s[i]*e[a]*e[b]
			sys.ag[i] += (r.s[a]*e[a] + r.s[b]*e[b]) * g[i]
			sys.ag[a] += (r.s[a]*e[i] + r.s[i]*e[b]) * g[i]
			sys.ag[b] += (r.s[b]*e[i] + r.s[i]*e[a]) * g[i]
			continue
		}
		de[i] = r.x[i] + sys.ae[i] + r.s[i]*e[i]*e[i]
		sys.ag[i] += 2 * r.s[i] * e[i] * g[i]
	}
	for i := 0; i < n; i++ {
		dg[i] = -sys.ag[i]
	}
}
