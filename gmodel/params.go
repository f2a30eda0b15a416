// Package gmodel implements likelihood computation and marginal
// ancestral reconstruction for geographic state speciation and
// extinction models with hidden rate classes.
package gmodel

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"

	"bitbucket.org/Davydov/gosse/state"
)

// SpeciationExtinction converts turnover and extinction fraction
// parameters into speciation and extinction rates. For an endemic
// state s = tau/(1+eps) and x = tau*eps/(1+eps). For a widespread
// state turnover is the total speciation rate of its class, so
// s = tau - s(A) - s(B); zero widespread turnover is a shortcut for
// the mean of the two endemic speciation rates. Widespread extinction
// is always zero, a lineage first has to lose one of the areas.
func SpeciationExtinction(sp *state.Space, tau, eps []float64) (s, x []float64, err error) {
	n := sp.NStates()
	if len(tau) != n {
		return nil, nil, fmt.Errorf("expected %d turnover values, got %d", n, len(tau))
	}
	if len(eps) != n {
		return nil, nil, fmt.Errorf("expected %d extinction fraction values, got %d", n, len(eps))
	}
	s = make([]float64, n)
	x = make([]float64, n)
	for i := 0; i < n; i++ {
		if sp.RangeOf(i) == state.RangeAB {
			continue
		}
		if tau[i] < 0 || eps[i] < 0 {
			return nil, nil, fmt.Errorf("negative turnover or extinction fraction for state %s",
				sp.StateName(i))
		}
		s[i] = tau[i] / (1 + eps[i])
		x[i] = tau[i] * eps[i] / (1 + eps[i])
	}
	for i := 0; i < n; i++ {
		if sp.RangeOf(i) != state.RangeAB {
			continue
		}
		a := i - 2
		b := i - 1
		switch {
		case tau[i] < 0:
			return nil, nil, fmt.Errorf("negative turnover for state %s", sp.StateName(i))
		case tau[i] == 0:
			s[i] = (s[a] + s[b]) / 2
		default:
			s[i] = tau[i] - s[a] - s[b]
			if s[i] < 0 {
				return nil, nil, fmt.Errorf("turnover for state %s is below the endemic speciation rates",
					sp.StateName(i))
			}
		}
	}
	return s, x, nil
}

// TurnoverFromRates is the inverse mapping from speciation and
// extinction rates to turnover and extinction fraction.
func TurnoverFromRates(sp *state.Space, s, x []float64) (tau, eps []float64, err error) {
	n := sp.NStates()
	if len(s) != n || len(x) != n {
		return nil, nil, fmt.Errorf("expected %d speciation and extinction rates, got %d and %d",
			n, len(s), len(x))
	}
	tau = make([]float64, n)
	eps = make([]float64, n)
	for i := 0; i < n; i++ {
		if s[i] < 0 || x[i] < 0 {
			return nil, nil, fmt.Errorf("negative rate for state %s", sp.StateName(i))
		}
		if sp.RangeOf(i) == state.RangeAB {
			tau[i] = s[i-2] + s[i-1] + s[i]
			continue
		}
		tau[i] = s[i] + x[i]
		if s[i] == 0 {
			if x[i] != 0 {
				return nil, nil, fmt.Errorf("state %s has extinction without speciation",
					sp.StateName(i))
			}
			continue
		}
		eps[i] = x[i] / s[i]
	}
	return tau, eps, nil
}

// BuildQ assembles the dense anagenetic transition-rate matrix from a
// rate index and per-label rate values; values[l-1] is the rate for
// label l. The diagonal is left at zero.
func BuildQ(idx *state.RateIndex, values []float64) (*mat64.Dense, error) {
	if len(values) != idx.NLabels() {
		return nil, fmt.Errorf("rate index has %d labels, got %d rate values",
			idx.NLabels(), len(values))
	}
	for l, v := range values {
		if v < 0 || math.IsNaN(v) {
			return nil, fmt.Errorf("rate for label %d must be non-negative, got %v", l+1, v)
		}
	}
	n := idx.NStates()
	q := mat64.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if l := idx.At(i, j); l != 0 {
				q.Set(i, j, values[l-1])
			}
		}
	}
	return q, nil
}
