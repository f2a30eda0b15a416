// Package ode provides adaptive numerical integration of ordinary
// differential equation systems. The solver sits behind a small
// interface so the stepping scheme can be swapped without touching
// the callers.
package ode

import "errors"

// System is a first-order ODE system dy/dt = f(t, y).
type System interface {
	// Dim returns the dimension of the system.
	Dim() int
	// Derivatives evaluates f(t, y) into dy. The slices are
	// owned by the solver and must not be retained.
	Derivatives(t float64, y, dy []float64)
}

// Config holds the integration tolerances and limits.
type Config struct {
	// RelTol and AbsTol form the per-component error weight
	// AbsTol + RelTol*|y|.
	RelTol float64
	AbsTol float64
	// InitialStep is the first step size to try, as a fraction
	// of the integration interval.
	InitialStep float64
	// MinStep is the smallest allowed step, as a fraction of the
	// integration interval. Going below it means the system is
	// too stiff for the scheme and integration fails.
	MinStep float64
	// MaxSteps bounds the total number of attempted steps.
	MaxSteps int
}

// DefaultConfig is a conservative default suitable for the
// diversification ODE systems.
var DefaultConfig = Config{
	RelTol:      1e-8,
	AbsTol:      1e-10,
	InitialStep: 1e-2,
	MinStep:     1e-12,
	MaxSteps:    1e5,
}

// Integration failures. They are ordinary values: a likelihood
// caller translates them into a rejected parameter point, never into
// a crash.
var (
	// ErrStepUnderflow is returned when the error control pushes
	// the step below Config.MinStep.
	ErrStepUnderflow = errors.New("ode: step size underflow")
	// ErrMaxSteps is returned when the step budget is exhausted.
	ErrMaxSteps = errors.New("ode: maximum number of steps exceeded")
	// ErrNotFinite is returned when the state or the derivative
	// stops being finite.
	ErrNotFinite = errors.New("ode: non-finite value in solution")
)

// Solver integrates a system from t0 to t1 in place.
type Solver interface {
	// Integrate advances y from t0 to t1. On error y is
	// unspecified.
	Integrate(sys System, y []float64, t0, t1 float64) error
}
