package ode

import (
	"math"
	"testing"
)

const smallDiff = 1e-6

// decay is dy/dt = -k*y with the exact solution y0*exp(-k*t).
type decay struct {
	k float64
}

func (d decay) Dim() int { return 1 }

func (d decay) Derivatives(t float64, y, dy []float64) {
	dy[0] = -d.k * y[0]
}

// logistic is dy/dt = r*y*(1-y) with a closed-form solution.
type logistic struct {
	r float64
}

func (l logistic) Dim() int { return 1 }

func (l logistic) Derivatives(t float64, y, dy []float64) {
	dy[0] = l.r * y[0] * (1 - y[0])
}

// rotation is a 2D harmonic oscillator.
type rotation struct{}

func (rotation) Dim() int { return 2 }

func (rotation) Derivatives(t float64, y, dy []float64) {
	dy[0] = -y[1]
	dy[1] = y[0]
}

// blowup produces NaN immediately.
type blowup struct{}

func (blowup) Dim() int { return 1 }

func (blowup) Derivatives(t float64, y, dy []float64) {
	dy[0] = math.NaN()
}

func TestDecay(tst *testing.T) {
	s := NewCashKarp(Config{})
	y := []float64{1}
	if err := s.Integrate(decay{k: 2}, y, 0, 3); err != nil {
		tst.Fatal("Integration failed:", err)
	}
	want := math.Exp(-6)
	if math.Abs(y[0]-want) > smallDiff {
		tst.Error("Expected", want, "got", y[0])
	}
}

func TestLogistic(tst *testing.T) {
	s := NewCashKarp(Config{})
	y := []float64{0.1}
	r, t := 1.5, 4.0
	if err := s.Integrate(logistic{r: r}, y, 0, t); err != nil {
		tst.Fatal("Integration failed:", err)
	}
	y0 := 0.1
	want := y0 * math.Exp(r*t) / (1 + y0*(math.Exp(r*t)-1))
	if math.Abs(y[0]-want) > smallDiff {
		tst.Error("Expected", want, "got", y[0])
	}
}

func TestRotation(tst *testing.T) {
	s := NewCashKarp(Config{})
	y := []float64{1, 0}
	if err := s.Integrate(rotation{}, y, 0, math.Pi); err != nil {
		tst.Fatal("Integration failed:", err)
	}
	if math.Abs(y[0]+1) > smallDiff || math.Abs(y[1]) > smallDiff {
		tst.Error("Expected (-1, 0), got", y)
	}
}

func TestZeroInterval(tst *testing.T) {
	s := NewCashKarp(Config{})
	y := []float64{0.42}
	if err := s.Integrate(decay{k: 1}, y, 1, 1); err != nil {
		tst.Fatal("Zero interval must be a no-op, got", err)
	}
	if y[0] != 0.42 {
		tst.Error("State changed on a zero interval")
	}
}

func TestNotFinite(tst *testing.T) {
	s := NewCashKarp(Config{})
	y := []float64{1}
	if err := s.Integrate(blowup{}, y, 0, 1); err != ErrNotFinite {
		tst.Error("Expected ErrNotFinite, got", err)
	}
}

func TestMaxSteps(tst *testing.T) {
	s := NewCashKarp(Config{MaxSteps: 3, InitialStep: 1e-6})
	y := []float64{1}
	if err := s.Integrate(decay{k: 1}, y, 0, 1); err != ErrMaxSteps {
		tst.Error("Expected ErrMaxSteps, got", err)
	}
}

func TestStepUnderflow(tst *testing.T) {
	// Extreme stiffness with a loose MinStep triggers underflow.
	s := NewCashKarp(Config{MinStep: 0.25, InitialStep: 1})
	y := []float64{1}
	err := s.Integrate(decay{k: 1e12}, y, 0, 1)
	if err != ErrStepUnderflow && err != ErrMaxSteps {
		tst.Error("Expected a failure for a stiff system, got", err)
	}
}

func TestReuse(tst *testing.T) {
	// A solver is reusable across systems of different sizes.
	s := NewCashKarp(Config{})
	y2 := []float64{1, 0}
	if err := s.Integrate(rotation{}, y2, 0, 1); err != nil {
		tst.Fatal(err)
	}
	y1 := []float64{1}
	if err := s.Integrate(decay{k: 1}, y1, 0, 1); err != nil {
		tst.Fatal(err)
	}
	if math.Abs(y1[0]-math.Exp(-1)) > smallDiff {
		tst.Error("Expected", math.Exp(-1), "got", y1[0])
	}
}
