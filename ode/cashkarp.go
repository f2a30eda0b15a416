package ode

import "math"

// Cash-Karp embedded Runge-Kutta coefficients (orders 5 and 4).
const (
	b21 = 1.0 / 5.0

	b31 = 3.0 / 40.0
	b32 = 9.0 / 40.0

	b41 = 3.0 / 10.0
	b42 = -9.0 / 10.0
	b43 = 6.0 / 5.0

	b51 = -11.0 / 54.0
	b52 = 5.0 / 2.0
	b53 = -70.0 / 27.0
	b54 = 35.0 / 27.0

	b61 = 1631.0 / 55296.0
	b62 = 175.0 / 512.0
	b63 = 575.0 / 13824.0
	b64 = 44275.0 / 110592.0
	b65 = 253.0 / 4096.0

	c1 = 37.0 / 378.0
	c3 = 250.0 / 621.0
	c4 = 125.0 / 594.0
	c6 = 512.0 / 1771.0

	dc1 = c1 - 2825.0/27648.0
	dc3 = c3 - 18575.0/48384.0
	dc4 = c4 - 13525.0/55296.0
	dc5 = -277.0 / 14336.0
	dc6 = c6 - 1.0/4.0
)

const (
	safety    = 0.9
	growLimit = 5
	// Exponents for step adjustment after an accepted or a
	// rejected step.
	expGrow   = -0.2
	expShrink = -0.25
)

// CashKarp is an adaptive fifth-order Runge-Kutta solver with an
// embedded fourth-order error estimate. A solver instance owns its
// workspace, so each worker goroutine needs its own.
type CashKarp struct {
	cfg Config

	k1, k2, k3, k4, k5, k6 []float64
	ytmp                   []float64
}

// NewCashKarp creates a solver with the given configuration. Zero
// fields are replaced with the defaults.
func NewCashKarp(cfg Config) *CashKarp {
	if cfg.RelTol == 0 {
		cfg.RelTol = DefaultConfig.RelTol
	}
	if cfg.AbsTol == 0 {
		cfg.AbsTol = DefaultConfig.AbsTol
	}
	if cfg.InitialStep == 0 {
		cfg.InitialStep = DefaultConfig.InitialStep
	}
	if cfg.MinStep == 0 {
		cfg.MinStep = DefaultConfig.MinStep
	}
	if cfg.MaxSteps == 0 {
		cfg.MaxSteps = DefaultConfig.MaxSteps
	}
	return &CashKarp{cfg: cfg}
}

func (s *CashKarp) resize(n int) {
	if len(s.k1) >= n {
		return
	}
	s.k1 = make([]float64, n)
	s.k2 = make([]float64, n)
	s.k3 = make([]float64, n)
	s.k4 = make([]float64, n)
	s.k5 = make([]float64, n)
	s.k6 = make([]float64, n)
	s.ytmp = make([]float64, n)
}

// Integrate advances y from t0 to t1 with adaptive step control.
func (s *CashKarp) Integrate(sys System, y []float64, t0, t1 float64) error {
	span := t1 - t0
	if span == 0 {
		return nil
	}
	n := sys.Dim()
	s.resize(n)

	h := span * s.cfg.InitialStep
	hmin := math.Abs(span) * s.cfg.MinStep
	t := t0

	for step := 0; step < s.cfg.MaxSteps; step++ {
		if (span > 0 && t >= t1) || (span < 0 && t <= t1) {
			return nil
		}
		// Do not step past the end point.
		if (span > 0 && t+h > t1) || (span < 0 && t+h < t1) {
			h = t1 - t
		}

		errNorm, ok := s.step(sys, y, t, h, n)
		if !ok {
			return ErrNotFinite
		}
		if errNorm <= 1 {
			t += h
			copy(y[:n], s.ytmp[:n])
			// Grow the step for the next round.
			factor := float64(growLimit)
			if errNorm > 0 {
				factor = math.Min(growLimit, safety*math.Pow(errNorm, expGrow))
			}
			h *= factor
		} else {
			h *= math.Max(0.1, safety*math.Pow(errNorm, expShrink))
			if math.Abs(h) < hmin {
				return ErrStepUnderflow
			}
		}
	}
	return ErrMaxSteps
}

// step attempts a single Cash-Karp step of size h from t, leaving
// the candidate state in s.ytmp and returning the scaled error norm.
func (s *CashKarp) step(sys System, y []float64, t, h float64, n int) (float64, bool) {
	sys.Derivatives(t, y, s.k1)
	for i := 0; i < n; i++ {
		s.ytmp[i] = y[i] + h*b21*s.k1[i]
	}
	sys.Derivatives(t+h/5, s.ytmp, s.k2)
	for i := 0; i < n; i++ {
		s.ytmp[i] = y[i] + h*(b31*s.k1[i]+b32*s.k2[i])
	}
	sys.Derivatives(t+3*h/10, s.ytmp, s.k3)
	for i := 0; i < n; i++ {
		s.ytmp[i] = y[i] + h*(b41*s.k1[i]+b42*s.k2[i]+b43*s.k3[i])
	}
	sys.Derivatives(t+3*h/5, s.ytmp, s.k4)
	for i := 0; i < n; i++ {
		s.ytmp[i] = y[i] + h*(b51*s.k1[i]+b52*s.k2[i]+b53*s.k3[i]+b54*s.k4[i])
	}
	sys.Derivatives(t+h, s.ytmp, s.k5)
	for i := 0; i < n; i++ {
		s.ytmp[i] = y[i] + h*(b61*s.k1[i]+b62*s.k2[i]+b63*s.k3[i]+b64*s.k4[i]+b65*s.k5[i])
	}
	sys.Derivatives(t+7*h/8, s.ytmp, s.k6)

	errNorm := 0.0
	for i := 0; i < n; i++ {
		yi := y[i] + h*(c1*s.k1[i]+c3*s.k3[i]+c4*s.k4[i]+c6*s.k6[i])
		erri := h * (dc1*s.k1[i] + dc3*s.k3[i] + dc4*s.k4[i] + dc5*s.k5[i] + dc6*s.k6[i])
		s.ytmp[i] = yi
		if math.IsNaN(yi) || math.IsInf(yi, 0) {
			return 0, false
		}
		scale := s.cfg.AbsTol + s.cfg.RelTol*math.Max(math.Abs(y[i]), math.Abs(yi))
		e := math.Abs(erri) / scale
		if e > errNorm {
			errNorm = e
		}
	}
	return errNorm, true
}
