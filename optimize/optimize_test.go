package optimize

import (
	"math"
	"testing"

	"github.com/op/go-logging"
)

func init() {
	logging.SetLevel(logging.WARNING, "optimize")
}

// parabola is a simple test model with a maximum at (1, -2).
type parabola struct {
	x, y       float64
	parameters FloatParameters
}

func newParabola() *parabola {
	p := &parabola{}
	p.setupParameters()
	return p
}

func (p *parabola) setupParameters() {
	p.parameters = nil
	for i, v := range []*float64{&p.x, &p.y} {
		par := NewBasicFloatParameter(v, string(rune('x'+i)))
		par.SetMin(-100)
		par.SetMax(100)
		p.parameters.Append(par)
	}
}

func (p *parabola) GetFloatParameters() FloatParameters {
	return p.parameters
}

func (p *parabola) Copy() Optimizable {
	newP := &parabola{x: p.x, y: p.y}
	newP.setupParameters()
	return newP
}

func (p *parabola) Likelihood() float64 {
	return -(p.x-1)*(p.x-1) - (p.y+2)*(p.y+2)
}

func TestParameters(tst *testing.T) {
	p := newParabola()
	pars := p.GetFloatParameters()
	if len(pars) != 2 {
		tst.Fatal("Expected 2 parameters")
	}
	if err := pars.SetValues([]float64{3, 4}); err != nil {
		tst.Fatal(err)
	}
	if p.x != 3 || p.y != 4 {
		tst.Error("SetValues did not update the model")
	}
	if pars.ValuesInRange([]float64{200, 0}) {
		tst.Error("Out-of-range value accepted")
	}
	if !pars.InRange() {
		tst.Error("In-range values rejected")
	}
	changed := false
	pars[0].SetOnChange(func() { changed = true })
	pars[0].Set(3)
	if changed {
		tst.Error("onChange called for an unchanged value")
	}
	pars[0].Set(5)
	if !changed {
		tst.Error("onChange not called")
	}
	pars.SetFromMap(map[string]float64{"y": 7})
	if p.y != 7 {
		tst.Error("SetFromMap did not update the parameter")
	}
}

func TestDS(tst *testing.T) {
	p := newParabola()
	ds := NewDS()
	ds.Quiet = true
	ds.SetOptimizable(p)
	ds.Run(1000)
	if math.Abs(ds.GetMaxL()) > 1e-4 {
		tst.Error("Expected maximum near 0, got", ds.GetMaxL())
	}
	v := ds.GetMaxLParameters()
	if math.Abs(v[0]-1) > 1e-2 || math.Abs(v[1]+2) > 1e-2 {
		tst.Error("Expected maximum near (1, -2), got", v)
	}
	// The original model receives the best parameter values.
	if math.Abs(p.x-1) > 1e-2 || math.Abs(p.y+2) > 1e-2 {
		tst.Error("Model not set to the maximum, got", p.x, p.y)
	}
}

// cliff is -Inf for x < 0; optimizers must survive invalid regions.
type cliff struct {
	parabola
}

func newCliff() *cliff {
	c := &cliff{}
	c.setupParameters()
	return c
}

func (c *cliff) Copy() Optimizable {
	newC := &cliff{}
	newC.x = c.x
	newC.y = c.y
	newC.setupParameters()
	return newC
}

func (c *cliff) Likelihood() float64 {
	if c.x < 0 {
		return math.Inf(-1)
	}
	return c.parabola.Likelihood()
}

func TestDSInvalidRegion(tst *testing.T) {
	c := newCliff()
	c.x = 2
	c.y = 2
	ds := NewDS()
	ds.Quiet = true
	ds.SetOptimizable(c)
	ds.Run(1000)
	if math.IsInf(ds.GetMaxL(), -1) {
		tst.Error("Optimizer did not recover from the invalid region")
	}
	if math.Abs(ds.GetMaxL()) > 1e-3 {
		tst.Error("Expected maximum near 0, got", ds.GetMaxL())
	}
}

func TestNone(tst *testing.T) {
	p := newParabola()
	n := NewNone()
	n.Quiet = true
	n.SetOptimizable(p)
	n.Run(1)
	if n.GetMaxL() != p.Likelihood() {
		tst.Error("None must report the initial likelihood")
	}
	if n.GetNCalls() != 1 {
		tst.Error("Expected a single likelihood call")
	}
}
