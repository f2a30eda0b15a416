// Package optimize provides likelihood maximization for models
// exposing a flat collection of float parameters.
package optimize

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gosse/checkpoint"
)

// log is the global logging variable.
var log = logging.MustGetLogger("optimize")

// Optimizable is a model with a likelihood and float parameters. The
// likelihood may return -Inf for an invalid parameter point; the
// optimizers treat it as a rejected point and keep searching.
type Optimizable interface {
	GetFloatParameters() FloatParameters
	Copy() Optimizable
	Likelihood() float64
}

// Optimizer is a likelihood maximizer.
type Optimizer interface {
	SetOptimizable(Optimizable)
	SetCheckpoint(*checkpoint.Store)
	WatchSignals(...os.Signal)
	SetReportPeriod(period int)
	Run(iterations int)
	GetMaxL() float64
	GetMaxLParameters() []float64
	GetNCalls() int
	PrintFinal()
}

// BaseOptimizer provides the common optimizer functionality.
type BaseOptimizer struct {
	Optimizable
	parameters FloatParameters
	i          int
	l          float64
	maxL       float64
	maxLPar    []float64
	calls      int
	repPeriod  int
	sig        chan os.Signal
	ckp        *checkpoint.Store
	Quiet      bool
}

// SetOptimizable sets the model to optimize.
func (o *BaseOptimizer) SetOptimizable(opt Optimizable) {
	o.Optimizable = opt
	o.parameters = opt.GetFloatParameters()
}

// SetCheckpoint enables periodic checkpoint saving.
func (o *BaseOptimizer) SetCheckpoint(ckp *checkpoint.Store) {
	o.ckp = ckp
}

// WatchSignals installs a signal watcher (e.g. for SIGINT).
func (o *BaseOptimizer) WatchSignals(sigs ...os.Signal) {
	o.sig = make(chan os.Signal, 1)
	signal.Notify(o.sig, sigs...)
}

// SetReportPeriod sets the reporting period in iterations.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// PrintHeader prints the report header.
func (o *BaseOptimizer) PrintHeader(parameters FloatParameters) {
	if !o.Quiet {
		fmt.Printf("iteration\tlikelihood\t%s\n", parameters.NamesString())
	}
}

// PrintLine prints one report line.
func (o *BaseOptimizer) PrintLine(parameters FloatParameters, l float64) {
	if !o.Quiet {
		fmt.Printf("%d\t%f\t%s\n", o.i, l, parameters.ValuesString())
	}
}

// PrintFinal logs the best parameter values.
func (o *BaseOptimizer) PrintFinal() {
	if !o.Quiet {
		for _, par := range o.parameters {
			log.Noticef("%s=%v", par.Name(), par.Get())
		}
	}
}

// GetMaxL returns the best likelihood found.
func (o *BaseOptimizer) GetMaxL() float64 {
	return o.maxL
}

// GetMaxLParameters returns parameter values for the best
// likelihood.
func (o *BaseOptimizer) GetMaxLParameters() []float64 {
	return o.maxLPar
}

// GetNCalls returns the number of likelihood calls.
func (o *BaseOptimizer) GetNCalls() int {
	return o.calls
}

// saveCheckpoint saves the current state if the checkpoint store is
// configured and enough time has passed (or the run is final).
func (o *BaseOptimizer) saveCheckpoint(final bool) {
	if o.ckp == nil {
		return
	}
	if !final && !o.ckp.Old() {
		return
	}
	err := o.ckp.Save(&checkpoint.Data{
		Parameters: o.parameters.ValuesMap(),
		Likelihood: o.maxL,
		Iter:       o.i,
		Final:      final,
	})
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
}

// restoreCheckpoint loads parameter values from the checkpoint store
// if one is present.
func (o *BaseOptimizer) restoreCheckpoint() {
	if o.ckp == nil {
		return
	}
	data, err := o.ckp.Load()
	if err != nil {
		log.Error("Error loading checkpoint:", err)
		return
	}
	if data == nil {
		return
	}
	o.parameters.SetFromMap(data.Parameters)
}
