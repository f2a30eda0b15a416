package gmodel

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/op/go-logging"

	"bitbucket.org/Davydov/gosse/ode"
	"bitbucket.org/Davydov/gosse/optimize"
	"bitbucket.org/Davydov/gosse/state"
	"bitbucket.org/Davydov/gosse/tree"
)

// log is the global logging variable.
var log = logging.MustGetLogger("gmodel")

// RootPolicy selects the weighting of the composite states at the
// root.
type RootPolicy int

// Root weighting policies.
const (
	// RootUniform weights all the states equally.
	RootUniform RootPolicy = iota
	// RootEquilibrium uses the stationary distribution of the
	// anagenetic process.
	RootEquilibrium
	// RootObserved weights every state by its share of the root
	// conditional likelihood.
	RootObserved
	// RootGiven uses user-supplied weights.
	RootGiven
)

// RootPolicyFromString parses a root policy name.
func RootPolicyFromString(s string) (RootPolicy, error) {
	switch s {
	case "uniform":
		return RootUniform, nil
	case "equilibrium":
		return RootEquilibrium, nil
	case "observed":
		return RootObserved, nil
	case "given":
		return RootGiven, nil
	}
	return RootUniform, fmt.Errorf("unknown root policy: %s", s)
}

// String returns the policy name.
func (p RootPolicy) String() string {
	switch p {
	case RootUniform:
		return "uniform"
	case RootEquilibrium:
		return "equilibrium"
	case RootObserved:
		return "observed"
	case RootGiven:
		return "given"
	}
	return "?"
}

// Config holds the model settings which are not free parameters.
type Config struct {
	// Workers is the number of parallel workers for the pruning
	// pass; zero means one worker per CPU.
	Workers int
	// Solver configures the branch integrator; zero fields use the
	// defaults.
	Solver ode.Config
	// Root selects the root state weighting.
	Root RootPolicy
	// RootWeights are the state weights for the RootGiven policy.
	RootWeights []float64
	// ConditionOnSurvival conditions the likelihood on both root
	// lineages surviving to the present.
	ConditionOnSurvival bool
	// CladoEvents enables range inheritance at widespread
	// speciation; without it every daughter inherits the full
	// parental range.
	CladoEvents bool
	// Sampling holds per-range sampling fractions; the zero value
	// means complete sampling.
	Sampling state.Sampling
}

// DefaultConfig returns the default model settings.
func DefaultConfig() Config {
	return Config{
		Solver:      ode.DefaultConfig,
		Root:        RootObserved,
		CladoEvents: true,
		Sampling:    state.FullSampling,
	}
}

// Model is a diversification model over a phylogenetic tree: tip
// range observations, a composite state space with transition-rate
// structure, and per-state turnover parameters. It implements
// optimize.Optimizable.
type Model struct {
	t     *tree.Tree
	index *state.RateIndex
	obs   []state.Observation
	cfg   Config

	// Free parameters: transition rates per label, turnover and
	// extinction fraction per state. Extinction fractions of the
	// widespread states are fixed at zero.
	qRates []float64
	tau    []float64
	eps    []float64

	parameters optimize.FloatParameters
	expired    bool
	rates      *Rates

	// Tip vectors by leaf id.
	tipD [][]float64
	tipE [][]float64

	// Pruning state by node id. dNode holds the rescaled
	// conditional likelihoods at the node, eTop/dTop the values at
	// the parent end of the branch, logScale the accumulated
	// rescaling.
	dNode    [][]float64
	eTop     [][]float64
	dTop     [][]float64
	logScale []float64

	dRoot []float64
	eRoot []float64
	rootW []float64

	rootGiven []float64
	negTol    float64
}

// NewModel creates a model. Every tip of the tree must have exactly
// one observation and vice versa.
func NewModel(t *tree.Tree, index *state.RateIndex, observations []state.Observation, cfg Config) (*Model, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sampling == (state.Sampling{}) {
		cfg.Sampling = state.FullSampling
	}
	if err := cfg.Sampling.Validate(); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	def := ode.DefaultConfig
	if cfg.Solver.RelTol == 0 {
		cfg.Solver.RelTol = def.RelTol
	}
	if cfg.Solver.AbsTol == 0 {
		cfg.Solver.AbsTol = def.AbsTol
	}

	n := index.NStates()
	m := &Model{
		t:      t,
		index:  index,
		obs:    observations,
		cfg:    cfg,
		qRates: make([]float64, index.NLabels()),
		tau:    make([]float64, n),
		eps:    make([]float64, n),
		negTol: cfg.Solver.AbsTol,
	}

	if cfg.Root == RootGiven {
		if len(cfg.RootWeights) != n {
			return nil, fmt.Errorf("expected %d root weights, got %d", n, len(cfg.RootWeights))
		}
		sum := 0.0
		for _, w := range cfg.RootWeights {
			if w < 0 {
				return nil, fmt.Errorf("negative root weight %v", w)
			}
			sum += w
		}
		if !(sum > 0) {
			return nil, fmt.Errorf("root weights sum to zero")
		}
		m.rootGiven = make([]float64, n)
		for i, w := range cfg.RootWeights {
			m.rootGiven[i] = w / sum
		}
	}

	byName := make(map[string]state.Observation, len(observations))
	for _, o := range observations {
		if _, ok := byName[o.Name]; ok {
			return nil, fmt.Errorf("duplicate observation for tip %s", o.Name)
		}
		byName[o.Name] = o
	}
	nLeaves := 0
	maxLeafId := 0
	for node := range t.Terminals() {
		nLeaves++
		if node.LeafId > maxLeafId {
			maxLeafId = node.LeafId
		}
	}
	if len(observations) != nLeaves {
		return nil, fmt.Errorf("tree has %d tips, got %d observations", nLeaves, len(observations))
	}
	m.tipD = make([][]float64, maxLeafId+1)
	m.tipE = make([][]float64, maxLeafId+1)
	for node := range t.Terminals() {
		o, ok := byName[node.Name]
		if !ok {
			return nil, fmt.Errorf("no observation for tip %s", node.Name)
		}
		d0, e0, err := index.Space.TipVectors(o.Ranges, cfg.Sampling)
		if err != nil {
			return nil, fmt.Errorf("tip %s: %v", node.Name, err)
		}
		m.tipD[node.LeafId] = d0
		m.tipE[node.LeafId] = e0
	}

	nNodes := t.MaxNodeId() + 1
	m.dNode = make([][]float64, nNodes)
	m.eTop = make([][]float64, nNodes)
	m.dTop = make([][]float64, nNodes)
	m.logScale = make([]float64, nNodes)
	for i := 0; i < nNodes; i++ {
		m.dNode[i] = make([]float64, n)
		m.eTop[i] = make([]float64, n)
		m.dTop[i] = make([]float64, n)
	}
	m.dRoot = make([]float64, n)
	m.eRoot = make([]float64, n)
	m.rootW = make([]float64, n)

	// Warm the lazy tree caches so the workers only read.
	t.Waves()
	t.Nodes()

	m.setDefaults()
	m.setupParameters()
	return m, nil
}

// setDefaults sets a plausible starting point for optimization.
func (m *Model) setDefaults() {
	for i := range m.qRates {
		m.qRates[i] = 0.1
	}
	sp := m.index.Space
	for i := range m.tau {
		if sp.RangeOf(i) == state.RangeAB {
			m.tau[i] = 0.4
			m.eps[i] = 0
		} else {
			m.tau[i] = 0.2
			m.eps[i] = 0.5
		}
	}
	m.expired = true
}

// setupParameters registers the free parameters.
func (m *Model) setupParameters() {
	m.parameters = nil
	for l := 0; l < m.index.NLabels(); l++ {
		par := optimize.NewBasicFloatParameter(&m.qRates[l], fmt.Sprintf("q%d", l+1))
		par.SetMin(0)
		par.SetMax(1000)
		par.SetOnChange(m.expire)
		m.parameters.Append(par)
	}
	sp := m.index.Space
	for i := 0; i < sp.NStates(); i++ {
		par := optimize.NewBasicFloatParameter(&m.tau[i], "tau_"+sp.StateName(i))
		par.SetMin(0)
		par.SetMax(1000)
		par.SetOnChange(m.expire)
		m.parameters.Append(par)
	}
	for i := 0; i < sp.NStates(); i++ {
		if sp.RangeOf(i) == state.RangeAB {
			continue
		}
		par := optimize.NewBasicFloatParameter(&m.eps[i], "eps_"+sp.StateName(i))
		par.SetMin(0)
		par.SetMax(100)
		par.SetOnChange(m.expire)
		m.parameters.Append(par)
	}
}

func (m *Model) expire() {
	m.expired = true
}

// GetFloatParameters returns the optimization parameters.
func (m *Model) GetFloatParameters() optimize.FloatParameters {
	return m.parameters
}

// Copy creates an independent copy of the model sharing the tree and
// the rate index.
func (m *Model) Copy() optimize.Optimizable {
	newM, err := NewModel(m.t, m.index, m.obs, m.cfg)
	if err != nil {
		// The original model was built from the same inputs.
		panic(err)
	}
	newM.parameters.SetValues(m.parameters.Values(nil))
	return newM
}

// SetTransitionRate sets the rate for a transition label.
func (m *Model) SetTransitionRate(label int, rate float64) error {
	if label < 1 || label > m.index.NLabels() {
		return fmt.Errorf("label %d out of range [1, %d]", label, m.index.NLabels())
	}
	m.qRates[label-1] = rate
	m.expired = true
	return nil
}

// SetTurnover sets the turnover parameter for a composite state.
func (m *Model) SetTurnover(st int, tau float64) error {
	if st < 0 || st >= len(m.tau) {
		return fmt.Errorf("state %d out of range", st)
	}
	m.tau[st] = tau
	m.expired = true
	return nil
}

// SetExtinctionFraction sets the extinction fraction for an endemic
// state.
func (m *Model) SetExtinctionFraction(st int, eps float64) error {
	if st < 0 || st >= len(m.eps) {
		return fmt.Errorf("state %d out of range", st)
	}
	if m.index.Space.RangeOf(st) == state.RangeAB {
		return fmt.Errorf("state %s is widespread, its extinction fraction is fixed at zero",
			m.index.Space.StateName(st))
	}
	m.eps[st] = eps
	m.expired = true
	return nil
}

// Tree returns the tree of the model.
func (m *Model) Tree() *tree.Tree {
	return m.t
}

// Index returns the rate index of the model.
func (m *Model) Index() *state.RateIndex {
	return m.index
}

// update rebuilds the rate tables after a parameter change.
func (m *Model) update() error {
	if !m.expired && m.rates != nil {
		return nil
	}
	s, x, err := SpeciationExtinction(m.index.Space, m.tau, m.eps)
	if err != nil {
		return err
	}
	q, err := BuildQ(m.index, m.qRates)
	if err != nil {
		return err
	}
	r, err := NewRates(m.index.Space, s, x, q, m.index.Flags.SeparateExtirpation, m.cfg.CladoEvents)
	if err != nil {
		return err
	}
	m.rates = r
	m.expired = false
	return nil
}

// Likelihood computes the log-likelihood of the observations. An
// invalid parameter combination or a failed branch integration gives
// -Inf, never a panic.
func (m *Model) Likelihood() float64 {
	if err := m.update(); err != nil {
		log.Debugf("invalid parameters: %v", err)
		return math.Inf(-1)
	}
	if !m.prune() {
		return math.Inf(-1)
	}
	w, err := m.rootWeights()
	if err != nil {
		log.Debugf("root weighting failed: %v", err)
		return math.Inf(-1)
	}
	copy(m.rootW, w)

	sum := 0.0
	for i, wi := range w {
		sum += wi * m.dRoot[i]
	}
	if m.cfg.ConditionOnSurvival {
		surv := 0.0
		for i, wi := range w {
			q := 1 - m.eRoot[i]
			surv += wi * m.rates.sTot[i] * q * q
		}
		if !(surv > 0) {
			return math.Inf(-1)
		}
		sum /= surv
	}
	if !(sum > 0) {
		return math.Inf(-1)
	}
	lnL := math.Log(sum) + m.logScale[m.t.Node.Id]
	if math.IsNaN(lnL) {
		return math.Inf(-1)
	}
	return lnL
}

// prune runs the post-order pruning pass. The nodes are processed
// wave by wave; every node in a wave depends only on earlier waves,
// so the workers compute branches of one wave in parallel without
// changing the result.
func (m *Model) prune() bool {
	var fail int32
	for _, wave := range m.t.Waves() {
		tasks := make(chan *tree.Node, len(wave))
		for _, node := range wave {
			tasks <- node
		}
		close(tasks)

		nWorkers := m.cfg.Workers
		if nWorkers > len(wave) {
			nWorkers = len(wave)
		}
		var wg sync.WaitGroup
		for w := 0; w < nWorkers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				solver := ode.NewCashKarp(m.cfg.Solver)
				sys := newDownSystem(m.rates)
				y := make([]float64, sys.Dim())
				for node := range tasks {
					if atomic.LoadInt32(&fail) != 0 {
						return
					}
					if !m.processNode(node, solver, sys, y) {
						atomic.StoreInt32(&fail, 1)
						return
					}
				}
			}()
		}
		wg.Wait()
		if atomic.LoadInt32(&fail) != 0 {
			return false
		}
	}
	return true
}

// processNode computes the branch leading to the node: the initial
// vectors at the node (tip observation or combination of the child
// branches), rescaling, and integration along the branch. The
// extinction probabilities at an internal node come from its first
// child branch; both children give the same values up to integration
// error.
func (m *Model) processNode(node *tree.Node, solver *ode.CashKarp, sys *downSystem, y []float64) bool {
	n := m.index.NStates()
	d := m.dNode[node.Id]
	var e []float64
	scale := 0.0
	if node.IsTerminal() {
		copy(d, m.tipD[node.LeafId])
		e = m.tipE[node.LeafId]
	} else {
		children := node.ChildNodes()
		left, right := children[0], children[1]
		m.rates.Combine(m.dTop[left.Id], m.dTop[right.Id], d)
		e = m.eTop[left.Id]
		scale = m.logScale[left.Id] + m.logScale[right.Id]
	}

	sum := 0.0
	for _, v := range d {
		sum += v
	}
	if math.IsNaN(sum) || math.IsInf(sum, 0) || sum <= 0 {
		log.Debugf("conditional likelihoods vanished at node %d", node.Id)
		return false
	}
	for i := range d {
		d[i] /= sum
	}
	m.logScale[node.Id] = scale + math.Log(sum)

	if node.IsRoot() {
		copy(m.dRoot, d)
		copy(m.eRoot, e)
		return true
	}

	copy(y[:n], e)
	copy(y[n:], d)
	if err := solver.Integrate(sys, y, 0, node.BranchLength); err != nil {
		log.Debugf("branch integration failed at node %d: %v", node.Id, err)
		return false
	}
	eTop, dTop := m.eTop[node.Id], m.dTop[node.Id]
	copy(eTop, y[:n])
	for i, v := range y[n:] {
		if v < 0 {
			if v < -m.negTol {
				log.Debugf("negative conditional likelihood %v at node %d", v, node.Id)
				return false
			}
			v = 0
		}
		dTop[i] = v
	}
	return true
}

// rootWeights computes the root state weights for the configured
// policy.
func (m *Model) rootWeights() ([]float64, error) {
	n := m.index.NStates()
	w := make([]float64, n)
	switch m.cfg.Root {
	case RootUniform:
		for i := range w {
			w[i] = 1 / float64(n)
		}
	case RootEquilibrium:
		return m.rates.Equilibrium()
	case RootObserved:
		// dRoot is rescaled to sum to one.
		copy(w, m.dRoot)
	case RootGiven:
		copy(w, m.rootGiven)
	default:
		return nil, fmt.Errorf("unknown root policy %v", m.cfg.Root)
	}
	return w, nil
}
