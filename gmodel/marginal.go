package gmodel

import (
	"errors"
	"fmt"
	"math"

	"bitbucket.org/Davydov/gosse/ode"
	"bitbucket.org/Davydov/gosse/tree"
)

// Marginals computes marginal state probabilities for every node of
// the tree under the current parameters. Row i of the result
// corresponds to the node with id i; every row is non-negative and
// sums to one. The computation runs a fresh pruning pass followed by
// a root-to-tip pass propagating state weights against the flow of
// the likelihood recursion.
func (m *Model) Marginals() ([][]float64, error) {
	l := m.Likelihood()
	if math.IsInf(l, -1) {
		return nil, errors.New("cannot reconstruct states: likelihood is not finite")
	}

	n := m.index.NStates()
	res := make([][]float64, m.t.MaxNodeId()+1)
	g := make([][]float64, m.t.MaxNodeId()+1)

	root := m.t.Node
	g[root.Id] = append([]float64(nil), m.rootW...)
	rootMarginal, err := normalizedProduct(m.dRoot, g[root.Id])
	if err != nil {
		return nil, fmt.Errorf("root: %v", err)
	}
	res[root.Id] = rootMarginal

	solver := ode.NewCashKarp(m.cfg.Solver)
	sys := newUpSystem(m.rates)
	y := make([]float64, sys.Dim())
	h := make([]float64, n)

	// The walker yields parents before children.
	for node := range m.t.Walker(nil) {
		if node.IsRoot() {
			continue
		}
		sib := sibling(node)
		m.rates.uppassTop(g[node.Parent.Id], m.dTop[sib.Id], h)
		if err := rescale(h); err != nil {
			return nil, fmt.Errorf("node %d: %v", node.Id, err)
		}

		copy(y[:n], m.eTop[node.Id])
		copy(y[n:], h)
		if err := solver.Integrate(sys, y, node.BranchLength, 0); err != nil {
			return nil, fmt.Errorf("node %d: %v", node.Id, err)
		}

		gn := make([]float64, n)
		for i, v := range y[n:] {
			if v < 0 {
				if v < -m.negTol {
					return nil, fmt.Errorf("node %d: negative state weight %v", node.Id, v)
				}
				v = 0
			}
			gn[i] = v
		}
		if err := rescale(gn); err != nil {
			return nil, fmt.Errorf("node %d: %v", node.Id, err)
		}
		g[node.Id] = gn

		marginal, err := normalizedProduct(m.dNode[node.Id], gn)
		if err != nil {
			return nil, fmt.Errorf("node %d: %v", node.Id, err)
		}
		res[node.Id] = marginal
	}
	return res, nil
}

// sibling returns the other child of the node's parent.
func sibling(node *tree.Node) *tree.Node {
	for _, child := range node.Parent.ChildNodes() {
		if child != node {
			return child
		}
	}
	return nil
}

// rescale divides a vector by its sum.
func rescale(v []float64) error {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if !(sum > 0) || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("state weights vanished (sum=%v)", sum)
	}
	for i := range v {
		v[i] /= sum
	}
	return nil
}

// normalizedProduct returns the elementwise product of two vectors
// normalized to sum to one.
func normalizedProduct(a, b []float64) ([]float64, error) {
	p := make([]float64, len(a))
	sum := 0.0
	for i := range a {
		p[i] = a[i] * b[i]
		sum += p[i]
	}
	if !(sum > 0) || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("state probabilities vanished (sum=%v)", sum)
	}
	for i := range p {
		p[i] /= sum
	}
	return p, nil
}
