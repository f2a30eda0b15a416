package gmodel

import (
	"math"
	"testing"

	"bitbucket.org/Davydov/gosse/state"
)

func TestMarginalsTwoTip(tst *testing.T) {
	m := newTwoTipModel(tst)
	marg, err := m.Marginals()
	if err != nil {
		tst.Fatal(err)
	}
	// Both tips are endemic to A and there are no transitions, so
	// every node is in state A with certainty.
	for node := range m.Tree().Walker(nil) {
		p := marg[node.Id]
		if p == nil {
			tst.Fatalf("No marginals for node %d", node.Id)
		}
		if math.Abs(p[0]-1) > smallDiff {
			tst.Errorf("Node %d: expected state A with probability 1, got %v", node.Id, p)
		}
	}
}

func TestMarginalsNormalized(tst *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.ConditionOnSurvival = true
	m := newTestModel(tst, cfg)

	marg, err := m.Marginals()
	if err != nil {
		tst.Fatal(err)
	}
	n := m.Index().NStates()
	for node := range m.Tree().Walker(nil) {
		p := marg[node.Id]
		if len(p) != n {
			tst.Fatalf("Node %d: expected %d probabilities, got %d", node.Id, n, len(p))
		}
		sum := 0.0
		for _, v := range p {
			if v < 0 {
				tst.Errorf("Node %d: negative probability %v", node.Id, v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			tst.Errorf("Node %d: probabilities sum to %v", node.Id, sum)
		}
	}
}

func TestMarginalsObservedTips(tst *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	m := newTestModel(tst, cfg)

	marg, err := m.Marginals()
	if err != nil {
		tst.Fatal(err)
	}
	sp := m.Index().Space
	// A tip observed in a single range gets zero probability for the
	// incompatible ranges, over every hidden class.
	for node := range m.Tree().Terminals() {
		if node.Name != "t1" {
			continue
		}
		p := marg[node.Id]
		for i := range p {
			compatible := sp.RangeOf(i) == state.RangeA
			if !compatible && p[i] != 0 {
				tst.Errorf("Tip t1 state %s: expected zero probability, got %v",
					sp.StateName(i), p[i])
			}
		}
	}
}

func TestMarginalsInvalidModel(tst *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = 1
	m := newTestModel(tst, cfg)
	if err := m.SetTurnover(2, 0.01); err != nil {
		tst.Fatal(err)
	}
	if _, err := m.Marginals(); err == nil {
		tst.Error("Expected an error for an invalid model")
	}
}
