package state

import (
	"fmt"
	"sort"
)

// Flags controls the structure of the transition-rate index.
type Flags struct {
	// MakeNull ties corresponding range-transition parameters
	// across hidden classes and uses a single parameter for all
	// the hidden-class transitions. This gives the
	// character-independent (null) model.
	MakeNull bool
	// IncludeJumps allows direct transitions between the two
	// endemic ranges without passing through the widespread
	// state.
	IncludeJumps bool
	// SeparateExtirpation gives range contraction (AB to an
	// endemic state) its own free parameters instead of reusing
	// the endemic extinction rates.
	SeparateExtirpation bool
}

// RateIndex is a square table of transition-parameter labels over
// the composite state space. A zero cell means no direct transition;
// a positive label identifies the free parameter governing the
// transition. Labels are dense starting from 1. The index is built
// once per model configuration and never mutated.
type RateIndex struct {
	Space   *Space
	Flags   Flags
	labels  [][]int
	nLabels int
}

// transKind identifies a transition type for the null-model tying
// rules.
type transKind struct {
	from, to Range
	// fromHidden and toHidden are -1 for range transitions under
	// the null model; the single hidden kind uses from = to = -1.
	fromHidden, toHidden int
}

// BuildIndex enumerates all the allowed transitions between
// composite states and assigns dense parameter labels starting from
// 1, in row-major first-encounter order.
func BuildIndex(sp *Space, flags Flags) *RateIndex {
	idx := &RateIndex{
		Space:  sp,
		Flags:  flags,
		labels: newLabelTable(sp.NStates()),
	}

	kinds := make(map[transKind]int)
	n := sp.NStates()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			kind, ok := idx.transition(i, j)
			if !ok {
				continue
			}
			label, seen := kinds[kind]
			if !seen {
				idx.nLabels++
				label = idx.nLabels
				kinds[kind] = label
			}
			idx.labels[i][j] = label
		}
	}
	return idx
}

// transition decides whether a direct transition from composite
// state i to j exists and returns its tying key.
func (idx *RateIndex) transition(i, j int) (transKind, bool) {
	sp := idx.Space
	ri, rj := sp.RangeOf(i), sp.RangeOf(j)
	hi, hj := sp.HiddenOf(i), sp.HiddenOf(j)

	if hi == hj {
		ok := false
		switch {
		case rj == RangeAB && ri != RangeAB:
			// Dispersal into the second area.
			ok = true
		case ri == RangeAB && rj != RangeAB:
			// Range contraction; a free parameter only when
			// extirpation is decoupled from extinction.
			ok = idx.Flags.SeparateExtirpation
		case ri != RangeAB && rj != RangeAB:
			// Jump dispersal between the endemic ranges.
			ok = idx.Flags.IncludeJumps
		}
		if !ok {
			return transKind{}, false
		}
		if idx.Flags.MakeNull {
			return transKind{from: ri, to: rj, fromHidden: -1, toHidden: -1}, true
		}
		return transKind{from: ri, to: rj, fromHidden: hi, toHidden: hi}, true
	}

	// Hidden-class transitions keep the range.
	if ri != rj {
		return transKind{}, false
	}
	if idx.Flags.MakeNull {
		// A single rate for every hidden-class move.
		return transKind{from: -1, to: -1, fromHidden: -1, toHidden: -1}, true
	}
	return transKind{from: ri, to: ri, fromHidden: hi, toHidden: hj}, true
}

// NStates returns the dimension of the index.
func (idx *RateIndex) NStates() int {
	return idx.Space.NStates()
}

// NLabels returns the number of distinct parameter labels.
func (idx *RateIndex) NLabels() int {
	return idx.nLabels
}

// At returns the label at cell (i, j); zero means no transition.
func (idx *RateIndex) At(i, j int) int {
	return idx.labels[i][j]
}

// Merge produces a new index with every label set in groups tied to
// a single parameter. The remaining labels are renumbered densely in
// row-major first-encounter order. Merging is idempotent and never
// increases the number of distinct labels.
func (idx *RateIndex) Merge(groups [][]int) (*RateIndex, error) {
	// Union-find over the labels.
	parent := make([]int, idx.nLabels+1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	for _, group := range groups {
		if len(group) == 0 {
			continue
		}
		for _, l := range group {
			if l < 1 || l > idx.nLabels {
				return nil, fmt.Errorf("label %d out of range [1, %d]", l, idx.nLabels)
			}
		}
		first := find(group[0])
		for _, l := range group[1:] {
			parent[find(l)] = first
		}
	}

	newIdx := &RateIndex{
		Space:  idx.Space,
		Flags:  idx.Flags,
		labels: newLabelTable(idx.NStates()),
	}
	renum := make(map[int]int)
	n := idx.NStates()
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			old := idx.labels[i][j]
			if old == 0 {
				continue
			}
			class := find(old)
			label, seen := renum[class]
			if !seen {
				newIdx.nLabels++
				label = newIdx.nLabels
				renum[class] = label
			}
			newIdx.labels[i][j] = label
		}
	}
	return newIdx, nil
}

// Labels returns all the distinct labels in increasing order.
func (idx *RateIndex) Labels() []int {
	seen := make(map[int]bool)
	for i := range idx.labels {
		for _, l := range idx.labels[i] {
			if l != 0 {
				seen[l] = true
			}
		}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// String returns a table representation of the index.
func (idx *RateIndex) String() (s string) {
	names := idx.Space.StateNames()
	for i, row := range idx.labels {
		s += names[i] + ":"
		for _, l := range row {
			if l == 0 {
				s += "\t-"
			} else {
				s += fmt.Sprintf("\t%d", l)
			}
		}
		s += "\n"
	}
	return
}

func newLabelTable(n int) [][]int {
	labels := make([][]int, n)
	for i := range labels {
		labels[i] = make([]int, n)
	}
	return labels
}
