// Package state implements the composite state space of
// geography-dependent diversification models: three observable range
// categories crossed with an arbitrary number of hidden classes, and
// the index structure of free transition-rate parameters over it.
package state

import (
	"fmt"
	"strconv"
)

// Range is an observable range category.
type Range int

// Range categories. A lineage is either endemic to one of the two
// areas or widespread over both.
const (
	RangeA Range = iota
	RangeB
	RangeAB
)

// NRanges is the number of observable range categories.
const NRanges = 3

// String returns the range name.
func (r Range) String() string {
	switch r {
	case RangeA:
		return "A"
	case RangeB:
		return "B"
	case RangeAB:
		return "AB"
	}
	return "?"
}

// Space is a composite state space: range categories crossed with
// hidden classes. It is immutable after creation.
type Space struct {
	nHidden int
	nStates int
}

// NewSpace creates a state space with nHidden extra hidden classes
// (nHidden=0 gives the plain three-state geographic model).
func NewSpace(nHidden int) (*Space, error) {
	if nHidden < 0 {
		return nil, fmt.Errorf("number of hidden classes must be non-negative, got %d", nHidden)
	}
	return &Space{
		nHidden: nHidden,
		nStates: NRanges * (nHidden + 1),
	}, nil
}

// NHidden returns the number of extra hidden classes.
func (sp *Space) NHidden() int {
	return sp.nHidden
}

// NClasses returns the total number of hidden classes (nHidden + 1).
func (sp *Space) NClasses() int {
	return sp.nHidden + 1
}

// NStates returns the number of composite states.
func (sp *Space) NStates() int {
	return sp.nStates
}

// Index returns the composite state index for a (range, hidden
// class) pair. States are laid out range-major within a hidden
// class: A0, B0, AB0, A1, B1, AB1, ...
func (sp *Space) Index(r Range, hidden int) int {
	return NRanges*hidden + int(r)
}

// RangeOf returns the range category of a composite state.
func (sp *Space) RangeOf(i int) Range {
	return Range(i % NRanges)
}

// HiddenOf returns the hidden class of a composite state.
func (sp *Space) HiddenOf(i int) int {
	return i / NRanges
}

// StateName returns a human-readable composite state name, e.g. A0
// or AB2.
func (sp *Space) StateName(i int) string {
	return sp.RangeOf(i).String() + strconv.Itoa(sp.HiddenOf(i))
}

// StateNames returns names for all the composite states in order.
func (sp *Space) StateNames() []string {
	names := make([]string, sp.nStates)
	for i := range names {
		names[i] = sp.StateName(i)
	}
	return names
}
