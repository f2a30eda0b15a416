package state

import (
	"strings"
	"testing"
)

func mustSpace(tst *testing.T, h int) *Space {
	sp, err := NewSpace(h)
	if err != nil {
		tst.Fatal("Error creating space:", err)
	}
	return sp
}

// checkDense verifies the label numbering is dense starting from 1.
func checkDense(tst *testing.T, idx *RateIndex) {
	labels := idx.Labels()
	if len(labels) != idx.NLabels() {
		tst.Error("Expected", idx.NLabels(), "distinct labels, got", len(labels))
	}
	for i, l := range labels {
		if l != i+1 {
			tst.Fatal("Label numbering has gaps:", labels)
		}
	}
}

func TestIndexShape(tst *testing.T) {
	for h := 0; h <= 4; h++ {
		for _, flags := range []Flags{
			{},
			{MakeNull: true},
			{IncludeJumps: true},
			{SeparateExtirpation: true},
			{MakeNull: true, IncludeJumps: true, SeparateExtirpation: true},
		} {
			sp := mustSpace(tst, h)
			idx := BuildIndex(sp, flags)
			if idx.NStates() != 3*(h+1) {
				tst.Error("Expected dimension", 3*(h+1), "got", idx.NStates())
			}
			for i := 0; i < idx.NStates(); i++ {
				if idx.At(i, i) != 0 {
					tst.Error("Diagonal cell is not empty at", i)
				}
			}
			checkDense(tst, idx)
		}
	}
}

func TestIndexNoHidden(tst *testing.T) {
	sp := mustSpace(tst, 0)
	idx := BuildIndex(sp, Flags{})
	// Only the two dispersal transitions A->AB and B->AB.
	if idx.NLabels() != 2 {
		tst.Error("Expected 2 labels, got", idx.NLabels())
	}
	a, b, ab := sp.Index(RangeA, 0), sp.Index(RangeB, 0), sp.Index(RangeAB, 0)
	if idx.At(a, ab) == 0 || idx.At(b, ab) == 0 {
		tst.Error("Missing dispersal transitions")
	}
	if idx.At(ab, a) != 0 || idx.At(ab, b) != 0 {
		tst.Error("Contraction must not be free without separate extirpation")
	}
	if idx.At(a, b) != 0 || idx.At(b, a) != 0 {
		tst.Error("Jump transitions must not exist by default")
	}
}

func TestIndexJumpsAndExtirpation(tst *testing.T) {
	sp := mustSpace(tst, 0)
	idx := BuildIndex(sp, Flags{IncludeJumps: true, SeparateExtirpation: true})
	a, b, ab := sp.Index(RangeA, 0), sp.Index(RangeB, 0), sp.Index(RangeAB, 0)
	if idx.At(a, b) == 0 || idx.At(b, a) == 0 {
		tst.Error("Jump transitions missing")
	}
	if idx.At(ab, a) == 0 || idx.At(ab, b) == 0 {
		tst.Error("Extirpation transitions missing")
	}
	// 2 dispersal + 2 jumps + 2 contractions.
	if idx.NLabels() != 6 {
		tst.Error("Expected 6 labels, got", idx.NLabels())
	}
	checkDense(tst, idx)
}

func TestIndexHiddenTransitions(tst *testing.T) {
	sp := mustSpace(tst, 1)
	idx := BuildIndex(sp, Flags{})
	for i := 0; i < idx.NStates(); i++ {
		for j := 0; j < idx.NStates(); j++ {
			if i == j {
				continue
			}
			ri, rj := sp.RangeOf(i), sp.RangeOf(j)
			hi, hj := sp.HiddenOf(i), sp.HiddenOf(j)
			if hi != hj && ri != rj && idx.At(i, j) != 0 {
				tst.Error("Simultaneous range and hidden-class change at",
					sp.StateName(i), "->", sp.StateName(j))
			}
		}
	}
	// 2 dispersal per class (4) + 6 hidden moves (3 ranges x 2 directions).
	if idx.NLabels() != 10 {
		tst.Error("Expected 10 labels, got", idx.NLabels())
	}
}

func TestIndexNull(tst *testing.T) {
	for h := 1; h <= 3; h++ {
		sp := mustSpace(tst, h)
		idx := BuildIndex(sp, Flags{MakeNull: true})

		// Dispersal labels must be shared across hidden classes.
		aab := idx.At(sp.Index(RangeA, 0), sp.Index(RangeAB, 0))
		bab := idx.At(sp.Index(RangeB, 0), sp.Index(RangeAB, 0))
		for k := 0; k <= h; k++ {
			if idx.At(sp.Index(RangeA, k), sp.Index(RangeAB, k)) != aab {
				tst.Error("A->AB label differs between hidden classes")
			}
			if idx.At(sp.Index(RangeB, k), sp.Index(RangeAB, k)) != bab {
				tst.Error("B->AB label differs between hidden classes")
			}
		}

		// All hidden-class moves must share a single label.
		var hiddenLabel int
		for i := 0; i < idx.NStates(); i++ {
			for j := 0; j < idx.NStates(); j++ {
				if sp.HiddenOf(i) == sp.HiddenOf(j) || idx.At(i, j) == 0 {
					continue
				}
				if hiddenLabel == 0 {
					hiddenLabel = idx.At(i, j)
				} else if idx.At(i, j) != hiddenLabel {
					tst.Error("Hidden-class transition labels are not tied")
				}
			}
		}
		// Two dispersal labels plus the single hidden one.
		if idx.NLabels() != 3 {
			tst.Error("Expected 3 labels under the null model, got", idx.NLabels())
		}
		checkDense(tst, idx)
	}
}

func TestMerge(tst *testing.T) {
	sp := mustSpace(tst, 1)
	idx := BuildIndex(sp, Flags{})
	n0 := idx.NLabels()

	merged, err := idx.Merge([][]int{{1, 2}, {3, 4}})
	if err != nil {
		tst.Fatal("Error merging:", err)
	}
	if merged.NLabels() != n0-2 {
		tst.Error("Expected", n0-2, "labels after merge, got", merged.NLabels())
	}
	checkDense(tst, merged)

	// Idempotence: reapplying the same merge set changes nothing.
	again, err := merged.Merge([][]int{{1}, {2}})
	if err != nil {
		tst.Fatal("Error merging:", err)
	}
	if again.NLabels() != merged.NLabels() {
		tst.Error("Merge is not idempotent")
	}
	for i := 0; i < idx.NStates(); i++ {
		for j := 0; j < idx.NStates(); j++ {
			if again.At(i, j) != merged.At(i, j) {
				tst.Error("Merge is not idempotent at cell", i, j)
			}
		}
	}

	// Tied cells must share a label.
	for i := 0; i < idx.NStates(); i++ {
		for j := 0; j < idx.NStates(); j++ {
			if idx.At(i, j) == 1 || idx.At(i, j) == 2 {
				if merged.At(i, j) != merged.At(sp.Index(RangeA, 0), sp.Index(RangeAB, 0)) {
					tst.Error("Merged labels differ for tied cells")
				}
			}
		}
	}

	if _, err := idx.Merge([][]int{{0, 1}}); err == nil {
		tst.Error("Expected an error for an out-of-range label")
	}
}

func TestIndexString(tst *testing.T) {
	sp := mustSpace(tst, 0)
	idx := BuildIndex(sp, Flags{})
	s := idx.String()
	if !strings.Contains(s, "AB0") {
		tst.Error("Index table misses state names:", s)
	}
}
