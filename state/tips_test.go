package state

import (
	"strings"
	"testing"
)

func TestParseRangeCode(tst *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"A", 1},
		{"B", 1},
		{"AB", 1},
		{"?", 3},
		{"A|AB", 2},
	}
	for _, test := range tests {
		ranges, err := ParseRangeCode(test.code)
		if err != nil {
			tst.Error("Error parsing", test.code, ":", err)
			continue
		}
		if len(ranges) != test.want {
			tst.Error("Expected", test.want, "ranges for", test.code, "got", len(ranges))
		}
	}
	if _, err := ParseRangeCode("C"); err == nil {
		tst.Error("Expected an error for an unknown code")
	}
}

func TestReadObservations(tst *testing.T) {
	data := `# taxon	range
sp1	A
sp2	AB

sp3	?
`
	obs, err := ReadObservations(strings.NewReader(data))
	if err != nil {
		tst.Fatal("Error reading observations:", err)
	}
	if len(obs) != 3 {
		tst.Fatal("Expected 3 observations, got", len(obs))
	}
	if obs[0].Name != "sp1" || len(obs[0].Ranges) != 1 || obs[0].Ranges[0] != RangeA {
		tst.Error("Wrong first observation:", obs[0])
	}
	if len(obs[2].Ranges) != 3 {
		tst.Error("Ambiguous observation must cover all ranges")
	}

	if _, err := ReadObservations(strings.NewReader("sp1 A B\n")); err == nil {
		tst.Error("Expected an error for a malformed line")
	}
}

func TestTipVectors(tst *testing.T) {
	sp, err := NewSpace(1)
	if err != nil {
		tst.Fatal(err)
	}
	d0, e0, err := sp.TipVectors([]Range{RangeA}, FullSampling)
	if err != nil {
		tst.Fatal("Error building tip vectors:", err)
	}
	for i := 0; i < sp.NStates(); i++ {
		if e0[i] != 0 {
			tst.Error("Observed tip must have zero extinction probability")
		}
		want := 0.0
		if sp.RangeOf(i) == RangeA {
			want = 1
		}
		if d0[i] != want {
			tst.Error("Wrong tip vector at", sp.StateName(i), ":", d0[i])
		}
	}

	// Partial sampling.
	f := Sampling{0.5, 1, 1}
	d0, e0, err = sp.TipVectors([]Range{RangeA}, f)
	if err != nil {
		tst.Fatal(err)
	}
	i := sp.Index(RangeA, 0)
	if d0[i] != 0.5 || e0[i] != 0.5 {
		tst.Error("Sampling fraction not applied:", d0[i], e0[i])
	}

	if _, _, err := sp.TipVectors(nil, FullSampling); err == nil {
		tst.Error("Expected an error for an empty observation")
	}
	if _, _, err := sp.TipVectors([]Range{RangeA}, Sampling{0, 1, 1}); err == nil {
		tst.Error("Expected an error for a zero sampling fraction")
	}
}

func TestSpace(tst *testing.T) {
	if _, err := NewSpace(-1); err == nil {
		tst.Error("Expected an error for a negative hidden-class count")
	}
	sp, err := NewSpace(2)
	if err != nil {
		tst.Fatal(err)
	}
	if sp.NStates() != 9 || sp.NClasses() != 3 {
		tst.Error("Wrong space dimensions")
	}
	for i := 0; i < sp.NStates(); i++ {
		if sp.Index(sp.RangeOf(i), sp.HiddenOf(i)) != i {
			tst.Error("Index roundtrip failed at", i)
		}
	}
	if sp.StateName(5) != "AB1" {
		tst.Error("Wrong state name:", sp.StateName(5))
	}
}
