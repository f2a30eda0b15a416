package state

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Observation is an observed (possibly ambiguous) range for a single
// tip. An empty Ranges slice is not allowed; a fully ambiguous tip
// lists all three ranges.
type Observation struct {
	Name   string
	Ranges []Range
}

// Sampling holds per-range sampling fractions: the probability that
// an extant lineage with a given range is present in the data.
type Sampling [NRanges]float64

// FullSampling is the default complete sampling.
var FullSampling = Sampling{1, 1, 1}

// Validate checks the sampling fractions are probabilities.
func (f Sampling) Validate() error {
	for r, v := range f {
		if v <= 0 || v > 1 {
			return fmt.Errorf("sampling fraction for range %v must be in (0, 1], got %v",
				Range(r), v)
		}
	}
	return nil
}

// ParseRangeCode parses a tip range code. Accepted codes are A, B
// and AB, a ?-mark for a fully ambiguous observation, and
// |-separated unions such as A|AB.
func ParseRangeCode(code string) ([]Range, error) {
	code = strings.TrimSpace(code)
	if code == "?" {
		return []Range{RangeA, RangeB, RangeAB}, nil
	}
	var ranges []Range
	for _, part := range strings.Split(code, "|") {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case "A":
			ranges = append(ranges, RangeA)
		case "B":
			ranges = append(ranges, RangeB)
		case "AB":
			ranges = append(ranges, RangeAB)
		default:
			return nil, fmt.Errorf("unknown range code %q", part)
		}
	}
	if len(ranges) == 0 {
		return nil, fmt.Errorf("empty range code %q", code)
	}
	return ranges, nil
}

// ReadObservations reads tip observations from a tab- or
// space-separated file with one "name code" pair per line. Empty
// lines and lines starting with # are skipped.
func ReadObservations(rd io.Reader) ([]Observation, error) {
	var obs []Observation
	scanner := bufio.NewScanner(rd)
	lineN := 0
	for scanner.Scan() {
		lineN++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: expected two fields, got %d", lineN, len(fields))
		}
		ranges, err := ParseRangeCode(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", lineN, err)
		}
		obs = append(obs, Observation{Name: fields[0], Ranges: ranges})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return obs, nil
}

// TipVectors converts an observation into the initial per-state
// vectors of the pruning pass. Every composite state compatible with
// an observed range receives the range's sampling fraction in d0
// (the same observed range is compatible with every hidden class);
// e0 holds one minus the sampling fraction. An observed tip is never
// extinct, so with complete sampling e0 is zero everywhere.
func (sp *Space) TipVectors(ranges []Range, f Sampling) (d0, e0 []float64, err error) {
	if len(ranges) == 0 {
		return nil, nil, fmt.Errorf("tip observation with no compatible ranges")
	}
	if err = f.Validate(); err != nil {
		return nil, nil, err
	}
	compatible := [NRanges]bool{}
	for _, r := range ranges {
		if r < 0 || int(r) >= NRanges {
			return nil, nil, fmt.Errorf("undefined range category %d", r)
		}
		compatible[r] = true
	}
	d0 = make([]float64, sp.NStates())
	e0 = make([]float64, sp.NStates())
	for i := 0; i < sp.NStates(); i++ {
		r := sp.RangeOf(i)
		e0[i] = 1 - f[r]
		if compatible[r] {
			d0[i] = f[r]
		}
	}
	return d0, e0, nil
}
