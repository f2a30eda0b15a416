package dist

import (
	"math"
	"testing"
)

const smallDiff = 1e-6

/*** Tests if a and b are approximately equal ***/
func appreq(a, b float64) bool {
	return math.Abs(a-b) <= smallDiff
}

func mean(r []float64) (m float64) {
	for _, v := range r {
		m += v
	}
	return m / float64(len(r))
}

/*** Test discrete gamma against PAML values ***/
func TestGamma(tst *testing.T) {
	type settings struct {
		n      int
		a, b   float64
		median bool
	}
	tests := [...]settings{
		{4, 0.5, 0.5, false},
		{4, 0.5, 0.5, true},
		{8, 2, 2, false},
		{4, 1.16, 1.16, false},
	}
	for _, s := range tests {
		r := DiscreteGamma(s.a, s.b, s.n, s.median, nil, nil)
		if len(r) != s.n {
			tst.Fatal("Wrong number of categories")
		}
		if !appreq(mean(r), s.a/s.b) {
			tst.Error("Expected mean", s.a/s.b, "got", mean(r))
		}
		for i := 1; i < len(r); i++ {
			if r[i] < r[i-1] {
				tst.Error("Categories must be non-decreasing:", r)
			}
		}
	}
}

func TestQuantileGamma(tst *testing.T) {
	// Exponential distribution: quantile has a closed form.
	for _, p := range []float64{0.1, 0.5, 0.9} {
		got := QuantileGamma(p, 1, 1)
		want := -math.Log(1 - p)
		if math.Abs(got-want) > 1e-4 {
			tst.Error("Expected", want, "got", got, "for p =", p)
		}
	}
}

func TestRateClasses(tst *testing.T) {
	r, err := RateClasses(0.7, 4)
	if err != nil {
		tst.Fatal("Error building rate classes:", err)
	}
	if !appreq(mean(r), 1) {
		tst.Error("Rate classes must have mean one, got", mean(r))
	}

	r, err = RateClasses(2, 1)
	if err != nil || len(r) != 1 || r[0] != 1 {
		tst.Error("A single rate class must be exactly one")
	}

	if _, err := RateClasses(-1, 4); err == nil {
		tst.Error("Expected an error for a non-positive shape")
	}
	if _, err := RateClasses(1, 0); err == nil {
		tst.Error("Expected an error for zero classes")
	}
}
