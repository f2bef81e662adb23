package utils

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: rounding down to a lot step never adds more than float noise,
// lands on a whole multiple of the step, and stays within one step of the
// input. Rounding up mirrors that from above.
func TestProperty_StepRoundingBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	const tol = 1e-6

	properties.Property("round down stays within one step below", prop.ForAll(
		func(qty, step float64) bool {
			down := RoundDownToStep(qty, step)
			if down > qty+tol {
				return false
			}
			if qty-down >= step+tol {
				return false
			}
			ratio := down / step
			return math.Abs(ratio-math.Round(ratio)) < 1e-6
		},
		gen.Float64Range(0, 10000),
		gen.Float64Range(0.01, 100),
	))

	properties.Property("round up stays within one step above", prop.ForAll(
		func(qty, step float64) bool {
			up := RoundUpToStep(qty, step)
			if up < qty-tol {
				return false
			}
			if up-qty >= step+tol {
				return false
			}
			ratio := up / step
			return math.Abs(ratio-math.Round(ratio)) < 1e-6
		},
		gen.Float64Range(0, 10000),
		gen.Float64Range(0.01, 100),
	))

	properties.Property("zero step is the identity", prop.ForAll(
		func(qty float64) bool {
			return RoundDownToStep(qty, 0) == qty && RoundUpToStep(qty, 0) == qty
		},
		gen.Float64Range(0, 10000),
	))

	properties.TestingRun(t)
}

func TestFormatQty(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{50, "50"},
		{5.5, "5.5"},
		{0.25, "0.25"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := FormatQty(tt.in); got != tt.want {
			t.Errorf("FormatQty(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(5.16); got != "+5.16%" {
		t.Errorf("FormatPercent(5.16) = %q", got)
	}
	if got := FormatPercent(-6.38); got != "-6.38%" {
		t.Errorf("FormatPercent(-6.38) = %q", got)
	}
}
