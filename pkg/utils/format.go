// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"math"
	"strconv"
)

// FormatMoney formats a currency amount with two decimal places.
func FormatMoney(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatQty formats a share quantity, trimming trailing zeros so whole
// lots print without a fraction.
func FormatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

// RoundDownToStep rounds qty down to the nearest multiple of step.
// A zero step leaves the quantity untouched.
func RoundDownToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Floor(qty/step+1e-9) * step
}

// RoundUpToStep rounds qty up to the nearest multiple of step.
func RoundUpToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	return math.Ceil(qty/step-1e-9) * step
}
