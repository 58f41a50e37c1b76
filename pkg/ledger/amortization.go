package ledger

import (
	"github.com/shopspring/decimal"
)

const currencyPlaces = 2

var (
	hundred      = decimal.NewFromInt(100)
	monthsInYear = decimal.NewFromInt(12)
)

// InstallmentAmount returns the fixed monthly payment that retires principal
// over termMonths at the given annual rate (percent, 12 means 12%).
//
// With a zero rate the principal is split evenly. Otherwise the standard
// annuity formula is used:
//
//	r       = annualRatePercent / 100 / 12
//	payment = P * r * (1+r)^n / ((1+r)^n - 1)
//
// The result is rounded to 2 places, half away from zero (decimal.Round).
// Inputs are assumed validated; a term below 1 yields zero.
func InstallmentAmount(principal, annualRatePercent decimal.Decimal, termMonths int) decimal.Decimal {
	if termMonths < 1 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(termMonths))

	if annualRatePercent.IsZero() {
		return principal.Div(n).Round(currencyPlaces)
	}

	r := annualRatePercent.Div(hundred).Div(monthsInYear)
	factor := decimal.NewFromInt(1).Add(r).Pow(n)
	denominator := factor.Sub(decimal.NewFromInt(1))
	if denominator.IsZero() {
		return principal.Div(n).Round(currencyPlaces)
	}

	return principal.Mul(r).Mul(factor).Div(denominator).Round(currencyPlaces)
}

// FinancedTotal is principal plus flat interest: principal * (1 + rate/100).
// It seeds a plan's remaining balance and is not an amortized figure.
func FinancedTotal(principal, annualRatePercent decimal.Decimal) decimal.Decimal {
	return principal.Add(principal.Mul(annualRatePercent).Div(hundred))
}
