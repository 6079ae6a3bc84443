// Package money holds the pure line and sale arithmetic used at checkout.
//
// All amounts are integer minor units (cents). Each line component is rounded
// to a whole cent, half away from zero, and sale totals are exact sums of the
// rounded line components, so GrandTotal == Subtotal - Discount + Tax always
// holds without a cross-line correction.
package money

import (
	"errors"
	"math/bits"

	"github.com/shopspring/decimal"
)

// MaxAmountCents bounds every line subtotal, payment and sale total. It leaves
// int64 headroom for a full-rate tax on top of a maximal amount.
const MaxAmountCents int64 = 100_000_000_000_000

var ErrAmountOutOfRange = errors.New("amount out of range")

var hundred = decimal.NewFromInt(100)

type Line struct {
	SubtotalCents int64
	DiscountCents int64
	TaxCents      int64
	TotalCents    int64
}

type Totals struct {
	SubtotalCents   int64
	DiscountCents   int64
	TaxCents        int64
	GrandTotalCents int64
}

// MulCents returns unitCents*quantity, or ErrAmountOutOfRange when either
// operand is negative or the product exceeds MaxAmountCents.
func MulCents(unitCents int64, quantity int) (int64, error) {
	if unitCents < 0 || quantity < 0 {
		return 0, ErrAmountOutOfRange
	}
	hi, lo := bits.Mul64(uint64(unitCents), uint64(quantity))
	if hi != 0 || lo > uint64(MaxAmountCents) {
		return 0, ErrAmountOutOfRange
	}
	return int64(lo), nil
}

// AddCents sums non-negative amounts, failing once the running total passes
// MaxAmountCents.
func AddCents(amounts ...int64) (int64, error) {
	var total int64
	for _, amount := range amounts {
		if amount < 0 || amount > MaxAmountCents-total {
			return 0, ErrAmountOutOfRange
		}
		total += amount
	}
	return total, nil
}

// LineTotal applies the percentage discount to the line subtotal first and
// taxes what remains. Percentages are expected in [0, 100].
func LineTotal(unitPriceCents int64, quantity int, discountPercent float64, taxPercent float64) (Line, error) {
	subtotal, err := MulCents(unitPriceCents, quantity)
	if err != nil {
		return Line{}, err
	}
	discount := PercentOf(subtotal, discountPercent)
	afterDiscount := subtotal - discount
	tax := PercentOf(afterDiscount, taxPercent)

	return Line{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TaxCents:      tax,
		TotalCents:    afterDiscount + tax,
	}, nil
}

// SaleTotals sums the rounded line components. Any column passing
// MaxAmountCents is ErrAmountOutOfRange.
func SaleTotals(lines []Line) (Totals, error) {
	var totals Totals
	var err error
	for _, line := range lines {
		if totals.SubtotalCents, err = AddCents(totals.SubtotalCents, line.SubtotalCents); err != nil {
			return Totals{}, err
		}
		if totals.DiscountCents, err = AddCents(totals.DiscountCents, line.DiscountCents); err != nil {
			return Totals{}, err
		}
		if totals.TaxCents, err = AddCents(totals.TaxCents, line.TaxCents); err != nil {
			return Totals{}, err
		}
		if totals.GrandTotalCents, err = AddCents(totals.GrandTotalCents, line.TotalCents); err != nil {
			return Totals{}, err
		}
	}
	return totals, nil
}

func ChangeDue(amountPaidCents int64, grandTotalCents int64) int64 {
	if amountPaidCents <= grandTotalCents {
		return 0
	}
	return amountPaidCents - grandTotalCents
}

// PercentOf returns percent% of cents rounded to a whole cent.
func PercentOf(cents int64, percent float64) int64 {
	if cents == 0 || percent == 0 {
		return 0
	}
	return decimal.NewFromInt(cents).
		Mul(decimal.NewFromFloat(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// DiscountedPrice is the catalogue display price. A fixed discount is an
// amount in major units; it is only used for display, checkout lines are
// always discounted by percentage.
func DiscountedPrice(priceCents int64, discount float64, discountType string) int64 {
	if discountType == "fixed" {
		off := decimal.NewFromFloat(discount).Mul(hundred).Round(0).IntPart()
		if off >= priceCents {
			return 0
		}
		return priceCents - off
	}
	return priceCents - PercentOf(priceCents, discount)
}

// Format renders cents as a currency string, e.g. Format(2835, "$") == "$28.35".
func Format(cents int64, symbol string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + symbol + decimal.New(cents, -2).StringFixed(2)
}

// LoyaltyPoints awards pointsPerUnit for every whole major unit spent.
func LoyaltyPoints(grandTotalCents int64, pointsPerUnit float64) int64 {
	if grandTotalCents <= 0 || pointsPerUnit <= 0 {
		return 0
	}
	return decimal.New(grandTotalCents, -2).
		Mul(decimal.NewFromFloat(pointsPerUnit)).
		Floor().
		IntPart()
}
