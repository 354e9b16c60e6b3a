package purchasing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocatedLine is the costing result for one line item.
type AllocatedLine struct {
	Proportion         float64
	Allocated          float64
	FinalUnitCostUSD   float64
	FinalUnitCostLocal float64
}

// Allocate prorates the order's net expense across line items proportional to
// each line's gross value, then derives final unit costs in both currencies.
//
// Arithmetic runs on decimals so the allocation is conserving: the rounding
// remainder of the division lands on the last line, and the allocated parts
// sum exactly to the net expense.
func Allocate(lines []PurchaseLine, expenses Expenses, rate float64) ([]AllocatedLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no line items", ErrValidation)
	}
	if rate <= 0 {
		return nil, ErrMissingExchangeRate
	}

	gross := decimal.Zero
	for i, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("%w: line %d qty must be positive", ErrValidation, i+1)
		}
		if line.UnitCost < 0 {
			return nil, fmt.Errorf("%w: line %d unit cost must be >= 0", ErrValidation, i+1)
		}
		gross = gross.Add(decimal.NewFromFloat(line.Qty).Mul(decimal.NewFromFloat(line.UnitCost)))
	}
	if gross.IsZero() {
		return nil, ErrZeroGross
	}

	net := decimal.NewFromFloat(expenses.Net())
	rateDec := decimal.NewFromFloat(rate)

	allocated := make([]AllocatedLine, len(lines))
	distributed := decimal.Zero
	for i, line := range lines {
		qty := decimal.NewFromFloat(line.Qty)
		lineGross := qty.Mul(decimal.NewFromFloat(line.UnitCost))
		proportion := lineGross.Div(gross)

		var share decimal.Decimal
		if i == len(lines)-1 {
			share = net.Sub(distributed)
		} else {
			share = proportion.Mul(net)
			distributed = distributed.Add(share)
		}

		finalUSD := decimal.NewFromFloat(line.UnitCost).Add(share.Div(qty))
		allocated[i] = AllocatedLine{
			Proportion:         proportion.InexactFloat64(),
			Allocated:          share.InexactFloat64(),
			FinalUnitCostUSD:   finalUSD.InexactFloat64(),
			FinalUnitCostLocal: finalUSD.Mul(rateDec).InexactFloat64(),
		}
	}
	return allocated, nil
}

// ResolveExchangeRate applies the fallback chain: import-specific rate, then
// order-day rate. With neither present the order cannot be affected.
func ResolveExchangeRate(importRate, dayRate *float64) (float64, error) {
	if importRate != nil && *importRate > 0 {
		return *importRate, nil
	}
	if dayRate != nil && *dayRate > 0 {
		return *dayRate, nil
	}
	return 0, ErrMissingExchangeRate
}
