package inventory

import "fmt"

// Valuation is the (stock, weighted-average cost) pair for one product, in
// both currencies.
type Valuation struct {
	Stock     float64
	CostUSD   float64
	CostLocal float64
}

// Merge blends an existing valuation with an incoming receipt into a new
// weighted average:
//
//	new_cost = (stock*cost + qty_in*cost_in) / (stock + qty_in)
//
// A zero-stock valuation degenerates to the incoming cost, which also covers
// freshly bootstrapped products. The merged cost always lies between the two
// operand costs when both are positive.
func Merge(before Valuation, qtyIn, costInUSD, costInLocal float64) (Valuation, error) {
	if qtyIn <= 0 {
		return Valuation{}, fmt.Errorf("%w: incoming qty %.4f", ErrInvalidQuantity, qtyIn)
	}
	if costInUSD < 0 || costInLocal < 0 {
		return Valuation{}, ErrInvalidUnitCost
	}
	if before.Stock < 0 {
		return Valuation{}, fmt.Errorf("%w: stock before merge %.4f", ErrNegativeStock, before.Stock)
	}
	newStock := before.Stock + qtyIn
	return Valuation{
		Stock:     newStock,
		CostUSD:   (before.Stock*before.CostUSD + qtyIn*costInUSD) / newStock,
		CostLocal: (before.Stock*before.CostLocal + qtyIn*costInLocal) / newStock,
	}, nil
}
