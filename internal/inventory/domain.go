package inventory

import (
	"errors"
	"time"
)

// Product is the cached valuation state per product. QuantityOnHand and the
// two unit costs are a projection of the inventory ledger; Version guards
// every write against concurrent read-modify-write races.
type Product struct {
	ID             int64
	Name           string
	QuantityOnHand float64
	UnitCostUSD    float64
	UnitCostLocal  float64
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AdjustmentInput describes a manual stock adjustment request. Positive Qty
// receives stock at the given unit costs; negative Qty issues stock at the
// product's current weighted average.
type AdjustmentInput struct {
	ProductID     int64
	Qty           float64
	UnitCostUSD   float64
	UnitCostLocal float64
	Reference     string
	ActorID       int64
}

// Divergence reports a projection that no longer matches its ledger fold.
type Divergence struct {
	EntityID  int64   `json:"entity_id"`
	Projected float64 `json:"projected"`
	Folded    float64 `json:"folded"`
}

// ErrNegativeStock triggered when a movement would leave qty below zero.
var ErrNegativeStock = errors.New("inventory: negative stock not allowed")

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = errors.New("inventory: quantity must be non zero")

// ErrInvalidUnitCost indicates invalid cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("inventory: product not found")
