package purchasing

import (
	"errors"
	"time"
)

// AffectationState is the one-way lifecycle of a purchase order.
type AffectationState string

const (
	// StatePending is the initial state: the order can still be edited.
	StatePending AffectationState = "PENDING"
	// StateAffected is terminal: costs and quantities have been applied to
	// inventory valuation and the ledger.
	StateAffected AffectationState = "AFFECTED"
)

// PurchaseOrder models an incoming purchase. The four expense aggregates and
// the two exchange rates are nil until captured; affectation requires the
// expenses to be present and at least one usable rate.
type PurchaseOrder struct {
	ID            int64
	Number        string
	Supplier      string
	OrderDate     time.Time
	ImportRate    *float64
	DayRate       *float64
	DiscountTotal *float64
	Freight       *float64
	ImportDuties  *float64
	OtherCosts    *float64
	State         AffectationState
	AffectedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PurchaseLine is one heterogeneous line item. The product is referenced by
// id when known, otherwise resolved (or bootstrapped) by name at affectation.
type PurchaseLine struct {
	ID          int64
	POID        int64
	ProductID   int64
	ProductName string
	Qty         float64
	UnitCost    float64
}

// Expenses groups the aggregate costs prorated across line items.
type Expenses struct {
	Discount float64
	Freight  float64
	Duties   float64
	Other    float64
}

// Net returns the allocatable expense: the discount reduces the net cost.
func (e Expenses) Net() float64 {
	return -e.Discount + e.Freight + e.Duties + e.Other
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
	// ErrNotFound indicates a missing purchase order.
	ErrNotFound = errors.New("purchasing: purchase order not found")
	// ErrAlreadyAffected occurs when the affectation transition is re-invoked.
	ErrAlreadyAffected = errors.New("purchasing: order already affected")
	// ErrAffectedImmutable occurs on attempts to modify or delete an affected order.
	ErrAffectedImmutable = errors.New("purchasing: affected order is immutable")
	// ErrMissingExpenses occurs when affectation runs before expenses are captured.
	ErrMissingExpenses = errors.New("purchasing: expense fields missing")
	// ErrZeroGross occurs when line items sum to a zero gross value.
	ErrZeroGross = errors.New("purchasing: gross value is zero, cannot prorate")
	// ErrMissingExchangeRate occurs when neither the import rate nor the
	// order-day rate is usable. Affectation fails closed rather than costing
	// inventory at an implicit rate of 1.
	ErrMissingExchangeRate = errors.New("purchasing: no usable exchange rate")
)
