package sales

import (
	"errors"
	"time"
)

// PaymentMethod of a sale.
type PaymentMethod string

const (
	// MethodCash settles immediately; no client ledger entry is written.
	MethodCash PaymentMethod = "CASH"
	// MethodCredit charges the client account for the open amount.
	MethodCredit PaymentMethod = "CREDIT"
)

// Sale header. Cancellation never deletes anything: it flags the sale and
// appends compensating inventory entries.
type Sale struct {
	ID          int64
	Number      string
	ClientID    int64
	Method      PaymentMethod
	Total       float64
	DownPayment float64
	Cancelled   bool
	CancelledAt *time.Time
	CreatedAt   time.Time
}

// SaleLine records quantity, sale price and the cost basis (weighted-average
// unit cost at sale time) per product.
type SaleLine struct {
	ID          int64
	SaleID      int64
	ProductID   int64
	Qty         float64
	UnitPrice   float64
	UnitCostUSD float64
}

// CreateSaleInput describes a sale request.
type CreateSaleInput struct {
	Number      string
	ClientID    int64
	Method      PaymentMethod
	DownPayment float64
	ActorID     int64
	Lines       []SaleLineInput
}

// SaleLineInput is one requested line.
type SaleLineInput struct {
	ProductID int64
	Qty       float64
	UnitPrice float64
}

var (
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("sales: invalid input")
	// ErrNotFound indicates a missing sale.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrAlreadyCancelled occurs when cancellation is re-invoked.
	ErrAlreadyCancelled = errors.New("sales: sale already cancelled")
)
