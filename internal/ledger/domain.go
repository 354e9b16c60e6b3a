package ledger

import (
	"errors"
	"fmt"
	"time"
)

// Direction of an inventory movement.
type Direction string

const (
	// DirectionIn represents an inbound movement.
	DirectionIn Direction = "IN"
	// DirectionOut represents an outbound movement.
	DirectionOut Direction = "OUT"
)

// InventoryReason tags why an inventory entry was written.
type InventoryReason string

const (
	ReasonPurchase         InventoryReason = "PURCHASE"
	ReasonSale             InventoryReason = "SALE"
	ReasonSaleCancellation InventoryReason = "SALE_CANCELLATION"
	ReasonManualAdjustment InventoryReason = "MANUAL_ADJUSTMENT"
)

// ClientReason tags why a client account entry was written.
type ClientReason string

const (
	ReasonCharge      ClientReason = "CHARGE"
	ReasonPayment     ClientReason = "PAYMENT"
	ReasonCreditGrant ClientReason = "CREDIT_GRANT"
)

// InventoryEntry is one immutable inventory movement. Seq is assigned by the
// store and is strictly monotonic, so (OccurredAt, Seq) is a total order even
// when two entries share a timestamp.
type InventoryEntry struct {
	Seq        int64
	ProductID  int64
	Direction  Direction
	Qty        float64
	UnitCost   float64
	Reason     InventoryReason
	Reference  string
	OccurredAt time.Time
}

// ClientEntry is one immutable client account movement. Amount is signed:
// positive increases the client's debt, negative is a payment or credit.
type ClientEntry struct {
	Seq        int64
	ClientID   int64
	Amount     float64
	Reason     ClientReason
	Reference  string
	OccurredAt time.Time
}

// ErrUnknownReason indicates a reason tag outside the supported set.
var ErrUnknownReason = errors.New("ledger: unknown entry reason")

// ErrInvalidEntry indicates an entry that must not be appended.
var ErrInvalidEntry = errors.New("ledger: invalid entry")

// Signed returns the signed quantity of an inventory entry.
func (e InventoryEntry) Signed() (float64, error) {
	switch e.Direction {
	case DirectionIn:
		return e.Qty, nil
	case DirectionOut:
		return -e.Qty, nil
	default:
		return 0, fmt.Errorf("%w: direction %q", ErrInvalidEntry, e.Direction)
	}
}

// Validate rejects entries that would corrupt the ledger before any write.
func (e InventoryEntry) Validate() error {
	if e.ProductID == 0 {
		return fmt.Errorf("%w: product required", ErrInvalidEntry)
	}
	if e.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidEntry)
	}
	if e.UnitCost < 0 {
		return fmt.Errorf("%w: unit cost must be >= 0", ErrInvalidEntry)
	}
	if e.Direction != DirectionIn && e.Direction != DirectionOut {
		return fmt.Errorf("%w: direction %q", ErrInvalidEntry, e.Direction)
	}
	switch e.Reason {
	case ReasonPurchase, ReasonSale, ReasonSaleCancellation, ReasonManualAdjustment:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReason, e.Reason)
	}
	return nil
}

// Validate rejects client entries that would corrupt the ledger.
func (e ClientEntry) Validate() error {
	if e.ClientID == 0 {
		return fmt.Errorf("%w: client required", ErrInvalidEntry)
	}
	if e.Amount == 0 {
		return fmt.Errorf("%w: amount must be non zero", ErrInvalidEntry)
	}
	switch e.Reason {
	case ReasonCharge:
		if e.Amount < 0 {
			return fmt.Errorf("%w: charge must be positive", ErrInvalidEntry)
		}
	case ReasonPayment, ReasonCreditGrant:
		if e.Amount > 0 {
			return fmt.Errorf("%w: %s must be negative", ErrInvalidEntry, e.Reason)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownReason, e.Reason)
	}
	return nil
}

// ParseInventoryReason maps a stored tag back to the enum.
func ParseInventoryReason(s string) (InventoryReason, error) {
	switch InventoryReason(s) {
	case ReasonPurchase, ReasonSale, ReasonSaleCancellation, ReasonManualAdjustment:
		return InventoryReason(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReason, s)
}

// ParseClientReason maps a stored tag back to the enum.
func ParseClientReason(s string) (ClientReason, error) {
	switch ClientReason(s) {
	case ReasonCharge, ReasonPayment, ReasonCreditGrant:
		return ClientReason(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownReason, s)
}
