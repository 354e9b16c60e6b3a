package clients

import (
	"errors"
	"time"
)

// Client carries the cached account balance. Positive balance means the
// client owes the store, negative means credit in the client's favour. The
// balance is a projection of the client ledger guarded by Version.
type Client struct {
	ID        int64
	Name      string
	Balance   float64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentInput registers an "abono": money received against the client's debt.
type PaymentInput struct {
	ClientID  int64
	Amount    float64
	Reference string
	ActorID   int64
}

// CreditGrantInput records a discretionary credit in the client's favour.
type CreditGrantInput struct {
	ClientID  int64
	Amount    float64
	Reference string
	ActorID   int64
}

// Divergence reports a balance projection that no longer matches its ledger fold.
type Divergence struct {
	EntityID  int64   `json:"entity_id"`
	Projected float64 `json:"projected"`
	Folded    float64 `json:"folded"`
}

var (
	// ErrClientNotFound indicates a missing client row.
	ErrClientNotFound = errors.New("clients: client not found")
	// ErrInvalidAmount indicates a non-positive payment or credit amount.
	ErrInvalidAmount = errors.New("clients: amount must be positive")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("clients: invalid input")
)
