package sales

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error)
	ListSales(ctx context.Context, limit int) ([]Sale, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts sales and handles cancellation compensation.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs sales service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// CreateSale posts a sale: one OUT ledger entry per line at the product's
// current weighted-average cost, the stock projection decrement, the sale
// rows, and for credit sales the client charge, all in one transaction.
func (s *Service) CreateSale(ctx context.Context, input CreateSaleInput) (Sale, error) {
	if len(input.Lines) == 0 {
		return Sale{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if input.Method != MethodCash && input.Method != MethodCredit {
		return Sale{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, input.Method)
	}
	if input.Method == MethodCredit && input.ClientID == 0 {
		return Sale{}, fmt.Errorf("%w: credit sale requires a client", ErrValidation)
	}
	if input.DownPayment < 0 {
		return Sale{}, fmt.Errorf("%w: down payment must be >= 0", ErrValidation)
	}
	var total float64
	for i, line := range input.Lines {
		if line.ProductID == 0 {
			return Sale{}, fmt.Errorf("%w: line %d needs a product", ErrValidation, i+1)
		}
		if line.Qty <= 0 {
			return Sale{}, fmt.Errorf("%w: line %d qty must be positive", ErrValidation, i+1)
		}
		if line.UnitPrice < 0 {
			return Sale{}, fmt.Errorf("%w: line %d unit price must be >= 0", ErrValidation, i+1)
		}
		total += line.Qty * line.UnitPrice
	}
	if input.DownPayment > total {
		return Sale{}, fmt.Errorf("%w: down payment exceeds total", ErrValidation)
	}
	number := input.Number
	if number == "" {
		number = fmt.Sprintf("SALE-%d", time.Now().UnixNano())
	}

	key := fmt.Sprintf("SALE:%s", number)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "sales.post"); err != nil {
			return Sale{}, err
		}
		insertedKey = true
	}

	sale := Sale{Number: number, ClientID: input.ClientID, Method: input.Method, Total: total, DownPayment: input.DownPayment}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		saleID, err := tx.CreateSale(ctx, sale)
		if err != nil {
			return err
		}
		sale.ID = saleID

		for _, line := range input.Lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			newStock := product.QuantityOnHand - line.Qty
			if newStock < -1e-4 {
				return inventory.ErrNegativeStock
			}
			if math.Abs(newStock) < 1e-4 {
				newStock = 0
			}
			after := inventory.Valuation{Stock: newStock, CostUSD: product.UnitCostUSD, CostLocal: product.UnitCostLocal}
			if err := tx.WriteProjection(ctx, product.ID, after, product.Version); err != nil {
				return err
			}
			if _, err := tx.AppendInventory(ctx, ledger.InventoryEntry{
				ProductID: product.ID,
				Direction: ledger.DirectionOut,
				Qty:       line.Qty,
				UnitCost:  product.UnitCostUSD,
				Reason:    ledger.ReasonSale,
				Reference: number,
			}); err != nil {
				return err
			}
			if _, err := tx.InsertLine(ctx, SaleLine{
				SaleID:      saleID,
				ProductID:   line.ProductID,
				Qty:         line.Qty,
				UnitPrice:   line.UnitPrice,
				UnitCostUSD: product.UnitCostUSD,
			}); err != nil {
				return err
			}
		}

		if input.Method == MethodCredit {
			charge := total - input.DownPayment
			if charge > 0 {
				if _, err := clients.ApplyEntry(ctx, tx, ledger.ClientEntry{
					ClientID:  input.ClientID,
					Amount:    charge,
					Reason:    ledger.ReasonCharge,
					Reference: number,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Sale{}, err
	}

	s.recordAudit(ctx, input.ActorID, "SALE_POST", sale.ID, map[string]any{"number": number, "total": total})
	return sale, nil
}

// Cancel compensates a sale: for every sold line one IN entry with reason
// SaleCancellation and the originally sold quantity, valued at the product's
// current weighted-average cost rather than the cost at sale time. The client
// charge of a credit sale is intentionally left standing; reversing it is an
// explicit, separate credit-grant decision.
func (s *Service) Cancel(ctx context.Context, saleID int64, actorID int64) (Sale, error) {
	sale, _, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return Sale{}, err
	}
	if sale.Cancelled {
		return Sale{}, ErrAlreadyCancelled
	}

	key := fmt.Sprintf("SALE-CANCEL:%s", sale.Number)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "sales.cancel"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Sale{}, ErrAlreadyCancelled
			}
			return Sale{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	var cancelled Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, lines, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.Cancelled {
			return ErrAlreadyCancelled
		}
		for _, line := range lines {
			product, err := tx.GetProductForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			before := inventory.Valuation{Stock: product.QuantityOnHand, CostUSD: product.UnitCostUSD, CostLocal: product.UnitCostLocal}
			after, err := inventory.Merge(before, line.Qty, product.UnitCostUSD, product.UnitCostLocal)
			if err != nil {
				return err
			}
			if err := tx.WriteProjection(ctx, product.ID, after, product.Version); err != nil {
				return err
			}
			if _, err := tx.AppendInventory(ctx, ledger.InventoryEntry{
				ProductID: product.ID,
				Direction: ledger.DirectionIn,
				Qty:       line.Qty,
				UnitCost:  product.UnitCostUSD,
				Reason:    ledger.ReasonSaleCancellation,
				Reference: sale.Number,
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkCancelled(ctx, saleID, now); err != nil {
			return err
		}
		cancelled = sale
		cancelled.Cancelled = true
		cancelled.CancelledAt = &now
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Sale{}, err
	}

	s.recordAudit(ctx, actorID, "SALE_CANCEL", saleID, map[string]any{"number": cancelled.Number})
	return cancelled, nil
}

// GetSale loads one sale with lines.
func (s *Service) GetSale(ctx context.Context, saleID int64) (Sale, []SaleLine, error) {
	return s.repo.GetSale(ctx, saleID)
}

// ListSales lists sales.
func (s *Service) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	return s.repo.ListSales(ctx, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "sales", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
