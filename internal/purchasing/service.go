package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error)
	ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates purchase costing and affectation.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs purchasing service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// CreatePOInput describes creation payload.
type CreatePOInput struct {
	Number        string
	Supplier      string
	OrderDate     time.Time
	ImportRate    *float64
	DayRate       *float64
	DiscountTotal *float64
	Freight       *float64
	ImportDuties  *float64
	OtherCosts    *float64
	Lines         []LineInput
}

// LineInput describes one requested line item.
type LineInput struct {
	ProductID   int64
	ProductName string
	Qty         float64
	UnitCost    float64
}

// ExpensesInput finalises the order's aggregate costs before affectation.
type ExpensesInput struct {
	ImportRate    *float64
	DayRate       *float64
	DiscountTotal *float64
	Freight       *float64
	ImportDuties  *float64
	OtherCosts    *float64
}

// CreatePurchaseOrder persists header and lines in Pending state.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: minimal 1 line", ErrValidation)
	}
	if input.Supplier == "" {
		return PurchaseOrder{}, fmt.Errorf("%w: supplier required", ErrValidation)
	}
	for i, line := range input.Lines {
		if line.ProductID == 0 && line.ProductName == "" {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d needs product id or name", ErrValidation, i+1)
		}
		if line.Qty <= 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d qty must be positive", ErrValidation, i+1)
		}
		if line.UnitCost < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: line %d unit cost must be >= 0", ErrValidation, i+1)
		}
	}
	if err := validateExpensePointers(input.ImportRate, input.DayRate, input.DiscountTotal, input.Freight, input.ImportDuties, input.OtherCosts); err != nil {
		return PurchaseOrder{}, err
	}
	if input.Number == "" {
		input.Number = generateNumber("PO")
	}
	po := PurchaseOrder{
		Number:        input.Number,
		Supplier:      input.Supplier,
		OrderDate:     defaultTime(input.OrderDate),
		ImportRate:    input.ImportRate,
		DayRate:       input.DayRate,
		DiscountTotal: input.DiscountTotal,
		Freight:       input.Freight,
		ImportDuties:  input.ImportDuties,
		OtherCosts:    input.OtherCosts,
		State:         StatePending,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		poID, err := tx.CreatePO(ctx, po)
		if err != nil {
			return err
		}
		po.ID = poID
		for _, line := range input.Lines {
			if _, err := tx.InsertLine(ctx, PurchaseLine{POID: poID, ProductID: line.ProductID, ProductName: line.ProductName, Qty: line.Qty, UnitCost: line.UnitCost}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, "PO_CREATE", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// UpdateExpenses captures or corrects expense fields while the order is Pending.
func (s *Service) UpdateExpenses(ctx context.Context, poID int64, input ExpensesInput) (PurchaseOrder, error) {
	if err := validateExpensePointers(input.ImportRate, input.DayRate, input.DiscountTotal, input.Freight, input.ImportDuties, input.OtherCosts); err != nil {
		return PurchaseOrder{}, err
	}
	var updated PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.State != StatePending {
			return ErrAffectedImmutable
		}
		applyExpenses(&po, input)
		if err := tx.SetExpenses(ctx, poID, po); err != nil {
			return err
		}
		updated = po
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	return updated, nil
}

// GetPurchaseOrder loads one order with lines.
func (s *Service) GetPurchaseOrder(ctx context.Context, poID int64) (PurchaseOrder, []PurchaseLine, error) {
	return s.repo.GetPO(ctx, poID)
}

// ListPurchaseOrders lists orders.
func (s *Service) ListPurchaseOrders(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, limit)
}

// Affect consumes the purchase order into inventory valuation and the ledger,
// exactly once. The whole effect runs inside a single transaction: allocation
// per line, valuation merge per product, one Purchase ledger entry per line,
// and the Pending to Affected flip.
func (s *Service) Affect(ctx context.Context, poID int64, actorID int64) (PurchaseOrder, error) {
	po, _, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.State != StatePending {
		return PurchaseOrder{}, ErrAlreadyAffected
	}

	key := fmt.Sprintf("PO-AFFECT:%s", po.Number)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "purchasing.affect"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return PurchaseOrder{}, ErrAlreadyAffected
			}
			return PurchaseOrder{}, err
		}
		insertedKey = true
	}

	now := time.Now().UTC()
	var affected PurchaseOrder
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, lines, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.State != StatePending {
			return ErrAlreadyAffected
		}
		expenses, err := requireExpenses(po)
		if err != nil {
			return err
		}
		rate, err := ResolveExchangeRate(po.ImportRate, po.DayRate)
		if err != nil {
			return err
		}
		allocated, err := Allocate(lines, expenses, rate)
		if err != nil {
			return err
		}

		for i, line := range lines {
			cost := allocated[i]
			if err := s.receiveLine(ctx, tx, po, line, cost); err != nil {
				return err
			}
		}
		if err := tx.MarkAffected(ctx, poID, now); err != nil {
			return err
		}
		affected = po
		affected.State = StateAffected
		affected.AffectedAt = &now
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, "PO_AFFECT", poID, map[string]any{"number": affected.Number, "actor_id": actorID})
	return affected, nil
}

// receiveLine resolves the product, merges its valuation with the allocated
// incoming cost and appends the Purchase ledger entry.
func (s *Service) receiveLine(ctx context.Context, tx TxRepository, po PurchaseOrder, line PurchaseLine, cost AllocatedLine) error {
	var product inventory.Product
	var err error
	if line.ProductID != 0 {
		product, err = tx.GetProductForUpdate(ctx, line.ProductID)
	} else {
		product, err = tx.GetProductByNameForUpdate(ctx, line.ProductName)
	}
	switch {
	case err == nil:
		before := inventory.Valuation{Stock: product.QuantityOnHand, CostUSD: product.UnitCostUSD, CostLocal: product.UnitCostLocal}
		after, err := inventory.Merge(before, line.Qty, cost.FinalUnitCostUSD, cost.FinalUnitCostLocal)
		if err != nil {
			return err
		}
		if err := tx.WriteProjection(ctx, product.ID, after, product.Version); err != nil {
			return err
		}
	case errors.Is(err, inventory.ErrProductNotFound):
		if line.ProductName == "" {
			return fmt.Errorf("%w: product %d", inventory.ErrProductNotFound, line.ProductID)
		}
		product, err = tx.CreateProduct(ctx, line.ProductName, inventory.Valuation{Stock: line.Qty, CostUSD: cost.FinalUnitCostUSD, CostLocal: cost.FinalUnitCostLocal})
		if err != nil {
			return err
		}
	default:
		return err
	}

	_, err = tx.AppendInventory(ctx, ledger.InventoryEntry{
		ProductID: product.ID,
		Direction: ledger.DirectionIn,
		Qty:       line.Qty,
		UnitCost:  cost.FinalUnitCostUSD,
		Reason:    ledger.ReasonPurchase,
		Reference: po.Number,
	})
	return err
}

// Delete removes a Pending order. Affected orders are part of valuation
// history and cannot be deleted.
func (s *Service) Delete(ctx context.Context, poID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		po, _, err := tx.GetPOForUpdate(ctx, poID)
		if err != nil {
			return err
		}
		if po.State == StateAffected {
			return ErrAffectedImmutable
		}
		return tx.DeletePO(ctx, poID)
	})
}

func requireExpenses(po PurchaseOrder) (Expenses, error) {
	if po.DiscountTotal == nil || po.Freight == nil || po.ImportDuties == nil || po.OtherCosts == nil {
		return Expenses{}, ErrMissingExpenses
	}
	return Expenses{Discount: *po.DiscountTotal, Freight: *po.Freight, Duties: *po.ImportDuties, Other: *po.OtherCosts}, nil
}

func validateExpensePointers(values ...*float64) error {
	for _, v := range values {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: expense fields must be >= 0", ErrValidation)
		}
	}
	return nil
}

func applyExpenses(po *PurchaseOrder, input ExpensesInput) {
	if input.ImportRate != nil {
		po.ImportRate = input.ImportRate
	}
	if input.DayRate != nil {
		po.DayRate = input.DayRate
	}
	if input.DiscountTotal != nil {
		po.DiscountTotal = input.DiscountTotal
	}
	if input.Freight != nil {
		po.Freight = input.Freight
	}
	if input.ImportDuties != nil {
		po.ImportDuties = input.ImportDuties
	}
	if input.OtherCosts != nil {
		po.OtherCosts = input.OtherCosts
	}
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "purchasing", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func defaultTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value
}
