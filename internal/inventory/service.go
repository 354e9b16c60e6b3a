package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/shared"
)

// TxOps bundles what a movement needs inside one transaction: the product
// projection and the append-only ledger.
type TxOps interface {
	TxProjection
	AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxOps) error) error
	GetProduct(ctx context.Context, productID int64) (Product, error)
	ListProducts(ctx context.Context, limit int) ([]Product, error)
}

// LedgerPort exposes ledger reads used by the service.
type LedgerPort interface {
	ListInventoryByProduct(ctx context.Context, productID int64, limit int) ([]ledger.InventoryEntry, error)
	FoldInventoryStock(ctx context.Context, productID int64) (float64, error)
	InventoryProductIDs(ctx context.Context) ([]int64, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory valuation and movements.
type Service struct {
	repo        RepositoryPort
	ledger      LedgerPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledgerRepo LedgerPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, ledger: ledgerRepo, audit: audit, idempotency: idem}
}

// StockLine pairs a ledger entry with the running stock after applying it.
type StockLine struct {
	Entry      ledger.InventoryEntry
	RunningQty float64
}

// PostAdjustment applies a manual stock adjustment: ledger append plus
// projection update in a single transaction.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (Product, error) {
	if input.ProductID == 0 {
		return Product{}, errors.New("inventory: product required")
	}
	if math.Abs(input.Qty) < 1e-9 {
		return Product{}, ErrInvalidQuantity
	}
	if input.Qty > 0 && (input.UnitCostUSD < 0 || input.UnitCostLocal < 0) {
		return Product{}, ErrInvalidUnitCost
	}

	reference := input.Reference
	if reference == "" {
		reference = fmt.Sprintf("ADJ-%s", uuid.New().String())
	}
	key := fmt.Sprintf("ADJ:%d:%s", input.ProductID, reference)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory.adjust"); err != nil {
			return Product{}, err
		}
		insertedKey = true
	}

	var updated Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxOps) error {
		product, err := tx.GetProductForUpdate(ctx, input.ProductID)
		if err != nil {
			return err
		}
		before := Valuation{Stock: product.QuantityOnHand, CostUSD: product.UnitCostUSD, CostLocal: product.UnitCostLocal}

		var after Valuation
		entry := ledger.InventoryEntry{
			ProductID: product.ID,
			Qty:       math.Abs(input.Qty),
			Reason:    ledger.ReasonManualAdjustment,
			Reference: reference,
		}
		if input.Qty > 0 {
			entry.Direction = ledger.DirectionIn
			entry.UnitCost = input.UnitCostUSD
			after, err = Merge(before, input.Qty, input.UnitCostUSD, input.UnitCostLocal)
			if err != nil {
				return err
			}
		} else {
			entry.Direction = ledger.DirectionOut
			entry.UnitCost = product.UnitCostUSD
			newStock := before.Stock + input.Qty
			if newStock < -1e-4 {
				return ErrNegativeStock
			}
			if math.Abs(newStock) < 1e-4 {
				newStock = 0
			}
			after = Valuation{Stock: newStock, CostUSD: before.CostUSD, CostLocal: before.CostLocal}
		}

		if _, err := tx.AppendInventory(ctx, entry); err != nil {
			return err
		}
		if err := tx.WriteProjection(ctx, product.ID, after, product.Version); err != nil {
			return err
		}
		updated = product
		updated.QuantityOnHand = after.Stock
		updated.UnitCostUSD = after.CostUSD
		updated.UnitCostLocal = after.CostLocal
		updated.Version = product.Version + 1
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Product{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:ADJUST",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", input.ProductID),
			Meta: map[string]any{
				"qty":       input.Qty,
				"reference": reference,
			},
		})
	}
	return updated, nil
}

// GetProduct returns the cached projection for one product.
func (s *Service) GetProduct(ctx context.Context, productID int64) (Product, error) {
	return s.repo.GetProduct(ctx, productID)
}

// ListProducts returns product projections.
func (s *Service) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	return s.repo.ListProducts(ctx, limit)
}

// StockCard replays a product's ledger in order, emitting the running stock
// after each movement.
func (s *Service) StockCard(ctx context.Context, productID int64, limit int) ([]StockLine, error) {
	if productID == 0 {
		return nil, errors.New("inventory: product required")
	}
	entries, err := s.ledger.ListInventoryByProduct(ctx, productID, limit)
	if err != nil {
		return nil, err
	}
	ledger.SortInventory(entries)
	lines := make([]StockLine, 0, len(entries))
	var running float64
	for _, e := range entries {
		signed, err := e.Signed()
		if err != nil {
			return nil, err
		}
		running += signed
		lines = append(lines, StockLine{Entry: e, RunningQty: running})
	}
	return lines, nil
}

// Reconcile recomputes every product's stock from its ledger fold and compares
// it with the cached projection. Any mismatch is returned alongside
// shared.ErrProjectionDivergence so callers surface an inconsistent-state
// error instead of silent success.
func (s *Service) Reconcile(ctx context.Context) ([]Divergence, error) {
	ids, err := s.ledger.InventoryProductIDs(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	divergences := []Divergence{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		g.Go(func() error {
			folded, err := s.ledger.FoldInventoryStock(gctx, id)
			if err != nil {
				return err
			}
			var projected float64
			product, err := s.repo.GetProduct(gctx, id)
			switch {
			case err == nil:
				projected = product.QuantityOnHand
			case errors.Is(err, ErrProductNotFound):
				projected = 0
			default:
				return err
			}
			if math.Abs(projected-folded) > 1e-6 {
				mu.Lock()
				divergences = append(divergences, Divergence{EntityID: id, Projected: projected, Folded: folded})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(divergences, func(i, j int) bool { return divergences[i].EntityID < divergences[j].EntityID })
	if len(divergences) > 0 {
		return divergences, fmt.Errorf("%w: %d products affected", shared.ErrProjectionDivergence, len(divergences))
	}
	return divergences, nil
}
