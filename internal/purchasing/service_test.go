package purchasing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
)

type memoryPORepo struct {
	pos         map[int64]PurchaseOrder
	lines       map[int64][]PurchaseLine
	products    map[int64]inventory.Product
	byName      map[string]int64
	entries     []ledger.InventoryEntry
	nextPO      int64
	nextLine    int64
	nextProduct int64
	nextSeq     int64
}

func newMemoryPORepo() *memoryPORepo {
	return &memoryPORepo{
		pos:      make(map[int64]PurchaseOrder),
		lines:    make(map[int64][]PurchaseLine),
		products: make(map[int64]inventory.Product),
		byName:   make(map[string]int64),
	}
}

func (r *memoryPORepo) seedProduct(name string, stock, costUSD, costLocal float64) int64 {
	r.nextProduct++
	r.products[r.nextProduct] = inventory.Product{
		ID: r.nextProduct, Name: name,
		QuantityOnHand: stock, UnitCostUSD: costUSD, UnitCostLocal: costLocal,
	}
	r.byName[name] = r.nextProduct
	return r.nextProduct
}

func (r *memoryPORepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryPOTx{repo: r})
}

func (r *memoryPORepo) GetPO(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, nil, ErrNotFound
	}
	return po, append([]PurchaseLine(nil), r.lines[id]...), nil
}

func (r *memoryPORepo) ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	orders := make([]PurchaseOrder, 0, len(r.pos))
	for _, po := range r.pos {
		orders = append(orders, po)
	}
	return orders, nil
}

type memoryPOTx struct {
	repo *memoryPORepo
}

func (t *memoryPOTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error) {
	return t.repo.GetPO(ctx, id)
}

func (t *memoryPOTx) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	t.repo.nextPO++
	po.ID = t.repo.nextPO
	t.repo.pos[po.ID] = po
	return po.ID, nil
}

func (t *memoryPOTx) InsertLine(ctx context.Context, line PurchaseLine) (int64, error) {
	t.repo.nextLine++
	line.ID = t.repo.nextLine
	t.repo.lines[line.POID] = append(t.repo.lines[line.POID], line)
	return line.ID, nil
}

func (t *memoryPOTx) SetExpenses(ctx context.Context, id int64, po PurchaseOrder) error {
	stored, ok := t.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	stored.ImportRate, stored.DayRate = po.ImportRate, po.DayRate
	stored.DiscountTotal, stored.Freight = po.DiscountTotal, po.Freight
	stored.ImportDuties, stored.OtherCosts = po.ImportDuties, po.OtherCosts
	t.repo.pos[id] = stored
	return nil
}

func (t *memoryPOTx) MarkAffected(ctx context.Context, id int64, at time.Time) error {
	po, ok := t.repo.pos[id]
	if !ok {
		return ErrNotFound
	}
	if po.State != StatePending {
		return ErrAlreadyAffected
	}
	po.State = StateAffected
	po.AffectedAt = &at
	t.repo.pos[id] = po
	return nil
}

func (t *memoryPOTx) DeletePO(ctx context.Context, id int64) error {
	delete(t.repo.pos, id)
	delete(t.repo.lines, id)
	return nil
}

func (t *memoryPOTx) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (t *memoryPOTx) GetProductByNameForUpdate(ctx context.Context, name string) (inventory.Product, error) {
	id, ok := t.repo.byName[name]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return t.repo.products[id], nil
}

func (t *memoryPOTx) CreateProduct(ctx context.Context, name string, val inventory.Valuation) (inventory.Product, error) {
	id := t.repo.seedProduct(name, val.Stock, val.CostUSD, val.CostLocal)
	return t.repo.products[id], nil
}

func (t *memoryPOTx) WriteProjection(ctx context.Context, productID int64, val inventory.Valuation, expectedVersion int64) error {
	p, ok := t.repo.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if p.Version != expectedVersion {
		return inventory.ErrVersionConflict
	}
	p.QuantityOnHand, p.UnitCostUSD, p.UnitCostLocal = val.Stock, val.CostUSD, val.CostLocal
	p.Version++
	t.repo.products[productID] = p
	return nil
}

func (t *memoryPOTx) AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	t.repo.nextSeq++
	entry.Seq = t.repo.nextSeq
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	t.repo.entries = append(t.repo.entries, entry)
	return entry.Seq, nil
}

func seedPendingPO(t *testing.T, svc *Service, mugID int64, expenses ExpensesInput) PurchaseOrder {
	t.Helper()
	po, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{
		Number:        "PO-TEST-1",
		Supplier:      "Importadora Pacifico",
		DayRate:       expenses.DayRate,
		DiscountTotal: expenses.DiscountTotal,
		Freight:       expenses.Freight,
		ImportDuties:  expenses.ImportDuties,
		OtherCosts:    expenses.OtherCosts,
		Lines: []LineInput{
			{ProductID: mugID, Qty: 10, UnitCost: 2},
			{ProductName: "Stainless Bottle", Qty: 5, UnitCost: 4},
		},
	})
	require.NoError(t, err)
	return po
}

func fullExpenses() ExpensesInput {
	return ExpensesInput{
		DayRate:       f64(36.5),
		DiscountTotal: f64(0),
		Freight:       f64(10),
		ImportDuties:  f64(6),
		OtherCosts:    f64(0),
	}
}

func TestAffectMergesValuationAndAppendsLedger(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 10, 2.00, 73)
	svc := NewService(repo, nil, nil)

	po := seedPendingPO(t, svc, mugID, fullExpenses())

	affected, err := svc.Affect(context.Background(), po.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StateAffected, affected.State)
	require.NotNil(t, affected.AffectedAt)

	// Mug: 10 on hand at 2.00 merged with 10 incoming at 2.80 gives 2.40.
	mug := repo.products[mugID]
	require.InDelta(t, 20, mug.QuantityOnHand, 1e-9)
	require.InDelta(t, 2.40, mug.UnitCostUSD, 1e-9)
	require.Equal(t, int64(1), mug.Version)

	// Bottle did not exist and is bootstrapped at its allocated cost.
	bottleID, ok := repo.byName["Stainless Bottle"]
	require.True(t, ok)
	bottle := repo.products[bottleID]
	require.InDelta(t, 5, bottle.QuantityOnHand, 1e-9)
	require.InDelta(t, 5.60, bottle.UnitCostUSD, 1e-9)
	require.InDelta(t, 5.60*36.5, bottle.UnitCostLocal, 1e-9)

	require.Len(t, repo.entries, 2)
	for _, e := range repo.entries {
		require.Equal(t, ledger.DirectionIn, e.Direction)
		require.Equal(t, ledger.ReasonPurchase, e.Reason)
		require.Equal(t, po.Number, e.Reference)
	}
}

func TestAffectIsOneWay(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 0, 0, 0)
	svc := NewService(repo, nil, nil)

	po := seedPendingPO(t, svc, mugID, fullExpenses())

	_, err := svc.Affect(context.Background(), po.ID, 1)
	require.NoError(t, err)

	_, err = svc.Affect(context.Background(), po.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyAffected)

	// The second attempt must not double the stock.
	require.InDelta(t, 10, repo.products[mugID].QuantityOnHand, 1e-9)
	require.Len(t, repo.entries, 2)
}

func TestAffectRequiresCompleteExpenses(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 0, 0, 0)
	svc := NewService(repo, nil, nil)

	po := seedPendingPO(t, svc, mugID, ExpensesInput{DayRate: f64(36.5), Freight: f64(10)})

	_, err := svc.Affect(context.Background(), po.ID, 1)
	require.ErrorIs(t, err, ErrMissingExpenses)

	stored, _, getErr := svc.GetPurchaseOrder(context.Background(), po.ID)
	require.NoError(t, getErr)
	require.Equal(t, StatePending, stored.State)
	require.Empty(t, repo.entries)
}

func TestAffectFailsClosedWithoutExchangeRate(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 0, 0, 0)
	svc := NewService(repo, nil, nil)

	expenses := fullExpenses()
	expenses.DayRate = nil
	po := seedPendingPO(t, svc, mugID, expenses)

	_, err := svc.Affect(context.Background(), po.ID, 1)
	require.ErrorIs(t, err, ErrMissingExchangeRate)
	require.Empty(t, repo.entries)
}

func TestUpdateExpensesOnlyWhilePending(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 0, 0, 0)
	svc := NewService(repo, nil, nil)

	po := seedPendingPO(t, svc, mugID, fullExpenses())

	updated, err := svc.UpdateExpenses(context.Background(), po.ID, ExpensesInput{Freight: f64(12)})
	require.NoError(t, err)
	require.Equal(t, 12.0, *updated.Freight)

	_, err = svc.Affect(context.Background(), po.ID, 1)
	require.NoError(t, err)

	_, err = svc.UpdateExpenses(context.Background(), po.ID, ExpensesInput{Freight: f64(15)})
	require.ErrorIs(t, err, ErrAffectedImmutable)
}

func TestDeleteOnlyWhilePending(t *testing.T) {
	repo := newMemoryPORepo()
	mugID := repo.seedProduct("Ceramic Mug", 0, 0, 0)
	svc := NewService(repo, nil, nil)

	po := seedPendingPO(t, svc, mugID, fullExpenses())
	require.NoError(t, svc.Delete(context.Background(), po.ID))

	po = seedPendingPO(t, svc, mugID, fullExpenses())
	_, err := svc.Affect(context.Background(), po.ID, 1)
	require.NoError(t, err)
	require.ErrorIs(t, svc.Delete(context.Background(), po.ID), ErrAffectedImmutable)
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	svc := NewService(newMemoryPORepo(), nil, nil)
	ctx := context.Background()

	_, err := svc.CreatePurchaseOrder(ctx, CreatePOInput{Supplier: "S"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePurchaseOrder(ctx, CreatePOInput{Lines: []LineInput{{ProductName: "A", Qty: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePurchaseOrder(ctx, CreatePOInput{
		Supplier: "S",
		Lines:    []LineInput{{Qty: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreatePurchaseOrder(ctx, CreatePOInput{
		Supplier: "S",
		Freight:  f64(-1),
		Lines:    []LineInput{{ProductName: "A", Qty: 1, UnitCost: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
