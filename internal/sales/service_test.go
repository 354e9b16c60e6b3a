package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
)

type memorySalesRepo struct {
	sales       map[int64]Sale
	lines       map[int64][]SaleLine
	products    map[int64]inventory.Product
	clients     map[int64]clients.Client
	invEntries  []ledger.InventoryEntry
	clEntries   []ledger.ClientEntry
	nextSale    int64
	nextLine    int64
	nextSeq     int64
	nextProduct int64
	nextClient  int64
}

func newMemorySalesRepo() *memorySalesRepo {
	return &memorySalesRepo{
		sales:    make(map[int64]Sale),
		lines:    make(map[int64][]SaleLine),
		products: make(map[int64]inventory.Product),
		clients:  make(map[int64]clients.Client),
	}
}

func (r *memorySalesRepo) seedProduct(name string, stock, costUSD, costLocal float64) int64 {
	r.nextProduct++
	r.products[r.nextProduct] = inventory.Product{
		ID: r.nextProduct, Name: name,
		QuantityOnHand: stock, UnitCostUSD: costUSD, UnitCostLocal: costLocal,
	}
	return r.nextProduct
}

func (r *memorySalesRepo) seedClient(name string) int64 {
	r.nextClient++
	r.clients[r.nextClient] = clients.Client{ID: r.nextClient, Name: name}
	return r.nextClient
}

func (r *memorySalesRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memorySalesTx{repo: r})
}

func (r *memorySalesRepo) GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, nil, ErrNotFound
	}
	return sale, append([]SaleLine(nil), r.lines[id]...), nil
}

func (r *memorySalesRepo) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	out := make([]Sale, 0, len(r.sales))
	for _, s := range r.sales {
		out = append(out, s)
	}
	return out, nil
}

type memorySalesTx struct {
	repo *memorySalesRepo
}

func (t *memorySalesTx) CreateSale(ctx context.Context, sale Sale) (int64, error) {
	t.repo.nextSale++
	sale.ID = t.repo.nextSale
	sale.CreatedAt = time.Now().UTC()
	t.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func (t *memorySalesTx) InsertLine(ctx context.Context, line SaleLine) (int64, error) {
	t.repo.nextLine++
	line.ID = t.repo.nextLine
	t.repo.lines[line.SaleID] = append(t.repo.lines[line.SaleID], line)
	return line.ID, nil
}

func (t *memorySalesTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	return t.repo.GetSale(ctx, id)
}

func (t *memorySalesTx) MarkCancelled(ctx context.Context, id int64, at time.Time) error {
	sale, ok := t.repo.sales[id]
	if !ok {
		return ErrNotFound
	}
	if sale.Cancelled {
		return ErrAlreadyCancelled
	}
	sale.Cancelled = true
	sale.CancelledAt = &at
	t.repo.sales[id] = sale
	return nil
}

func (t *memorySalesTx) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := t.repo.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (t *memorySalesTx) GetProductByNameForUpdate(ctx context.Context, name string) (inventory.Product, error) {
	for _, p := range t.repo.products {
		if p.Name == name {
			return p, nil
		}
	}
	return inventory.Product{}, inventory.ErrProductNotFound
}

func (t *memorySalesTx) CreateProduct(ctx context.Context, name string, val inventory.Valuation) (inventory.Product, error) {
	id := t.repo.seedProduct(name, val.Stock, val.CostUSD, val.CostLocal)
	return t.repo.products[id], nil
}

func (t *memorySalesTx) WriteProjection(ctx context.Context, productID int64, val inventory.Valuation, expectedVersion int64) error {
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

func (t *memorySalesTx) GetClientForUpdate(ctx context.Context, clientID int64) (clients.Client, error) {
	c, ok := t.repo.clients[clientID]
	if !ok {
		return clients.Client{}, clients.ErrClientNotFound
	}
	return c, nil
}

func (t *memorySalesTx) CreateClient(ctx context.Context, name string) (clients.Client, error) {
	id := t.repo.seedClient(name)
	return t.repo.clients[id], nil
}

func (t *memorySalesTx) WriteBalance(ctx context.Context, clientID int64, balance float64, expectedVersion int64) error {
	c, ok := t.repo.clients[clientID]
	if !ok {
		return clients.ErrClientNotFound
	}
	if c.Version != expectedVersion {
		return clients.ErrVersionConflict
	}
	c.Balance = balance
	c.Version++
	t.repo.clients[clientID] = c
	return nil
}

func (t *memorySalesTx) AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	t.repo.nextSeq++
	entry.Seq = t.repo.nextSeq
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	t.repo.invEntries = append(t.repo.invEntries, entry)
	return entry.Seq, nil
}

func (t *memorySalesTx) AppendClient(ctx context.Context, entry ledger.ClientEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	t.repo.nextSeq++
	entry.Seq = t.repo.nextSeq
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	t.repo.clEntries = append(t.repo.clEntries, entry)
	return entry.Seq, nil
}

func TestCreateSaleIssuesAtCurrentAverageCost(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	svc := NewService(repo, nil, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number: "SALE-T1",
		Method: MethodCash,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 5, UnitPrice: 10}},
	})
	require.NoError(t, err)
	require.InDelta(t, 50, sale.Total, 1e-9)

	product := repo.products[productID]
	require.InDelta(t, 15, product.QuantityOnHand, 1e-9)
	require.InDelta(t, 3.00, product.UnitCostUSD, 1e-9)

	require.Len(t, repo.invEntries, 1)
	entry := repo.invEntries[0]
	require.Equal(t, ledger.DirectionOut, entry.Direction)
	require.Equal(t, ledger.ReasonSale, entry.Reason)
	require.InDelta(t, 3.00, entry.UnitCost, 1e-9)
	require.Equal(t, "SALE-T1", entry.Reference)

	lines := repo.lines[sale.ID]
	require.Len(t, lines, 1)
	require.InDelta(t, 3.00, lines[0].UnitCostUSD, 1e-9)
}

func TestCreateSaleRejectsNegativeStock(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 4, 3.00, 109.5)
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number: "SALE-T2",
		Method: MethodCash,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 5, UnitPrice: 10}},
	})
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	require.Empty(t, repo.invEntries)
	require.InDelta(t, 4, repo.products[productID].QuantityOnHand, 1e-9)
}

func TestCreditSaleChargesClientNetOfDownPayment(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	clientID := repo.seedClient("Comercial Andina")
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number:      "SALE-T3",
		ClientID:    clientID,
		Method:      MethodCredit,
		DownPayment: 20,
		Lines:       []SaleLineInput{{ProductID: productID, Qty: 10, UnitPrice: 10}},
	})
	require.NoError(t, err)

	require.InDelta(t, 80, repo.clients[clientID].Balance, 1e-9)
	require.Len(t, repo.clEntries, 1)
	charge := repo.clEntries[0]
	require.Equal(t, ledger.ReasonCharge, charge.Reason)
	require.InDelta(t, 80, charge.Amount, 1e-9)
	require.Equal(t, "SALE-T3", charge.Reference)
}

func TestCashSaleLeavesClientLedgerAlone(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	svc := NewService(repo, nil, nil)

	_, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number: "SALE-T4",
		Method: MethodCash,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 1, UnitPrice: 5}},
	})
	require.NoError(t, err)
	require.Empty(t, repo.clEntries)
}

func TestCancelCompensatesAtCurrentCostNotSaleCost(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 5.00, 182.5)
	svc := NewService(repo, nil, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number: "SALE-T5",
		Method: MethodCash,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 3, UnitPrice: 9}},
	})
	require.NoError(t, err)

	// Purchases after the sale moved the weighted average down to 3.00.
	product := repo.products[productID]
	product.UnitCostUSD, product.UnitCostLocal = 3.00, 109.5
	repo.products[productID] = product

	cancelled, err := svc.Cancel(context.Background(), sale.ID, 1)
	require.NoError(t, err)
	require.True(t, cancelled.Cancelled)
	require.NotNil(t, cancelled.CancelledAt)

	product = repo.products[productID]
	require.InDelta(t, 20, product.QuantityOnHand, 1e-9)
	// Receiving back at the current average keeps the average unchanged.
	require.InDelta(t, 3.00, product.UnitCostUSD, 1e-9)

	require.Len(t, repo.invEntries, 2)
	comp := repo.invEntries[1]
	require.Equal(t, ledger.DirectionIn, comp.Direction)
	require.Equal(t, ledger.ReasonSaleCancellation, comp.Reason)
	require.InDelta(t, 3, comp.Qty, 1e-9)
	require.InDelta(t, 3.00, comp.UnitCost, 1e-9)
}

func TestCancelDoesNotReverseClientCharge(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	clientID := repo.seedClient("Comercial Andina")
	svc := NewService(repo, nil, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number:   "SALE-T6",
		ClientID: clientID,
		Method:   MethodCredit,
		Lines:    []SaleLineInput{{ProductID: productID, Qty: 10, UnitPrice: 10}},
	})
	require.NoError(t, err)
	require.InDelta(t, 100, repo.clients[clientID].Balance, 1e-9)

	_, err = svc.Cancel(context.Background(), sale.ID, 1)
	require.NoError(t, err)

	// The charge stands; undoing it is a separate credit-grant decision.
	require.InDelta(t, 100, repo.clients[clientID].Balance, 1e-9)
	require.Len(t, repo.clEntries, 1)
}

func TestCancelIsOneWay(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	svc := NewService(repo, nil, nil)

	sale, err := svc.CreateSale(context.Background(), CreateSaleInput{
		Number: "SALE-T7",
		Method: MethodCash,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 2, UnitPrice: 8}},
	})
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sale.ID, 1)
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), sale.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	require.InDelta(t, 20, repo.products[productID].QuantityOnHand, 1e-9)
}

func TestCreateSaleValidation(t *testing.T) {
	repo := newMemorySalesRepo()
	productID := repo.seedProduct("Ceramic Mug", 20, 3.00, 109.5)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateSale(ctx, CreateSaleInput{Method: MethodCash})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateSale(ctx, CreateSaleInput{
		Method: "VOUCHER",
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 1, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateSale(ctx, CreateSaleInput{
		Method: MethodCredit,
		Lines:  []SaleLineInput{{ProductID: productID, Qty: 1, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateSale(ctx, CreateSaleInput{
		Method:      MethodCash,
		DownPayment: 100,
		Lines:       []SaleLineInput{{ProductID: productID, Qty: 1, UnitPrice: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}
