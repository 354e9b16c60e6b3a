package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
)

type invFake struct {
	products map[int64]inventory.Product
	stocks   map[int64]float64
}

func (f *invFake) WithTx(ctx context.Context, fn func(context.Context, inventory.TxOps) error) error {
	return nil
}

func (f *invFake) GetProduct(ctx context.Context, productID int64) (inventory.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (f *invFake) ListProducts(ctx context.Context, limit int) ([]inventory.Product, error) {
	return nil, nil
}

func (f *invFake) ListInventoryByProduct(ctx context.Context, productID int64, limit int) ([]ledger.InventoryEntry, error) {
	return nil, nil
}

func (f *invFake) FoldInventoryStock(ctx context.Context, productID int64) (float64, error) {
	return f.stocks[productID], nil
}

func (f *invFake) InventoryProductIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.stocks))
	for id := range f.stocks {
		ids = append(ids, id)
	}
	return ids, nil
}

type clientsFake struct {
	clients  map[int64]clients.Client
	balances map[int64]float64
}

func (f *clientsFake) WithTx(ctx context.Context, fn func(context.Context, clients.TxOps) error) error {
	return nil
}

func (f *clientsFake) GetClient(ctx context.Context, clientID int64) (clients.Client, error) {
	c, ok := f.clients[clientID]
	if !ok {
		return clients.Client{}, clients.ErrClientNotFound
	}
	return c, nil
}

func (f *clientsFake) ListClients(ctx context.Context, limit int) ([]clients.Client, error) {
	return nil, nil
}

func (f *clientsFake) ListClientTail(ctx context.Context, clientID int64, limit int) ([]ledger.ClientEntry, error) {
	return nil, nil
}

func (f *clientsFake) FoldClientBalance(ctx context.Context, clientID int64) (float64, error) {
	return f.balances[clientID], nil
}

func (f *clientsFake) ClientIDs(ctx context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(f.balances))
	for id := range f.balances {
		ids = append(ids, id)
	}
	return ids, nil
}

func testReconciler(t *testing.T, inv *invFake, cl *clientsFake) (*Reconciler, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	invService := inventory.NewService(inv, inv, nil, nil)
	clService := clients.NewService(cl, cl, nil, nil)
	return NewReconciler(invService, clService, rdb, slog.Default()), rdb
}

func TestReconcilerCleanRun(t *testing.T) {
	inv := &invFake{
		products: map[int64]inventory.Product{1: {ID: 1, QuantityOnHand: 10}},
		stocks:   map[int64]float64{1: 10},
	}
	cl := &clientsFake{
		clients:  map[int64]clients.Client{4: {ID: 4, Balance: 60}},
		balances: map[int64]float64{4: 60},
	}
	rc, rdb := testReconciler(t, inv, cl)

	report, err := rc.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Clean)
	require.Empty(t, report.Inventory)
	require.Empty(t, report.Clients)

	// Report persisted for the HTTP surface.
	body, err := rdb.Get(context.Background(), ReconcileReportKey).Bytes()
	require.NoError(t, err)
	var stored ReconcileReport
	require.NoError(t, json.Unmarshal(body, &stored))
	require.True(t, stored.Clean)
}

func TestReconcilerReportsDivergences(t *testing.T) {
	inv := &invFake{
		products: map[int64]inventory.Product{1: {ID: 1, QuantityOnHand: 12}},
		stocks:   map[int64]float64{1: 10},
	}
	cl := &clientsFake{
		clients:  map[int64]clients.Client{4: {ID: 4, Balance: 60}},
		balances: map[int64]float64{4: 55},
	}
	rc, rdb := testReconciler(t, inv, cl)

	report, err := rc.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Clean)
	require.Len(t, report.Inventory, 1)
	require.Len(t, report.Clients, 1)
	require.InDelta(t, 12, report.Inventory[0].Projected, 1e-9)
	require.InDelta(t, 10, report.Inventory[0].Folded, 1e-9)

	body, err := rdb.Get(context.Background(), ReconcileReportKey).Bytes()
	require.NoError(t, err)
	var stored ReconcileReport
	require.NoError(t, json.Unmarshal(body, &stored))
	require.False(t, stored.Clean)
	require.Len(t, stored.Clients, 1)
}
