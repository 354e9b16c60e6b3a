package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
)

// Repository persists product projections in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxProjection exposes product projection operations bound to an open
// transaction. Purchasing and sales flows share the same transaction for
// their ledger appends, so the whole operation commits atomically.
type TxProjection interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	GetProductByNameForUpdate(ctx context.Context, name string) (Product, error)
	CreateProduct(ctx context.Context, name string, val Valuation) (Product, error)
	WriteProjection(ctx context.Context, productID int64, val Valuation, expectedVersion int64) error
}

type txProjection struct {
	tx pgx.Tx
}

// NewTxProjection wraps an open transaction.
func NewTxProjection(tx pgx.Tx) TxProjection {
	return &txProjection{tx: tx}
}

// ErrVersionConflict indicates a projection write that lost a version race.
var ErrVersionConflict = errors.New("inventory: projection version conflict")

type txOps struct {
	TxProjection
	appender *ledger.Appender
}

func (o *txOps) AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error) {
	return o.appender.AppendInventory(ctx, entry)
}

// WithTx executes fn inside a RepeatableRead transaction with projection and
// ledger writes bound to the same pgx.Tx.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxOps) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txOps{TxProjection: NewTxProjection(tx), appender: ledger.NewAppender(tx)})
	})
}

func (p *txProjection) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	return scanProduct(p.tx.QueryRow(ctx, `SELECT id, name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at
FROM products WHERE id=$1 FOR UPDATE`, productID))
}

func (p *txProjection) GetProductByNameForUpdate(ctx context.Context, name string) (Product, error) {
	return scanProduct(p.tx.QueryRow(ctx, `SELECT id, name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at
FROM products WHERE name=$1 FOR UPDATE`, name))
}

func (p *txProjection) CreateProduct(ctx context.Context, name string, val Valuation) (Product, error) {
	var product Product
	err := p.tx.QueryRow(ctx, `INSERT INTO products (name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,1,NOW(),NOW()) RETURNING id, name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at`,
		name, val.Stock, val.CostUSD, val.CostLocal).
		Scan(&product.ID, &product.Name, &product.QuantityOnHand, &product.UnitCostUSD, &product.UnitCostLocal, &product.Version, &product.CreatedAt, &product.UpdatedAt)
	return product, err
}

// WriteProjection updates the cached state only when the caller saw the
// current version. The FOR UPDATE row lock already serialises writers inside
// a transaction; the version check additionally rejects any stale state that
// was read outside it.
func (p *txProjection) WriteProjection(ctx context.Context, productID int64, val Valuation, expectedVersion int64) error {
	tag, err := p.tx.Exec(ctx, `UPDATE products SET quantity_on_hand=$1, unit_cost_usd=$2, unit_cost_local=$3, version=version+1, updated_at=NOW()
WHERE id=$4 AND version=$5`, val.Stock, val.CostUSD, val.CostLocal, productID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

// GetProduct returns one product projection.
func (r *Repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	if r == nil {
		return Product{}, errors.New("inventory repository not initialised")
	}
	return scanProduct(r.pool.QueryRow(ctx, `SELECT id, name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at
FROM products WHERE id=$1`, productID))
}

// ListProducts returns projections ordered by id.
func (r *Repository) ListProducts(ctx context.Context, limit int) ([]Product, error) {
	if r == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, quantity_on_hand, unit_cost_usd, unit_cost_local, version, created_at, updated_at
FROM products ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.QuantityOnHand, &p.UnitCostUSD, &p.UnitCostLocal, &p.Version, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.QuantityOnHand, &p.UnitCostUSD, &p.UnitCostLocal, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}
