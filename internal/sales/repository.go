package sales

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altamar-retail/altamar-retail/internal/clients"
	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaleTxRepository exposes sale writes inside a transaction.
type SaleTxRepository interface {
	CreateSale(ctx context.Context, sale Sale) (int64, error)
	InsertLine(ctx context.Context, line SaleLine) (int64, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, []SaleLine, error)
	MarkCancelled(ctx context.Context, id int64, at time.Time) error
}

// TxRepository is the full transactional surface of a sale or cancellation:
// sale rows, product projections, client account and both ledgers on one
// pgx.Tx, so the operation is all-or-nothing.
type TxRepository interface {
	SaleTxRepository
	inventory.TxProjection
	clients.TxOps
	AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
	inventory.TxProjection
	clients.TxOps
	appender *ledger.Appender
}

func (r *txRepository) AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error) {
	return r.appender.AppendInventory(ctx, entry)
}

type clientTxOps struct {
	clients.TxAccount
	appender *ledger.Appender
}

func (o *clientTxOps) AppendClient(ctx context.Context, entry ledger.ClientEntry) (int64, error) {
	return o.appender.AppendClient(ctx, entry)
}

// WithTx executes the callback inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		appender := ledger.NewAppender(tx)
		wrapper := &txRepository{
			tx:           tx,
			TxProjection: inventory.NewTxProjection(tx),
			TxOps:        &clientTxOps{TxAccount: clients.NewTxAccount(tx), appender: appender},
			appender:     appender,
		}
		return fn(ctx, wrapper)
	})
}

// GetSale loads one sale with its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	if r == nil {
		return Sale{}, nil, errors.New("sales repository not initialised")
	}
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT id, number, COALESCE(client_id, 0), method, total, down_payment, cancelled, cancelled_at, created_at
FROM sales WHERE id=$1`, id))
	if err != nil {
		return Sale{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price, unit_cost_usd FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	defer rows.Close()
	lines, err := scanSaleLines(rows)
	if err != nil {
		return Sale{}, nil, err
	}
	return sale, lines, nil
}

// ListSales returns sales newest first.
func (r *Repository) ListSales(ctx context.Context, limit int) ([]Sale, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, COALESCE(client_id, 0), method, total, down_payment, cancelled, cancelled_at, created_at
FROM sales ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Sale{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *txRepository) CreateSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (number, client_id, method, total, down_payment, cancelled, created_at)
VALUES ($1,$2,$3,$4,$5,false,NOW()) RETURNING id`,
		sale.Number, nullInt(sale.ClientID), string(sale.Method), sale.Total, sale.DownPayment).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line SaleLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, qty, unit_price, unit_cost_usd)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.SaleID, line.ProductID, line.Qty, line.UnitPrice, line.UnitCostUSD).Scan(&id)
	return id, err
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (Sale, []SaleLine, error) {
	sale, err := scanSale(r.tx.QueryRow(ctx, `SELECT id, number, COALESCE(client_id, 0), method, total, down_payment, cancelled, cancelled_at, created_at
FROM sales WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Sale{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price, unit_cost_usd FROM sale_lines WHERE sale_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return Sale{}, nil, err
	}
	defer rows.Close()
	lines, err := scanSaleLines(rows)
	if err != nil {
		return Sale{}, nil, err
	}
	return sale, lines, nil
}

func (r *txRepository) MarkCancelled(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE sales SET cancelled=true, cancelled_at=$1 WHERE id=$2 AND cancelled=false`, at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyCancelled
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (Sale, error) {
	var sale Sale
	var method string
	err := row.Scan(&sale.ID, &sale.Number, &sale.ClientID, &method, &sale.Total, &sale.DownPayment, &sale.Cancelled, &sale.CancelledAt, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	sale.Method = PaymentMethod(method)
	return sale, nil
}

func scanSaleLines(rows pgx.Rows) ([]SaleLine, error) {
	lines := []SaleLine{}
	for rows.Next() {
		var line SaleLine
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.Qty, &line.UnitPrice, &line.UnitCostUSD); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
