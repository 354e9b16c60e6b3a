package purchasing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altamar-retail/altamar-retail/internal/inventory"
	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
)

// Repository persists purchase orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// POTxRepository exposes purchase-order writes inside a transaction.
type POTxRepository interface {
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error)
	CreatePO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertLine(ctx context.Context, line PurchaseLine) (int64, error)
	SetExpenses(ctx context.Context, id int64, po PurchaseOrder) error
	MarkAffected(ctx context.Context, id int64, at time.Time) error
	DeletePO(ctx context.Context, id int64) error
}

// TxRepository is the transactional surface of an affectation: purchase-order
// state, product projections and the inventory ledger, all on one pgx.Tx.
type TxRepository interface {
	POTxRepository
	inventory.TxProjection
	AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
	inventory.TxProjection
	appender *ledger.Appender
}

func (r *txRepository) AppendInventory(ctx context.Context, entry ledger.InventoryEntry) (int64, error) {
	return r.appender.AppendInventory(ctx, entry)
}

// WithTx executes the callback inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("purchasing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		wrapper := &txRepository{tx: tx, TxProjection: inventory.NewTxProjection(tx), appender: ledger.NewAppender(tx)}
		return fn(ctx, wrapper)
	})
}

const poColumns = `id, number, supplier, order_date, import_rate, day_rate, discount_total, freight, import_duties, other_costs, state, affected_at, created_at, updated_at`

// GetPO loads a purchase order with its lines.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error) {
	if r == nil {
		return PurchaseOrder{}, nil, errors.New("purchasing repository not initialised")
	}
	po, err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

// ListPOs returns purchase orders ordered by creation, newest first.
func (r *Repository) ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+poColumns+` FROM purchase_orders ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *Repository) listLines(ctx context.Context, poID int64) ([]PurchaseLine, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, po_id, COALESCE(product_id, 0), product_name, qty, unit_cost
FROM purchase_order_lines WHERE po_id=$1 ORDER BY id ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLines(rows)
}

func (r *txRepository) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, []PurchaseLine, error) {
	po, err := scanPO(r.tx.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, po_id, COALESCE(product_id, 0), product_name, qty, unit_cost
FROM purchase_order_lines WHERE po_id=$1 ORDER BY id ASC`, id)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	defer rows.Close()
	lines, err := scanLines(rows)
	if err != nil {
		return PurchaseOrder{}, nil, err
	}
	return po, lines, nil
}

func (r *txRepository) CreatePO(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier, order_date, import_rate, day_rate, discount_total, freight, import_duties, other_costs, state, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW()) RETURNING id`,
		po.Number, po.Supplier, po.OrderDate, po.ImportRate, po.DayRate, po.DiscountTotal, po.Freight, po.ImportDuties, po.OtherCosts, string(po.State)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertLine(ctx context.Context, line PurchaseLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO purchase_order_lines (po_id, product_id, product_name, qty, unit_cost)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.POID, nullInt(line.ProductID), line.ProductName, line.Qty, line.UnitCost).Scan(&id)
	return id, err
}

func (r *txRepository) SetExpenses(ctx context.Context, id int64, po PurchaseOrder) error {
	_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET import_rate=$1, day_rate=$2, discount_total=$3, freight=$4, import_duties=$5, other_costs=$6, updated_at=NOW() WHERE id=$7`,
		po.ImportRate, po.DayRate, po.DiscountTotal, po.Freight, po.ImportDuties, po.OtherCosts, id)
	return err
}

func (r *txRepository) MarkAffected(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET state=$1, affected_at=$2, updated_at=NOW() WHERE id=$3 AND state=$4`,
		string(StateAffected), at, id, string(StatePending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyAffected
	}
	return nil
}

func (r *txRepository) DeletePO(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM purchase_order_lines WHERE po_id=$1`, id); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id=$1`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPO(row rowScanner) (PurchaseOrder, error) {
	var po PurchaseOrder
	var state string
	err := row.Scan(&po.ID, &po.Number, &po.Supplier, &po.OrderDate, &po.ImportRate, &po.DayRate, &po.DiscountTotal, &po.Freight, &po.ImportDuties, &po.OtherCosts, &state, &po.AffectedAt, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	po.State = AffectationState(state)
	return po, nil
}

func scanLines(rows pgx.Rows) ([]PurchaseLine, error) {
	lines := []PurchaseLine{}
	for rows.Next() {
		var line PurchaseLine
		if err := rows.Scan(&line.ID, &line.POID, &line.ProductID, &line.ProductName, &line.Qty, &line.UnitCost); err != nil {
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
