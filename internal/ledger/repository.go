package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads the two append-only ledgers from PostgreSQL. Writes go
// through Appender so they always happen inside the caller's transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Appender inserts ledger entries within an open transaction. There is no
// update or delete path: compensation is expressed as new entries.
type Appender struct {
	tx pgx.Tx
}

// NewAppender wraps a transaction for ledger writes.
func NewAppender(tx pgx.Tx) *Appender {
	return &Appender{tx: tx}
}

// AppendInventory inserts one inventory entry and returns its sequence number.
func (a *Appender) AppendInventory(ctx context.Context, entry InventoryEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	var seq int64
	err := a.tx.QueryRow(ctx, `INSERT INTO inventory_ledger (product_id, direction, qty, unit_cost, reason, reference, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING seq`,
		entry.ProductID, string(entry.Direction), entry.Qty, entry.UnitCost, string(entry.Reason), entry.Reference, occurredAt).Scan(&seq)
	return seq, err
}

// AppendClient inserts one client account entry and returns its sequence number.
func (a *Appender) AppendClient(ctx context.Context, entry ClientEntry) (int64, error) {
	if err := entry.Validate(); err != nil {
		return 0, err
	}
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	var seq int64
	err := a.tx.QueryRow(ctx, `INSERT INTO client_ledger (client_id, amount, reason, reference, occurred_at)
VALUES ($1,$2,$3,$4,$5) RETURNING seq`,
		entry.ClientID, entry.Amount, string(entry.Reason), entry.Reference, occurredAt).Scan(&seq)
	return seq, err
}

// ListInventoryByProduct returns a product's movements in replay order.
func (r *Repository) ListInventoryByProduct(ctx context.Context, productID int64, limit int) ([]InventoryEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT seq, product_id, direction, qty, unit_cost, reason, reference, occurred_at
FROM inventory_ledger WHERE product_id=$1 ORDER BY occurred_at ASC, seq ASC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInventoryEntries(rows)
}

// ListClientTail returns the newest limit entries for a client, still in
// replay order. Statements window from the tail so a truncated view drops the
// oldest entries, never the newest, and the caller can carry the dropped
// entries forward as an opening balance.
func (r *Repository) ListClientTail(ctx context.Context, clientID int64, limit int) ([]ClientEntry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `SELECT seq, client_id, amount, reason, reference, occurred_at
FROM client_ledger WHERE client_id=$1 ORDER BY occurred_at DESC, seq DESC LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries, err := scanClientEntries(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// InventoryProductIDs lists every product that has ledger history.
func (r *Repository) InventoryProductIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT product_id FROM inventory_ledger ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ClientIDs lists every client that has ledger history.
func (r *Repository) ClientIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT client_id FROM client_ledger ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// FoldInventoryStock computes the signed quantity sum for one product
// directly in SQL. Reconciliation compares this against the cached projection.
func (r *Repository) FoldInventoryStock(ctx context.Context, productID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(CASE direction WHEN 'IN' THEN qty ELSE -qty END), 0)
FROM inventory_ledger WHERE product_id=$1`, productID).Scan(&total)
	return total, err
}

// FoldClientBalance computes the signed amount sum for one client in SQL.
func (r *Repository) FoldClientBalance(ctx context.Context, clientID int64) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM client_ledger WHERE client_id=$1`, clientID).Scan(&total)
	return total, err
}

func scanInventoryEntries(rows pgx.Rows) ([]InventoryEntry, error) {
	entries := []InventoryEntry{}
	for rows.Next() {
		var e InventoryEntry
		var direction, reason string
		if err := rows.Scan(&e.Seq, &e.ProductID, &direction, &e.Qty, &e.UnitCost, &reason, &e.Reference, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Direction = Direction(direction)
		parsed, err := ParseInventoryReason(reason)
		if err != nil {
			return nil, err
		}
		e.Reason = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanClientEntries(rows pgx.Rows) ([]ClientEntry, error) {
	entries := []ClientEntry{}
	for rows.Next() {
		var e ClientEntry
		var reason string
		if err := rows.Scan(&e.Seq, &e.ClientID, &e.Amount, &reason, &e.Reference, &e.OccurredAt); err != nil {
			return nil, err
		}
		parsed, err := ParseClientReason(reason)
		if err != nil {
			return nil, err
		}
		e.Reason = parsed
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanIDs(rows pgx.Rows) ([]int64, error) {
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
