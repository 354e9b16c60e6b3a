package clients

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altamar-retail/altamar-retail/internal/ledger"
	"github.com/altamar-retail/altamar-retail/internal/platform/db"
)

// Repository persists client balance projections in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxAccount exposes client projection operations bound to an open
// transaction. Sales use it to charge credit sales atomically with their
// inventory writes.
type TxAccount interface {
	GetClientForUpdate(ctx context.Context, clientID int64) (Client, error)
	CreateClient(ctx context.Context, name string) (Client, error)
	WriteBalance(ctx context.Context, clientID int64, balance float64, expectedVersion int64) error
}

// TxOps bundles the client projection with the client ledger.
type TxOps interface {
	TxAccount
	AppendClient(ctx context.Context, entry ledger.ClientEntry) (int64, error)
}

type txAccount struct {
	tx pgx.Tx
}

// NewTxAccount wraps an open transaction.
func NewTxAccount(tx pgx.Tx) TxAccount {
	return &txAccount{tx: tx}
}

// ErrVersionConflict indicates a balance write that lost a version race.
var ErrVersionConflict = errors.New("clients: balance version conflict")

func (a *txAccount) GetClientForUpdate(ctx context.Context, clientID int64) (Client, error) {
	return scanClient(a.tx.QueryRow(ctx, `SELECT id, name, balance, version, created_at, updated_at FROM clients WHERE id=$1 FOR UPDATE`, clientID))
}

func (a *txAccount) CreateClient(ctx context.Context, name string) (Client, error) {
	var client Client
	err := a.tx.QueryRow(ctx, `INSERT INTO clients (name, balance, version, created_at, updated_at)
VALUES ($1,0,1,NOW(),NOW()) RETURNING id, name, balance, version, created_at, updated_at`, name).
		Scan(&client.ID, &client.Name, &client.Balance, &client.Version, &client.CreatedAt, &client.UpdatedAt)
	return client, err
}

func (a *txAccount) WriteBalance(ctx context.Context, clientID int64, balance float64, expectedVersion int64) error {
	tag, err := a.tx.Exec(ctx, `UPDATE clients SET balance=$1, version=version+1, updated_at=NOW() WHERE id=$2 AND version=$3`,
		balance, clientID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

type txOps struct {
	TxAccount
	appender *ledger.Appender
}

func (o *txOps) AppendClient(ctx context.Context, entry ledger.ClientEntry) (int64, error) {
	return o.appender.AppendClient(ctx, entry)
}

// WithTx executes fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxOps) error) error {
	if r == nil {
		return errors.New("clients repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txOps{TxAccount: NewTxAccount(tx), appender: ledger.NewAppender(tx)})
	})
}

// GetClient returns one client projection.
func (r *Repository) GetClient(ctx context.Context, clientID int64) (Client, error) {
	if r == nil {
		return Client{}, errors.New("clients repository not initialised")
	}
	return scanClient(r.pool.QueryRow(ctx, `SELECT id, name, balance, version, created_at, updated_at FROM clients WHERE id=$1`, clientID))
}

// ListClients returns client projections ordered by id.
func (r *Repository) ListClients(ctx context.Context, limit int) ([]Client, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, balance, version, created_at, updated_at FROM clients ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Client{}
	for rows.Next() {
		var c Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Balance, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Name, &c.Balance, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, err
	}
	return c, nil
}
