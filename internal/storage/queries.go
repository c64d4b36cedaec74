package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// Transaction is a row of the transactions table.
type Transaction struct {
	Seq         int64
	ID          string
	OwnerID     string
	Description string
	AmountCents int64
	Kind        string
	Category    string
	Date        string
	CreatedAt   time.Time
	SyncStatus  string
	SyncedAt    sql.NullTime
}

const transactionColumns = `seq, id, owner_id, description, amount_cents, kind, category, date, created_at, sync_status, synced_at`

func scanTransaction(row interface{ Scan(...interface{}) error }) (Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.Seq,
		&t.ID,
		&t.OwnerID,
		&t.Description,
		&t.AmountCents,
		&t.Kind,
		&t.Category,
		&t.Date,
		&t.CreatedAt,
		&t.SyncStatus,
		&t.SyncedAt,
	)
	return t, err
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (id, owner_id, description, amount_cents, kind, category, date)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID          string
	OwnerID     string
	Description string
	AmountCents int64
	Kind        string
	Category    string
	Date        string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.ID,
		arg.OwnerID,
		arg.Description,
		arg.AmountCents,
		arg.Kind,
		arg.Category,
		arg.Date,
	)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const listTransactionsByOwner = `-- name: ListTransactionsByOwner :many
SELECT ` + transactionColumns + ` FROM transactions WHERE owner_id = ? ORDER BY seq`

func (q *Queries) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]Transaction, error) {
	return q.list(ctx, listTransactionsByOwner, ownerID)
}

const getPendingSyncTransactions = `-- name: GetPendingSyncTransactions :many
SELECT ` + transactionColumns + ` FROM transactions WHERE sync_status = 'pending' ORDER BY seq LIMIT ?`

func (q *Queries) GetPendingSyncTransactions(ctx context.Context, limit int64) ([]Transaction, error) {
	return q.list(ctx, getPendingSyncTransactions, limit)
}

const markTransactionSynced = `-- name: MarkTransactionSynced :exec
UPDATE transactions SET sync_status = 'synced', synced_at = CURRENT_TIMESTAMP WHERE id = ?`

func (q *Queries) MarkTransactionSynced(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markTransactionSynced, id)
	return err
}

const markTransactionSyncError = `-- name: MarkTransactionSyncError :exec
UPDATE transactions SET sync_status = 'error' WHERE id = ?`

func (q *Queries) MarkTransactionSyncError(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markTransactionSyncError, id)
	return err
}

const resetSyncErrors = `-- name: ResetSyncErrors :execrows
UPDATE transactions SET sync_status = 'pending' WHERE sync_status = 'error'`

func (q *Queries) ResetSyncErrors(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetSyncErrors)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
