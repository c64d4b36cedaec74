package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

// Ensure interface conformance
var (
	_ ports.TransactionStore  = (*SQLiteRepository)(nil)
	_ ports.TransactionGetter = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	newID   func() string
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		newID:   uuid.NewString,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database still answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Insert implements ports.TransactionInserter
func (r *SQLiteRepository) Insert(ctx context.Context, ownerID string, t core.Transaction) (string, error) {
	if ownerID == "" {
		return "", ports.NewPersistenceError(ports.PermissionDenied, errors.New("missing owner id"))
	}
	if err := t.Validate(); err != nil {
		return "", err
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		ID:          r.newID(),
		OwnerID:     ownerID,
		Description: t.Description,
		AmountCents: t.Amount.Cents,
		Kind:        string(t.Kind),
		Category:    string(t.Category),
		Date:        t.Date.String(),
	})
	if err != nil {
		return "", classify(ctx, fmt.Errorf("create transaction: %w", err))
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", row.ID,
		"seq", row.Seq,
		"owner_id", row.OwnerID,
		"kind", row.Kind,
		"amount_cents", row.AmountCents)

	return row.ID, nil
}

// Snapshot implements ports.SnapshotReader
func (r *SQLiteRepository) Snapshot(ctx context.Context, ownerID string) ([]core.Record, error) {
	rows, err := r.queries.ListTransactionsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for owner: %w", err)
	}
	records := make([]core.Record, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return records, nil
}

// GetTransaction implements ports.TransactionGetter
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ports.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction by id: %w", err)
	}
	return row.record().Transaction()
}

// SyncStatus returns pending, synced or error for the transaction with id.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id string) (string, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get transaction by id: %w", err)
	}
	return row.SyncStatus, nil
}

// PendingSync is the minimal data needed to queue a mirror sync.
type PendingSync struct {
	ID      string
	OwnerID string
}

// GetPendingSyncTransactions returns transactions not yet mirrored, oldest first.
func (r *SQLiteRepository) GetPendingSyncTransactions(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.queries.GetPendingSyncTransactions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	out := make([]PendingSync, len(rows))
	for i, row := range rows {
		out[i] = PendingSync{ID: row.ID, OwnerID: row.OwnerID}
	}
	return out, nil
}

// MarkSynced marks a transaction as mirrored.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	if err := r.queries.MarkTransactionSynced(ctx, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id)
	return nil
}

// MarkSyncError marks a transaction whose mirror write failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if err := r.queries.MarkTransactionSyncError(ctx, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// RetrySyncErrors puts every failed mirror write back in the pending state.
func (r *SQLiteRepository) RetrySyncErrors(ctx context.Context) (int64, error) {
	n, err := r.queries.ResetSyncErrors(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset sync errors: %w", err)
	}
	return n, nil
}

func (t Transaction) record() core.Record {
	return core.Record{
		ID:              t.ID,
		Description:     t.Description,
		Amount:          core.Money{Cents: t.AmountCents}.Dollars(),
		TransactionType: t.Kind,
		Category:        t.Category,
		Date:            t.Date,
		OwnerID:         t.OwnerID,
	}
}

// classify maps driver failures onto the persistence error taxonomy.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return ports.NewPersistenceError(ports.Unreachable, err)
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return ports.NewPersistenceError(ports.Unreachable, err)
		case sqlite3.SQLITE_PERM, sqlite3.SQLITE_READONLY, sqlite3.SQLITE_AUTH:
			return ports.NewPersistenceError(ports.PermissionDenied, err)
		}
	}
	return ports.NewPersistenceError(ports.Unknown, err)
}
