package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage"
)

// SyncStore is the bookkeeping the worker needs from the SQLite repository.
type SyncStore interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	SyncStatus(ctx context.Context, id string) (string, error)
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]storage.PendingSync, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
	RetrySyncErrors(ctx context.Context) (int64, error)
}

var _ SyncStore = (*storage.SQLiteRepository)(nil)

// SyncWorker mirrors stored transactions into the spreadsheet, driven by
// AMQP sync messages with a periodic sweep as backstop.
type SyncWorker struct {
	storage   SyncStore
	mirror    ports.MirrorWriter
	batchSize int
}

func NewSyncWorker(storage SyncStore, mirror ports.MirrorWriter, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	return &SyncWorker{storage: storage, mirror: mirror, batchSize: batchSize}
}

// HandleSyncMessage mirrors the transaction named by msg. Messages for
// unknown or already mirrored transactions are acknowledged and dropped. A
// failed mirror write is recorded on the row for the sweep to retry, so only
// storage failures make the message go back on the queue.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldTxID, msg.ID,
		applog.FieldOwnerID, msg.OwnerID)

	err := w.syncOne(ctx, msg.ID)
	if errors.Is(err, ports.ErrNotFound) {
		slog.WarnContext(ctx, "Sync message for unknown transaction",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldTxID, msg.ID)
		return nil
	}
	return err
}

func (w *SyncWorker) syncOne(ctx context.Context, id string) error {
	status, err := w.storage.SyncStatus(ctx, id)
	if err != nil {
		return err
	}
	if status == "synced" {
		return nil
	}

	t, err := w.storage.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return err
		}
		// the row exists but no longer decodes; retrying will not help
		slog.ErrorContext(ctx, "Stored transaction is unreadable",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldTxID, id,
			applog.FieldError, err)
		return w.storage.MarkSyncError(ctx, id)
	}

	ref, err := w.mirror.Append(ctx, t)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to mirror transaction",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldTxID, id,
			applog.FieldError, err)
		if merr := w.storage.MarkSyncError(ctx, id); merr != nil {
			return fmt.Errorf("mark sync error: %w", merr)
		}
		return nil
	}

	if err := w.storage.MarkSynced(ctx, id); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction mirrored",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldTxID, id,
		applog.FieldSheetsRef, ref)
	return nil
}

// ProcessPending mirrors up to one batch of pending transactions, after
// putting failed ones back in the pending state. It returns how many were
// mirrored.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	if n, err := w.storage.RetrySyncErrors(ctx); err != nil {
		return 0, fmt.Errorf("retry sync errors: %w", err)
	} else if n > 0 {
		slog.InfoContext(ctx, "Retrying failed mirror writes",
			applog.FieldComponent, applog.ComponentWorker,
			"count", n)
	}

	pending, err := w.storage.GetPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending transactions: %w", err)
	}

	synced := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := w.syncOne(ctx, p.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync pending transaction",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldTxID, p.ID,
				applog.FieldError, err)
			continue
		}
		if status, err := w.storage.SyncStatus(ctx, p.ID); err == nil && status == "synced" {
			synced++
		}
	}
	if len(pending) > 0 {
		slog.InfoContext(ctx, "Pending sweep finished",
			applog.FieldComponent, applog.ComponentWorker,
			"total", len(pending),
			"synced", synced)
	}
	return synced, nil
}

// RunSweeper calls ProcessPending once immediately and then every interval
// until ctx ends.
func (w *SyncWorker) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Pending sweep failed",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldError, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
