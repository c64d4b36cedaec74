package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/feed"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
)

// SyncPublisher queues a stored transaction for mirroring.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, id, ownerID string) error
}

// snapshotInvalidator is implemented by stores that cache snapshots.
type snapshotInvalidator interface {
	Invalidate(ownerID string)
}

// LedgerService is the write path and the live read path of a user's ledger.
type LedgerService struct {
	store  ports.TransactionStore
	broker feed.Broker
	sync   SyncPublisher
	logger *applog.StructuredLogger
	now    func() time.Time
}

type Option func(*LedgerService)

// WithSyncPublisher turns on mirror sync messages after each insert.
func WithSyncPublisher(p SyncPublisher) Option {
	return func(s *LedgerService) { s.sync = p }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *LedgerService) { s.logger = applog.NewStructuredLogger(l) }
}

// WithClock replaces time.Now when defaulting transaction dates.
func WithClock(now func() time.Time) Option {
	return func(s *LedgerService) { s.now = now }
}

func NewLedgerService(store ports.TransactionStore, broker feed.Broker, opts ...Option) *LedgerService {
	s := &LedgerService{
		store:  store,
		broker: broker,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.NewStructuredLogger(applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentLedger,
		}))
	}
	return s
}

// AddTransaction validates d, stores it for the session's owner and returns
// the confirmed transaction. A ValidationError is returned before storage is
// touched; a storage failure comes back as a *ports.PersistenceError and
// nothing is retried. Mirror sync and change notification are best-effort.
func (s *LedgerService) AddTransaction(ctx context.Context, sess auth.Session, d core.Draft) (core.Transaction, error) {
	if err := sess.Require(); err != nil {
		return core.Transaction{}, err
	}

	t, err := core.NewTransactionAt(d, s.now())
	if err != nil {
		slog.WarnContext(ctx, "Rejected transaction",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOwnerID, sess.OwnerID,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldError, err)
		return core.Transaction{}, err
	}

	id, err := s.store.Insert(ctx, sess.OwnerID, t)
	if err != nil {
		if _, ok := ports.PersistenceKindOf(err); !ok {
			err = ports.NewPersistenceError(ports.Unknown, err)
		}
		s.logger.LogError(ctx, "Failed to store transaction", err, applog.ComponentLedger, applog.OpCreate,
			applog.NewFields().WithOwner(sess.OwnerID).WithErrorType(applog.ErrorTypeDatabase))
		return core.Transaction{}, err
	}
	t = t.WithIdentity(id, sess.OwnerID)

	if s.sync != nil {
		if err := s.sync.PublishTransactionSync(ctx, id, sess.OwnerID); err != nil {
			slog.WarnContext(ctx, "Failed to queue mirror sync",
				applog.FieldComponent, applog.ComponentLedger,
				applog.FieldTxID, id,
				applog.FieldError, err)
		}
	}
	if err := s.broker.Publish(ctx, sess.OwnerID); err != nil {
		slog.WarnContext(ctx, "Failed to publish ledger change",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOwnerID, sess.OwnerID,
			applog.FieldError, err)
	}

	s.logger.LogTransactionCreated(ctx, sess.OwnerID, id, t.Kind.String(), t.Category.String(), t.Amount.Cents)
	return t, nil
}

// Snapshot fetches the owner's ledger once. Stored records that no longer
// decode are left out and logged.
func (s *LedgerService) Snapshot(ctx context.Context, sess auth.Session) (core.Ledger, error) {
	if err := sess.Require(); err != nil {
		return core.Ledger{}, err
	}
	records, err := s.store.Snapshot(ctx, sess.OwnerID)
	if err != nil {
		return core.Ledger{}, fmt.Errorf("fetch snapshot: %w", err)
	}
	ledger, err := core.LedgerFromRecords(sess.OwnerID, records)
	if err != nil {
		slog.WarnContext(ctx, "Skipped unreadable records",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOwnerID, sess.OwnerID,
			"kept", ledger.Len(),
			"total", len(records),
			applog.FieldError, err)
	}
	return ledger, nil
}

// EndSessions tears down every live subscription of ownerID, as on sign-out.
func (s *LedgerService) EndSessions(ownerID string) int {
	if d, ok := s.broker.(feed.Disconnector); ok {
		return d.Disconnect(ownerID)
	}
	return 0
}

func (s *LedgerService) invalidate(ownerID string) {
	if inv, ok := s.store.(snapshotInvalidator); ok {
		inv.Invalidate(ownerID)
	}
}

// SubscriptionError reports a failed refresh of a live subscription. The
// subscription keeps serving its last good snapshot.
type SubscriptionError struct {
	OwnerID string
	Err     error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("ledger subscription for %s: %v", e.OwnerID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// IsSubscriptionError reports whether err is a *SubscriptionError.
func IsSubscriptionError(err error) bool {
	var se *SubscriptionError
	return errors.As(err, &se)
}
