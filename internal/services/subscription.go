package services

import (
	"context"
	"log/slog"
	"sync"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// Update is one push of a live subscription. When Err is set the refresh
// failed and Ledger is the last snapshot that did load.
type Update struct {
	Ledger core.Ledger
	Totals core.Totals
	Err    *SubscriptionError
}

// Stale reports whether the update carries an old snapshot.
func (u Update) Stale() bool { return u.Err != nil }

// Subscription keeps one owner's ledger current. Each change notification
// replaces the ledger with a freshly fetched snapshot.
type Subscription struct {
	svc     *LedgerService
	session auth.Session

	updates chan Update
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.RWMutex
	current core.Ledger
	lastErr *SubscriptionError
}

// Subscribe loads the current snapshot and keeps it fresh until Close is
// called, ctx ends, or the owner signs out. The first snapshot is already
// waiting on Updates when Subscribe returns. A failing first fetch is not
// an error here: it arrives as an Update with Err set over an empty ledger.
func (s *LedgerService) Subscribe(ctx context.Context, sess auth.Session) (*Subscription, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	// Register for notifications before the first fetch so no change made
	// in between is lost.
	notify, unsubscribe, err := s.broker.Subscribe(ctx, sess.OwnerID)
	if err != nil {
		cancel()
		return nil, err
	}

	sub := &Subscription{
		svc:     s,
		session: sess,
		updates: make(chan Update, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
		current: core.NewLedger(sess.OwnerID),
	}
	sub.refresh(ctx)

	go sub.run(ctx, notify, unsubscribe)

	slog.DebugContext(ctx, "Ledger subscription started",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldOperation, applog.OpSubscribe,
		applog.FieldOwnerID, sess.OwnerID)
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, notify <-chan struct{}, unsubscribe func()) {
	defer close(sub.done)
	defer close(sub.updates)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notify:
			if !ok {
				return
			}
			sub.svc.invalidate(sub.session.OwnerID)
			sub.refresh(ctx)
		}
	}
}

func (sub *Subscription) refresh(ctx context.Context) {
	ledger, err := sub.svc.Snapshot(ctx, sub.session)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		serr := &SubscriptionError{OwnerID: sub.session.OwnerID, Err: err}
		slog.WarnContext(ctx, "Ledger refresh failed, keeping last snapshot",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldOwnerID, sub.session.OwnerID,
			applog.FieldError, err)

		sub.mu.Lock()
		sub.lastErr = serr
		ledger = sub.current
		sub.mu.Unlock()

		sub.deliver(Update{Ledger: ledger, Totals: core.ComputeTotals(ledger), Err: serr})
		return
	}

	sub.mu.Lock()
	sub.current = ledger
	sub.lastErr = nil
	sub.mu.Unlock()

	sub.deliver(Update{Ledger: ledger, Totals: core.ComputeTotals(ledger)})
}

// deliver replaces any unread update with u. Only the run goroutine (and
// Subscribe before it starts) sends, so the loop ends after at most one drop.
func (sub *Subscription) deliver(u Update) {
	for {
		select {
		case sub.updates <- u:
			return
		default:
		}
		select {
		case <-sub.updates:
		default:
		}
	}
}

// Updates yields the latest snapshot after every change. Unread updates are
// replaced, not queued. The channel is closed when the subscription ends.
func (sub *Subscription) Updates() <-chan Update { return sub.updates }

// Current returns the last snapshot that loaded.
func (sub *Subscription) Current() core.Ledger {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	return sub.current
}

// Err returns the error of the latest refresh, or nil if it succeeded.
func (sub *Subscription) Err() error {
	sub.mu.RLock()
	defer sub.mu.RUnlock()
	if sub.lastErr == nil {
		return nil
	}
	return sub.lastErr
}

func (sub *Subscription) Totals() core.Totals {
	return core.ComputeTotals(sub.Current())
}

func (sub *Subscription) View(mode core.ViewMode) []core.Transaction {
	return core.View(sub.Current(), mode)
}

// Done is closed once the subscription has been torn down.
func (sub *Subscription) Done() <-chan struct{} { return sub.done }

// Close ends the subscription and waits for its goroutine. Safe to call
// more than once.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}
