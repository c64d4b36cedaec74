package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/feed"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage/memory"
)

var alice = auth.Session{OwnerID: "alice", Name: "Alice", IsAuthenticated: true}

func draft(desc, amount, kind string) core.Draft {
	return core.Draft{
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		Kind:        kind,
		Category:    "food",
	}
}

// fakeStore wraps a memory store and counts calls or fails on demand.
type fakeStore struct {
	*memory.Store
	mu          sync.Mutex
	inserts     int
	snapshots   int
	insertErr   error
	snapshotErr error
	invalidated []string
}

func newFakeStore() *fakeStore { return &fakeStore{Store: memory.New()} }

func (f *fakeStore) Insert(ctx context.Context, owner string, t core.Transaction) (string, error) {
	f.mu.Lock()
	f.inserts++
	err := f.insertErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Store.Insert(ctx, owner, t)
}

func (f *fakeStore) Snapshot(ctx context.Context, owner string) ([]core.Record, error) {
	f.mu.Lock()
	f.snapshots++
	err := f.snapshotErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Snapshot(ctx, owner)
}

func (f *fakeStore) Invalidate(owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, owner)
}

func (f *fakeStore) setSnapshotErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotErr = err
}

type fakeSync struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeSync) PublishTransactionSync(_ context.Context, id, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return f.err
}

func newService(t *testing.T, store ports.TransactionStore, opts ...Option) (*LedgerService, *feed.Hub) {
	t.Helper()
	hub := feed.NewHub()
	t.Cleanup(hub.Close)
	fixed := time.Date(2024, 3, 9, 10, 0, 0, 0, time.Local)
	opts = append([]Option{WithClock(func() time.Time { return fixed })}, opts...)
	return NewLedgerService(store, hub, opts...), hub
}

func next(t *testing.T, sub *Subscription) Update {
	t.Helper()
	select {
	case u, ok := <-sub.Updates():
		if !ok {
			t.Fatal("updates channel closed")
		}
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	return Update{}
}

func TestAddTransaction(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSync{}
	svc, _ := newService(t, store, WithSyncPublisher(syncer))

	got, err := svc.AddTransaction(context.Background(), alice, draft("  Lunch ", "12.50", "expense"))
	if err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	if got.ID == "" || got.OwnerID != "alice" {
		t.Errorf("identity not assigned: %+v", got)
	}
	if got.Description != "Lunch" || got.Amount.Cents != 1250 {
		t.Errorf("unexpected transaction %+v", got)
	}
	if got.Date.String() != "2024-03-09" {
		t.Errorf("Date = %s, want clock date", got.Date)
	}
	if len(syncer.ids) != 1 || syncer.ids[0] != got.ID {
		t.Errorf("sync published %v", syncer.ids)
	}
}

func TestAddTransactionValidationSkipsStorage(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)

	tests := []struct {
		name string
		d    core.Draft
		want error
	}{
		{"empty description", draft("   ", "5", "expense"), core.ErrEmptyDescription},
		{"zero amount", draft("x", "0", "expense"), core.ErrNonPositiveAmount},
		{"negative amount", draft("x", "-5", "income"), core.ErrNonPositiveAmount},
		{"bad kind", draft("x", "5", "transfer"), core.ErrInvalidKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddTransaction(context.Background(), alice, tt.d)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if store.inserts != 0 {
		t.Errorf("storage called %d times for invalid drafts", store.inserts)
	}
}

func TestAddTransactionRequiresSession(t *testing.T) {
	svc, _ := newService(t, newFakeStore())
	_, err := svc.AddTransaction(context.Background(), auth.Anonymous, draft("x", "1", "income"))
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
}

func TestAddTransactionPersistenceFailure(t *testing.T) {
	store := newFakeStore()
	syncer := &fakeSync{}
	svc, hub := newService(t, store, WithSyncPublisher(syncer))

	ch, cancel, _ := hub.Subscribe(context.Background(), "alice")
	defer cancel()

	store.insertErr = errors.New("disk on fire")
	_, err := svc.AddTransaction(context.Background(), alice, draft("Rent", "900", "expense"))
	if kind, ok := ports.PersistenceKindOf(err); !ok || kind != ports.Unknown {
		t.Fatalf("err = %v, want Unknown PersistenceError", err)
	}

	store.insertErr = ports.NewPersistenceError(ports.Unreachable, errors.New("offline"))
	_, err = svc.AddTransaction(context.Background(), alice, draft("Rent", "900", "expense"))
	if kind, _ := ports.PersistenceKindOf(err); kind != ports.Unreachable {
		t.Fatalf("kind = %v, want Unreachable", kind)
	}

	if len(syncer.ids) != 0 {
		t.Error("sync must not be published for failed inserts")
	}
	select {
	case <-ch:
		t.Error("feed must not be notified for failed inserts")
	default:
	}
	ledger, _ := svc.Snapshot(context.Background(), alice)
	if ledger.Len() != 0 {
		t.Errorf("failed transaction visible: %d", ledger.Len())
	}
}

func TestAddTransactionSyncFailureIsNotFatal(t *testing.T) {
	svc, _ := newService(t, newFakeStore(), WithSyncPublisher(&fakeSync{err: errors.New("broker down")}))
	if _, err := svc.AddTransaction(context.Background(), alice, draft("Pay", "1000", "income")); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
}

func TestSnapshotScenario(t *testing.T) {
	svc, _ := newService(t, newFakeStore())
	ctx := context.Background()
	for _, d := range []core.Draft{
		draft("Salary", "1000", "income"),
		draft("Groceries", "200", "expense"),
		draft("Bus", "50", "expense"),
	} {
		if _, err := svc.AddTransaction(ctx, alice, d); err != nil {
			t.Fatal(err)
		}
	}

	ledger, err := svc.Snapshot(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	totals := core.ComputeTotals(ledger)
	if totals.Income.Format() != "$1,000.00" || totals.Expenses.Format() != "$250.00" || totals.Balance.Format() != "$750.00" {
		t.Errorf("totals = %+v", totals)
	}

	bob := auth.Session{OwnerID: "bob", IsAuthenticated: true}
	other, _ := svc.Snapshot(ctx, bob)
	if other.Len() != 0 {
		t.Errorf("bob sees %d of alice's transactions", other.Len())
	}
}

func TestSubscriptionReceivesChanges(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(t, store)
	ctx := context.Background()

	sub, err := svc.Subscribe(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if u := next(t, sub); u.Ledger.Len() != 0 || u.Stale() {
		t.Fatalf("initial update = %+v", u)
	}

	if _, err := svc.AddTransaction(ctx, alice, draft("Salary", "1000", "income")); err != nil {
		t.Fatal(err)
	}
	u := next(t, sub)
	if u.Ledger.Len() != 1 || u.Totals.Income.Cents != 100000 {
		t.Fatalf("update after insert = %+v", u)
	}
	if got := sub.View(core.ViewExpense); len(got) != 0 {
		t.Errorf("expense view = %v, want empty", got)
	}
	if got := sub.View(core.ViewIncome); len(got) != 1 {
		t.Errorf("income view = %v", got)
	}
	if len(store.invalidated) == 0 {
		t.Error("cache not invalidated before refresh")
	}
}

func TestSubscriptionKeepsLastSnapshotOnError(t *testing.T) {
	store := newFakeStore()
	svc, hub := newService(t, store)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, alice, draft("Salary", "1000", "income")); err != nil {
		t.Fatal(err)
	}
	sub, err := svc.Subscribe(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	next(t, sub)

	store.setSnapshotErr(errors.New("stream broken"))
	_ = hub.Publish(ctx, "alice")

	u := next(t, sub)
	if !u.Stale() || !IsSubscriptionError(u.Err) {
		t.Fatalf("expected stale update, got %+v", u)
	}
	if u.Ledger.Len() != 1 || sub.Current().Len() != 1 {
		t.Errorf("last snapshot lost")
	}
	if sub.Totals().Balance.Cents != 100000 {
		t.Errorf("totals = %+v", sub.Totals())
	}
	if sub.Err() == nil {
		t.Error("Err() should report the failed refresh")
	}

	store.setSnapshotErr(nil)
	_ = hub.Publish(ctx, "alice")
	if u := next(t, sub); u.Stale() {
		t.Fatalf("recovery update still stale: %+v", u)
	}
	if sub.Err() != nil {
		t.Errorf("Err() = %v after recovery", sub.Err())
	}
}

func TestSubscriptionInitialFailureIsNotFatal(t *testing.T) {
	store := newFakeStore()
	store.setSnapshotErr(errors.New("offline"))
	svc, _ := newService(t, store)

	sub, err := svc.Subscribe(context.Background(), alice)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	u := next(t, sub)
	if !u.Stale() || u.Ledger.Len() != 0 || u.Ledger.Owner() != "alice" {
		t.Fatalf("initial update = %+v", u)
	}
}

func TestSubscriptionTeardown(t *testing.T) {
	t.Run("close", func(t *testing.T) {
		svc, hub := newService(t, newFakeStore())
		sub, _ := svc.Subscribe(context.Background(), alice)
		sub.Close()
		sub.Close()
		if hub.Subscribers("alice") != 0 {
			t.Error("feed subscription leaked")
		}
	})

	t.Run("context cancel", func(t *testing.T) {
		svc, _ := newService(t, newFakeStore())
		ctx, cancel := context.WithCancel(context.Background())
		sub, _ := svc.Subscribe(ctx, alice)
		cancel()
		select {
		case <-sub.Done():
		case <-time.After(2 * time.Second):
			t.Fatal("subscription still running after cancel")
		}
	})

	t.Run("sign out", func(t *testing.T) {
		svc, _ := newService(t, newFakeStore())
		a, _ := svc.Subscribe(context.Background(), alice)
		b, _ := svc.Subscribe(context.Background(), alice)
		if n := svc.EndSessions("alice"); n != 2 {
			t.Fatalf("EndSessions = %d, want 2", n)
		}
		for _, sub := range []*Subscription{a, b} {
			select {
			case <-sub.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("subscription survived sign-out")
			}
		}
	})
}

func TestSubscribeRequiresSession(t *testing.T) {
	svc, _ := newService(t, newFakeStore())
	if _, err := svc.Subscribe(context.Background(), auth.Anonymous); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
}
