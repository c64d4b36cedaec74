package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

func TestMemoryStoreInsertAndSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx := core.Transaction{
		Description: "t",
		Amount:      core.Money{Cents: 123},
		Kind:        core.Expense,
		Category:    core.CategoryShopping,
		Date:        core.NewDate(2025, 1, 1),
	}
	id1, err := s.Insert(ctx, "u1", tx)
	if err != nil || id1 == "" {
		t.Fatalf("unexpected insert: id=%q err=%v", id1, err)
	}
	id2, _ := s.Insert(ctx, "u1", tx)
	if _, err := s.Insert(ctx, "u2", tx); err != nil {
		t.Fatal(err)
	}
	if id1 == id2 {
		t.Fatalf("ids must be unique")
	}

	recs, err := s.Snapshot(ctx, "u1")
	if err != nil || len(recs) != 2 || recs[0].ID != id1 || recs[1].ID != id2 {
		t.Fatalf("unexpected snapshot: %+v err=%v", recs, err)
	}
	if recs[0].OwnerID != "u1" || recs[0].Amount != 1.23 {
		t.Fatalf("record = %+v", recs[0])
	}

	got, err := s.GetTransaction(ctx, id2)
	if err != nil || got.ID != id2 {
		t.Fatalf("GetTransaction = %+v, %v", got, err)
	}
	if _, err := s.GetTransaction(ctx, "nope"); err != ports.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.Insert(ctx, "", tx); err == nil {
		t.Fatalf("expected missing owner to fail")
	}
}

func TestNewFromFileSeeds(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFromFile(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing seed file should be fine: %v", err)
	}
	if recs, _ := s.Snapshot(context.Background(), "u1"); len(recs) != 0 {
		t.Fatalf("expected empty store")
	}

	seed := `[
	  {"id":"a","description":"Salary","amount":1000,"transactionType":"income","category":"other","date":"2025-01-01","ownerId":"u1"},
	  {"id":"b","description":"","amount":5,"transactionType":"expense","category":"food","date":"2025-01-02","ownerId":"u1"},
	  {"id":"c","description":"Snacks","amount":4.5,"transactionType":"expense","category":"crisps","date":"2025-01-03","ownerId":"u1"}
	]`
	path := filepath.Join(dir, "seed.json")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err = NewFromFile(path)
	if err != nil {
		t.Fatalf("NewFromFile: %v", err)
	}
	recs, _ := s.Snapshot(context.Background(), "u1")
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "c" || recs[1].Category != "other" {
		t.Fatalf("unexpected seeded records: %+v", recs)
	}
}
