package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goption "google.golang.org/api/option"

	"expensetracker/internal/core"
)

func sample() core.Transaction {
	return core.Transaction{
		ID:          "tx-1",
		OwnerID:     "u1",
		Description: "Groceries",
		Amount:      core.Money{Cents: 1250},
		Kind:        core.Expense,
		Category:    core.CategoryFood,
		Date:        core.NewDate(2024, 3, 9),
	}
}

func TestRow(t *testing.T) {
	got := row(sample())
	want := []any{"2024-03-09", "Groceries", "12.50", "-12.50", "expense", "Food", "u1", "tx-1"}
	if len(got) != len(want) || len(got) != len(Header) {
		t.Fatalf("row has %d cells, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNewRequiresSpreadsheet(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || err.Error() != "missing spreadsheet id" {
		t.Fatalf("err = %v", err)
	}
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	if b, err := credentials(ctx, Config{ServiceAccountJSON: `{"type":"service_account"}`}); err != nil || !strings.Contains(string(b), "service_account") {
		t.Fatalf("inline credentials = %q, %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if b, err := credentials(ctx, Config{ServiceAccountFile: path}); err != nil || string(b) != `{"from":"file"}` {
		t.Fatalf("file credentials = %q, %v", b, err)
	}

	if _, err := credentials(ctx, Config{}); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestAppendValidatesAndRequiresService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Transactions"}

	bad := sample()
	bad.Amount = core.Money{}
	if _, err := c.Append(context.Background(), bad); err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
	if _, err := c.Append(context.Background(), sample()); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("err = %v", err)
	}
}

func TestAppendWritesRow(t *testing.T) {
	var gotPath, gotInput string
	var gotValues [][]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInput = r.URL.Query().Get("valueInputOption")
		var body struct {
			Values [][]any `json:"values"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotValues = body.Values
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updates":{"updatedRange":"Transactions!A7:H7"}}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-id", SheetName: "Transactions"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication(),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}

	ref, err := c.Append(context.Background(), sample())
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ref != "Transactions!A7:H7" {
		t.Errorf("ref = %q", ref)
	}
	if !strings.Contains(gotPath, "/spreadsheets/sheet-id/values/") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("path = %q", gotPath)
	}
	if gotInput != "USER_ENTERED" {
		t.Errorf("valueInputOption = %q", gotInput)
	}
	if len(gotValues) != 1 || gotValues[0][1] != "Groceries" || gotValues[0][2] != "12.50" {
		t.Errorf("values = %v", gotValues)
	}
}

func TestAppendReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(context.Background(), Config{SpreadsheetID: "sheet-id"},
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(context.Background(), sample()); err == nil || !strings.Contains(err.Error(), "append to sheet Transactions") {
		t.Fatalf("err = %v", err)
	}
}
