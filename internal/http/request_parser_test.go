package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

func newPost(contentType, body string) (http.ResponseWriter, *http.Request) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return httptest.NewRecorder(), req
}

func TestParseDraft(t *testing.T) {
	form := "application/x-www-form-urlencoded"
	tests := []struct {
		name        string
		contentType string
		body        string
		want        core.Draft
		wantErr     error
	}{
		{
			name:        "json with number amount",
			contentType: "application/json",
			body:        `{"description":"Salary","amount":1000.5,"transactionType":"income","category":"other","date":"2024-03-01"}`,
			want: core.Draft{
				Description: "Salary",
				Amount:      decimal.RequireFromString("1000.5"),
				Kind:        "income",
				Category:    "other",
				Date:        core.NewDate(2024, 3, 1),
			},
		},
		{
			name:        "json with string amount and kind alias",
			contentType: "application/json",
			body:        `{"description":"Rent","amount":"250","kind":"expense"}`,
			want:        core.Draft{Description: "Rent", Amount: decimal.RequireFromString("250"), Kind: "expense"},
		},
		{
			name:        "form with comma separator",
			contentType: form,
			body:        url.Values{"description": {" Groceries "}, "amount": {"12,34"}, "transactionType": {"expense"}, "category": {"food"}}.Encode(),
			want:        core.Draft{Description: "Groceries", Amount: decimal.RequireFromString("12.34"), Kind: "expense", Category: "food"},
		},
		{
			name:        "json without content type",
			body:        `{"description":"Tip","amount":2,"transactionType":"expense"}`,
			want:        core.Draft{Description: "Tip", Amount: decimal.RequireFromString("2"), Kind: "expense"},
		},
		{
			name:        "control characters are stripped",
			contentType: form,
			body:        url.Values{"description": {"Bus\x00\x07"}, "amount": {"3"}, "transactionType": {"expense"}}.Encode(),
			want:        core.Draft{Description: "Bus", Amount: decimal.RequireFromString("3"), Kind: "expense"},
		},
		{
			name:        "unparseable amount",
			contentType: form,
			body:        "description=x&amount=abc&transactionType=expense",
			wantErr:     core.ErrNonPositiveAmount,
		},
		{
			name:        "missing amount",
			contentType: "application/json",
			body:        `{"description":"x","transactionType":"expense"}`,
			wantErr:     core.ErrNonPositiveAmount,
		},
		{
			name:        "comma used as digit grouping",
			contentType: "application/json",
			body:        `{"description":"x","amount":"1,000","transactionType":"expense"}`,
			wantErr:     core.ErrNonPositiveAmount,
		},
		{
			name:        "grouping with decimal point",
			contentType: form,
			body:        "description=x&amount=1%2C234.50&transactionType=expense",
			wantErr:     core.ErrNonPositiveAmount,
		},
		{
			name:        "bad date",
			contentType: form,
			body:        "description=x&amount=1&transactionType=expense&date=2024-13-40",
			wantErr:     core.ErrInvalidDate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDraft(newPost(tt.contentType, tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDraft: %v", err)
			}
			if got.Description != tt.want.Description || got.Kind != tt.want.Kind || got.Category != tt.want.Category {
				t.Errorf("draft = %+v, want %+v", got, tt.want)
			}
			if !got.Amount.Equal(tt.want.Amount) {
				t.Errorf("amount = %s, want %s", got.Amount, tt.want.Amount)
			}
			if !got.Date.Equal(tt.want.Date.Time) {
				t.Errorf("date = %v, want %v", got.Date, tt.want.Date)
			}
		})
	}
}

func TestParseDraftMalformedBody(t *testing.T) {
	_, err := ParseDraft(newPost("application/json", `{"description":`))
	if err == nil || isClientError(err) {
		t.Fatalf("malformed JSON should be a parse error, got %v", err)
	}

	huge := "description=" + strings.Repeat("a", maxBodyBytes+1)
	_, err = ParseDraft(newPost("application/x-www-form-urlencoded", huge))
	var tooLarge *http.MaxBytesError
	if !errors.As(err, &tooLarge) {
		t.Fatalf("oversized body err = %v", err)
	}
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantID  string
		wantTok string
		wantErr bool
	}{
		{name: "google redirect credential", body: "credential=abc.def.ghi", wantTok: "abc.def.ghi"},
		{name: "explicit id token", body: "id_token=tok&credential=other", wantTok: "tok"},
		{name: "dev login", body: "user_id=alice&name=Alice", wantID: "alice"},
		{name: "nothing", body: "name=Alice", wantErr: true},
		{name: "json dev login", body: `{"user_id":"bob","name":"Bob"}`, wantID: "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCredentials(newPost("application/x-www-form-urlencoded", tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if c.UserID != tt.wantID || c.IDToken != tt.wantTok {
				t.Errorf("credentials = %+v", c)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", core.ErrEmptyDescription, http.StatusUnprocessableEntity},
		{"date", core.ErrInvalidDate, http.StatusUnprocessableEntity},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _, _ := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
