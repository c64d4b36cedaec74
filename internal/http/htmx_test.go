package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"expensetracker/internal/core"
)

func triggers(t *testing.T, rr *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var events map[string]json.RawMessage
	if err := json.Unmarshal([]byte(rr.Header().Get("HX-Trigger")), &events); err != nil {
		t.Fatalf("HX-Trigger %q: %v", rr.Header().Get("HX-Trigger"), err)
	}
	return events
}

func TestFragmentAfterCreate(t *testing.T) {
	tx := core.Transaction{ID: "tx-1", Kind: core.Income, Description: "Salary"}
	rr := httptest.NewRecorder()

	NewFragment(http.StatusCreated).
		TransactionCreated(tx).
		FormReset().
		Notify(NotifySuccess, "Added Salary").
		Message("success", "Transaction added").
		Write(rr)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); got != `<div class="success">Transaction added</div>` {
		t.Errorf("body = %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}

	events := triggers(t, rr)
	var created map[string]string
	if err := json.Unmarshal(events[EventTransactionCreated], &created); err != nil {
		t.Fatal(err)
	}
	if created["id"] != "tx-1" || created["kind"] != "income" {
		t.Errorf("created detail = %v", created)
	}
	if string(events[EventFormReset]) != "{}" {
		t.Errorf("form reset detail = %s", events[EventFormReset])
	}

	var toast struct {
		Type     string `json:"type"`
		Message  string `json:"message"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(events[EventNotification], &toast); err != nil {
		t.Fatal(err)
	}
	if toast.Type != "success" || toast.Message != "Added Salary" || toast.Duration != 3000 {
		t.Errorf("toast = %+v", toast)
	}
}

func TestErrorFragment(t *testing.T) {
	tests := []struct {
		name     string
		frag     *Fragment
		status   int
		body     string
		redirect string
	}{
		{
			name:   "validation",
			frag:   ErrorFragment(http.StatusUnprocessableEntity, "Description is required"),
			status: http.StatusUnprocessableEntity,
			body:   `<div class="error">Description is required</div>`,
		},
		{
			name:     "signed out",
			frag:     ErrorFragment(http.StatusUnauthorized, "Please sign in first").Redirect("/"),
			status:   http.StatusUnauthorized,
			body:     `<div class="error">Please sign in first</div>`,
			redirect: "/",
		},
		{
			name:   "escapes markup",
			frag:   ErrorFragment(http.StatusBadRequest, `<script>alert("x")</script>`),
			status: http.StatusBadRequest,
			body:   `<div class="error">&lt;script&gt;alert(&#34;x&#34;)&lt;/script&gt;</div>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.frag.Write(rr)

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if rr.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.body)
			}
			if got := rr.Header().Get("HX-Redirect"); got != tt.redirect {
				t.Errorf("HX-Redirect = %q, want %q", got, tt.redirect)
			}
			if rr.Header().Get("HX-Trigger") != "" {
				t.Error("plain error fragment should not fire events")
			}
		})
	}
}

func TestErrorNotificationStaysLonger(t *testing.T) {
	rr := httptest.NewRecorder()
	ErrorFragment(http.StatusServiceUnavailable, "Storage is unreachable").
		Notify(NotifyError, "Storage is unreachable").
		Write(rr)

	var toast struct {
		Type     string `json:"type"`
		Duration int    `json:"duration"`
	}
	if err := json.Unmarshal(triggers(t, rr)[EventNotification], &toast); err != nil {
		t.Fatal(err)
	}
	if toast.Type != "error" || toast.Duration != 5000 {
		t.Errorf("toast = %+v", toast)
	}
}

func TestFragmentWithoutBody(t *testing.T) {
	rr := httptest.NewRecorder()
	NewFragment(http.StatusNoContent).Event(EventSignedOut, nil).Redirect("/").Write(rr)

	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("status = %d body = %q", rr.Code, rr.Body.String())
	}
	if _, ok := triggers(t, rr)[EventSignedOut]; !ok {
		t.Error("missing sign-out event")
	}
}
