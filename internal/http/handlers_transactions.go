package http

import (
	"bytes"
	"net/http"
	"sync/atomic"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// handleListTransactions returns the filtered ledger and its totals as JSON.
// Totals always cover the whole ledger, whatever the filter.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	mode, err := core.ParseViewMode(r.URL.Query().Get("filter"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	ledger, err := s.ledger.Snapshot(r.Context(), sess)
	if err != nil {
		status, msg, kind := statusFor(err)
		writeJSON(w, status, errorBody{Error: msg, Kind: kind})
		return
	}
	writeJSON(w, http.StatusOK, newLedgerJSON(mode, ledger))
}

// handleCreateTransactionAPI stores a JSON draft and returns the confirmed
// transaction with 201.
func (s *Server) handleCreateTransactionAPI(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	draft, err := ParseDraft(w, r)
	if err != nil {
		if isClientError(err) {
			status, msg, kind := statusFor(err)
			writeJSON(w, status, errorBody{Error: msg, Kind: kind})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	t, err := s.ledger.AddTransaction(r.Context(), sess, draft)
	if err != nil {
		status, msg, kind := statusFor(err)
		writeJSON(w, status, errorBody{Error: msg, Kind: kind})
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)

	w.Header().Set("Location", "/api/transactions")
	writeJSON(w, http.StatusCreated, newTransactionJSON(t))
}

// handleCreateTransactionForm is the add form's target. htmx gets a status
// fragment plus HX-Trigger events; a plain form post is redirected back.
func (s *Server) handleCreateTransactionForm(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	draft, err := ParseDraft(w, r)
	if err != nil && !isClientError(err) {
		ErrorFragment(http.StatusBadRequest, "Malformed form data").Write(w)
		return
	}

	var t core.Transaction
	if err == nil {
		t, err = s.ledger.AddTransaction(r.Context(), sess, draft)
	}
	if err != nil {
		status, msg, _ := statusFor(err)
		ErrorFragment(status, msg).Notify(NotifyError, msg).Write(w)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)

	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	NewFragment(http.StatusCreated).
		TransactionCreated(t).
		FormReset().
		Notify(NotifySuccess, "Added "+t.Description).
		Message("success", "Transaction added").
		Write(w)
}

// handleLedgerPartial renders the cards and the list for one filter. The page
// reloads it after its own writes when the live stream is not connected.
func (s *Server) handleLedgerPartial(w http.ResponseWriter, r *http.Request) {
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	mode, err := core.ParseViewMode(r.URL.Query().Get("filter"))
	if err != nil {
		ErrorFragment(http.StatusBadRequest, err.Error()).Write(w)
		return
	}

	warning := ""
	ledger, err := s.ledger.Snapshot(r.Context(), sess)
	if err != nil {
		ledger = core.NewLedger(sess.OwnerID)
		_, warning, _ = statusFor(err)
		s.logger.WarnContext(r.Context(), "Ledger partial without snapshot",
			applog.FieldOwnerID, sess.OwnerID, applog.FieldError, err)
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "ledger", newLedgerData(mode, ledger, warning)); err != nil {
		s.logger.ErrorContext(r.Context(), "Template render failed", "template", "ledger", applog.FieldError, err)
		ErrorFragment(http.StatusInternalServerError, "Could not render transactions").Write(w)
		return
	}
	NewFragment(http.StatusOK).HTML(buf.Bytes()).Write(w)
}

// isClientError reports whether err describes bad input rather than a
// failing dependency.
func isClientError(err error) bool {
	status, _, _ := statusFor(err)
	return status == http.StatusUnprocessableEntity || status == http.StatusUnauthorized
}
