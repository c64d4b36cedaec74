package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if s.ready != nil {
		if err := s.ready(ctx); err != nil {
			checks["storage"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["storage"] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_requests_in_flight", "Requests currently being served", "gauge", traceMetrics.InFlight)
	metric("http_server_errors_total", "Responses with a 5xx status", "counter", traceMetrics.ServerErrors)
	metric("transactions_created_total", "Transactions stored through this server", "counter",
		atomic.LoadInt64(&s.appMetrics.transactionsCreated))
	metric("ledger_streams_active", "Open live ledger streams", "gauge",
		atomic.LoadInt64(&s.appMetrics.activeStreams))
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("rate_limit_clients", "Clients tracked by the rate limiter", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("invalid_ip_attempts_total", "Forwarded addresses that did not parse", "counter", securityMetrics.InvalidIPAttempts)
	metric("uptime_seconds", "Seconds since the server started", "gauge",
		int64(time.Since(s.appMetrics.uptime).Seconds()))
}

// pageData feeds index.html and tracker.html.
type pageData struct {
	Session        auth.Session
	Filter         core.ViewMode
	Filters        []filterTab
	Ledger         ledgerData
	Categories     []core.Category
	Today          string
	GoogleClientID string
	DevLogin       bool
}

// ledgerData feeds the "ledger" partial, which is also what the live stream
// swaps into the page.
type ledgerData struct {
	Filter       core.ViewMode
	Transactions []core.Transaction
	Totals       core.Totals
	Warning      string
}

type filterTab struct {
	Mode   core.ViewMode
	Label  string
	Active bool
}

func filterTabs(active core.ViewMode) []filterTab {
	tabs := []filterTab{
		{Mode: core.ViewAll, Label: "All"},
		{Mode: core.ViewIncome, Label: "Income"},
		{Mode: core.ViewExpense, Label: "Expenses"},
	}
	for i := range tabs {
		tabs[i].Active = tabs[i].Mode == active
	}
	return tabs
}

func newLedgerData(mode core.ViewMode, l core.Ledger, warning string) ledgerData {
	return ledgerData{
		Filter:       mode,
		Transactions: core.View(l, mode),
		Totals:       core.ComputeTotals(l),
		Warning:      warning,
	}
}

// handleIndex shows the sign-in page to anonymous visitors and the tracker
// to everyone else. A failed snapshot still renders the page, empty and with
// a warning.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	data := pageData{
		Session:        sess,
		GoogleClientID: s.googleClientID,
		DevLogin:       s.devLogin,
	}
	if sess.Require() != nil {
		s.render(w, r, "index.html", data)
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
		warning = "Your transactions could not be loaded right now."
		s.logger.WarnContext(r.Context(), "Rendering tracker without snapshot",
			applog.FieldOwnerID, sess.OwnerID, applog.FieldError, err)
	}

	data.Filter = mode
	data.Filters = filterTabs(mode)
	data.Ledger = newLedgerData(mode, ledger, warning)
	data.Categories = core.Categories()
	data.Today = core.Today().String()
	s.render(w, r, "tracker.html", data)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template render failed",
			"template", name,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// handleSignIn verifies credentials from the identity provider and sets the
// session cookie.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	creds, err := ParseCredentials(w, r)
	if err != nil {
		s.signInFailed(w, r, http.StatusBadRequest, err)
		return
	}

	sess, err := s.verifier.Verify(r.Context(), creds)
	if err != nil {
		s.signInFailed(w, r, http.StatusUnauthorized, err)
		return
	}

	token, err := s.issuer.Issue(sess)
	if err != nil {
		s.signInFailed(w, r, http.StatusInternalServerError, err)
		return
	}
	s.setSessionCookie(w, r, token)

	s.logger.WithComponent(applog.ComponentAuth).InfoContext(r.Context(), "User signed in",
		applog.FieldOwnerID, sess.OwnerID,
		applog.FieldOperation, applog.OpSignIn)

	switch {
	case isHTMX(r):
		NewFragment(http.StatusNoContent).Redirect("/").Write(w)
	case wantsJSON(r):
		writeJSON(w, http.StatusOK, map[string]interface{}{"session": sess, "token": token})
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

func (s *Server) signInFailed(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.WithComponent(applog.ComponentAuth).WarnContext(r.Context(), "Sign-in rejected",
		applog.FieldOperation, applog.OpSignIn,
		applog.FieldErrorType, applog.ErrorTypeAuth,
		applog.FieldError, err)

	msg := "Sign-in failed"
	if status == http.StatusBadRequest {
		msg = "Missing sign-in credentials"
	}
	if isHTMX(r) || !wantsJSON(r) {
		ErrorFragment(status, msg).Write(w)
		return
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// handleSignOut clears the cookie and ends every live stream of the owner.
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w, r)

	if sess := auth.FromContext(r.Context()); sess.Require() == nil {
		ended := s.ledger.EndSessions(sess.OwnerID)
		s.logger.WithComponent(applog.ComponentAuth).InfoContext(r.Context(), "User signed out",
			applog.FieldOwnerID, sess.OwnerID,
			applog.FieldOperation, applog.OpSignOut,
			"streams_ended", ended)
	}

	switch {
	case isHTMX(r):
		NewFragment(http.StatusNoContent).Event(EventSignedOut, nil).Redirect("/").Write(w)
	case wantsJSON(r):
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// wantsJSON reports whether the client asked for or sent JSON.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
