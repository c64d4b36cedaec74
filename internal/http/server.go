// Package http serves the tracker pages, the JSON API and the live ledger
// stream.
package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/auth"
	applog "expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/services"
	appweb "expensetracker/web"
)

// Dependencies are the collaborators the HTTP layer needs.
type Dependencies struct {
	Ledger   *services.LedgerService
	Issuer   *auth.Issuer
	Verifier auth.Verifier
	// Ready reports whether storage can serve requests. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *applog.Logger

	RateLimitPerMinute int
	GoogleClientID     string
	DevLogin           bool
}

// Server wraps http.Server with the tracker's handlers and middleware.
type Server struct {
	*http.Server

	ledger   *services.LedgerService
	issuer   *auth.Issuer
	verifier auth.Verifier
	ready    func(ctx context.Context) error

	templates *template.Template
	logger    *applog.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	googleClientID string
	devLogin       bool

	streamKeepAlive time.Duration
	streamsCtx      context.Context
	stopStreams     context.CancelFunc

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	transactionsCreated int64
	activeStreams       int64
	uptime              time.Time
}

// NewServer builds the server and its routes. Templates are parsed here so a
// broken template fails startup instead of the first request.
func NewServer(addr string, deps Dependencies) (*Server, error) {
	if deps.Ledger == nil || deps.Issuer == nil || deps.Verifier == nil {
		return nil, errors.New("http server needs a ledger service, a session issuer and a verifier")
	}
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	staticFS, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	streamsCtx, stopStreams := context.WithCancel(context.Background())
	s := &Server{
		ledger:           deps.Ledger,
		issuer:           deps.Issuer,
		verifier:         deps.Verifier,
		ready:            deps.Ready,
		templates:        tmpl,
		logger:           logger,
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		securityDetector: security.NewDetector(),
		googleClientID:   deps.GoogleClientID,
		devLogin:         deps.DevLogin,
		streamKeepAlive:  25 * time.Second,
		streamsCtx:       streamsCtx,
		stopStreams:      stopStreams,
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, applog.NewStructuredLogger(logger))

	limit := func(h http.HandlerFunc) http.Handler {
		return s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(
		http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))),
	))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("POST /auth/session", limit(s.handleSignIn))
	mux.HandleFunc("POST /auth/signout", s.handleSignOut)

	mux.HandleFunc("GET /transactions", s.handleLedgerPartial)
	mux.Handle("POST /transactions", limit(s.handleCreateTransactionForm))
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.Handle("POST /api/transactions", limit(s.handleCreateTransactionAPI))
	mux.HandleFunc("GET /api/stream", s.handleStream)

	var handler http.Handler = mux
	handler = s.withSession(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = applog.Middleware(logger, trace.RequestIDFromRequest)(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Streams never go idle on their own.
	s.Server.RegisterOnShutdown(stopStreams)
	return s, nil
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)

	if isHTMX(r) {
		const msg = "Too many requests, slow down"
		ErrorFragment(http.StatusTooManyRequests, msg).Notify(NotifyError, msg).Write(w)
		return
	}
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
}

// Shutdown stops background goroutines, ends live streams and then shuts the
// listener down gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		s.stopStreams()
	})
	return s.Server.Shutdown(ctx)
}
