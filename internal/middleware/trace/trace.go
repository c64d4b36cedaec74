// Package trace tags every request with an id and logs its start and end.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "expensetracker/internal/log"
)

type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"

	// RequestIDHeader is read from trusted callers and echoed on every
	// response.
	RequestIDHeader = "X-Request-ID"

	maxInboundIDLen = 64
)

type Middleware struct {
	clientIP func(*http.Request) string
	logger   *applog.StructuredLogger

	total        atomic.Int64
	inFlight     atomic.Int64
	serverErrors atomic.Int64
}

type Metrics struct {
	TotalRequests int64
	InFlight      int64
	ServerErrors  int64
}

// NewMiddleware uses clientIP for the client_ip log field. A nil logger
// logs through the default configuration.
func NewMiddleware(clientIP func(*http.Request) string, logger *applog.StructuredLogger) *Middleware {
	if logger == nil {
		logger = applog.NewStructuredLogger(applog.New(applog.DefaultConfig()))
	}
	return &Middleware{clientIP: clientIP, logger: logger}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := ""
		if m.clientIP != nil {
			ip = m.clientIP(r)
		}

		id := inboundID(r)
		if id == "" {
			id = GenerateRequestID()
		}
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		r = r.WithContext(ctx)
		w.Header().Set(RequestIDHeader, id)

		m.total.Add(1)
		m.inFlight.Add(1)
		defer m.inFlight.Add(-1)
		m.logger.LogHTTPStart(ctx, r, ip)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		if sw.status >= http.StatusInternalServerError {
			m.serverErrors.Add(1)
		}
		m.logger.LogHTTPEnd(ctx, r, sw.status, time.Since(start).Milliseconds(), ip)
	})
}

// inboundID accepts a caller-supplied id made of letters, digits, '-' and
// '_' only, so it is safe to log and echo.
func inboundID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxInboundIDLen {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return ""
		}
	}
	return id
}

// statusWriter remembers the first status written.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Flush lets the ledger stream push events through the wrapper.
func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }

func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// RequestIDFromRequest is the extractor handed to applog.Middleware.
func RequestIDFromRequest(r *http.Request) string {
	return GetRequestID(r.Context())
}

func (m *Middleware) GetMetrics() Metrics {
	return Metrics{
		TotalRequests: m.total.Load(),
		InFlight:      m.inFlight.Load(),
		ServerErrors:  m.serverErrors.Load(),
	}
}
