// Package ratelimit caps how often one client may write.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Limiter allows a fixed number of requests per client in each one-minute
// window. Windows start at a client's first request.
type Limiter struct {
	limit      int
	period     time.Duration
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.Mutex
	windows map[string]window

	rejected int64
	done     chan struct{}
	stopOnce sync.Once
}

type window struct {
	start time.Time
	last  time.Time
	count int
}

type Config struct {
	RequestsPerMinute int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{RequestsPerMinute: 60, CleanupInterval: 5 * time.Minute}
}

// NewLimiter starts a janitor goroutine; Stop ends it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = def.RequestsPerMinute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	l := &Limiter{
		limit:      cfg.RequestsPerMinute,
		period:     time.Minute,
		staleAfter: 10 * time.Minute,
		now:        time.Now,
		windows:    make(map[string]window),
		done:       make(chan struct{}),
	}
	go l.janitor(cfg.CleanupInterval)
	return l
}

// Allow records a request from client. When the client is over its limit it
// returns false and how long until the window resets.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[client]
	if !ok || now.Sub(w.start) >= l.period {
		w = window{start: now}
	}
	w.count++
	w.last = now
	l.windows[client] = w

	if w.count <= l.limit {
		return true, 0
	}
	atomic.AddInt64(&l.rejected, 1)
	return false, w.start.Add(l.period).Sub(now)
}

func (l *Limiter) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.forgetIdle()
		case <-l.done:
			return
		}
	}
}

// forgetIdle drops clients not seen for staleAfter and returns how many.
func (l *Limiter) forgetIdle() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.staleAfter)
	n := 0
	for client, w := range l.windows {
		if w.last.Before(cutoff) {
			delete(l.windows, client)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   atomic.LoadInt64(&l.rejected),
		ClientCount: int64(l.ActiveClients()),
	}
}

// Middleware rejects requests over the limit with 429 and Retry-After.
// onLimit writes the body; nil means plain text.
func (l *Limiter) Middleware(clientOf func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(clientOf(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			secs := max(int((wait+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		})
	}
}
