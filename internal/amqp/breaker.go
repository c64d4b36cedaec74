package amqp

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

// ErrCircuitOpen is returned while the breaker refuses to publish.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// breaker opens after maxFailures consecutive failures and lets one probe
// through once openTimeout has passed. A failed probe reopens it.
type breaker struct {
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	now      func() time.Time
}

func newBreaker() *breaker {
	return &breaker{now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) > openTimeout {
		b.state = StateHalfOpen
	}
	return b.state != StateOpen
}

func (b *breaker) success() {
	b.mu.Lock()
	b.state, b.failures = StateClosed, 0
	b.mu.Unlock()
}

// failure records one failed publish and returns the resulting state.
func (b *breaker) failure() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateHalfOpen || b.failures >= maxFailures {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	return b.state
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// exponentialBackoff doubles from one second up to maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

// isConnectionError reports failures worth re-dialling for.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed", "dial"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
