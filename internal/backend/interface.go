package backend

import (
	"context"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/feed"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage"
)

// BackendType names a storage backend.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (t BackendType) String() string { return string(t) }

func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend:
		return true
	}
	return false
}

// Config holds everything needed to build a backend.
type Config struct {
	Type BackendType

	SQLiteDBPath   string
	MemorySeedFile string

	SnapshotCacheSize int
	SnapshotCacheTTL  time.Duration

	AMQPURL            string
	AMQPExchange       string
	AMQPQueue          string
	AMQPEventsExchange string
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// BackendResult is a ready-to-use storage and change feed.
type BackendResult struct {
	// Store is what the ledger service reads and writes.
	Store ports.TransactionStore
	// Repository is set for the sqlite backend only.
	Repository *storage.SQLiteRepository
	// Broker carries change notifications; Hub is its local half.
	Broker feed.Broker
	Hub    *feed.Hub
	// AMQP is nil when no broker URL is configured or it was unreachable.
	AMQP *amqp.Client
	// Relay runs until ctx ends when changes from other processes must be
	// relayed into Hub. Nil otherwise.
	Relay   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Ping checks the storage behind the result.
func (r *BackendResult) Ping(ctx context.Context) error {
	if r.Repository != nil {
		return r.Repository.Ping(ctx)
	}
	return nil
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
