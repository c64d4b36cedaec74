package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/adapters"
	"expensetracker/internal/amqp"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/feed"
	applog "expensetracker/internal/log"
	"expensetracker/internal/ports"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
	// dial is replaced in tests.
	dial func(Config) (*amqp.Client, error)
}

func NewFactory(logger *applog.Logger) *DefaultFactory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
		dial: func(c Config) (*amqp.Client, error) {
			return amqp.NewClient(c.AMQPURL, c.AMQPExchange, c.AMQPQueue, c.AMQPEventsExchange)
		},
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend builds the store, wraps it in the snapshot cache when one is
// configured, and wires the change feed. A broker that cannot be reached is
// logged and skipped: the process then runs with a local-only feed.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	res := &BackendResult{}
	var closers []func() error

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		res.Repository = repo
		res.Store = repo
		closers = append(closers, repo.Close)
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	case MemoryBackend:
		store, err := f.memoryStore(config)
		if err != nil {
			return nil, err
		}
		res.Store = store
		f.logger.InfoContext(ctx, "Initialized memory backend", "seed_file", config.MemorySeedFile)
	}

	var snapshots *cache.LRUCache[[]core.Record]
	if config.SnapshotCacheSize > 0 {
		ttl := config.SnapshotCacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		snapshots = cache.NewLRUCache[[]core.Record](config.SnapshotCacheSize, ttl)
		res.Store = adapters.NewCachedStore(res.Store, snapshots)

		manager := cache.NewManager()
		manager.Register(snapshots)
		manager.StartCleanup(ttl)
		closers = append(closers, func() error { manager.Stop(); return nil })
	}

	res.Hub = feed.NewHub()
	res.Broker = res.Hub
	closers = append(closers, func() error { res.Hub.Close(); return nil })

	if config.AMQPURL != "" {
		client, err := f.dial(config)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync",
				applog.FieldError, err)
		} else {
			res.AMQP = client
			closers = append(closers, client.Close)
			if config.AMQPEventsExchange != "" {
				fanout := amqp.NewFanoutBroker(client, res.Hub)
				res.Broker = fanout
				res.Relay = fanout.Run
			}
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue,
				"events_exchange", config.AMQPEventsExchange)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	return res, nil
}

func (f *DefaultFactory) memoryStore(config Config) (ports.TransactionStore, error) {
	if config.MemorySeedFile == "" {
		return memory.New(), nil
	}
	store, err := memory.NewFromFile(config.MemorySeedFile)
	if err != nil {
		return nil, fmt.Errorf("load memory seed file: %w", err)
	}
	return store, nil
}
