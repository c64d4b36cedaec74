package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"expensetracker/internal/core"
	"expensetracker/internal/ports"
)

var (
	_ ports.TransactionStore  = (*Store)(nil)
	_ ports.TransactionGetter = (*Store)(nil)
)

// Store keeps every owner's transactions in process memory.
type Store struct {
	mu    sync.Mutex
	items map[string][]core.Transaction
	byID  map[string]core.Transaction
}

func New() *Store {
	return &Store{
		items: make(map[string][]core.Transaction),
		byID:  make(map[string]core.Transaction),
	}
}

// NewFromFile seeds the store from a JSON array of records. A missing file
// yields an empty store; malformed records are skipped.
func NewFromFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var records []core.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	for _, r := range records {
		t, err := r.Transaction()
		if err != nil || t.OwnerID == "" {
			continue
		}
		s.put(t)
	}
	return s, nil
}

// Insert stores the transaction and returns a fresh uuid.
func (s *Store) Insert(_ context.Context, ownerID string, t core.Transaction) (string, error) {
	if ownerID == "" {
		return "", ports.NewPersistenceError(ports.PermissionDenied, errors.New("missing owner id"))
	}
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t = t.WithIdentity(uuid.NewString(), ownerID)
	s.put(t)
	return t.ID, nil
}

// Snapshot returns a copy of owner's transactions in insertion order.
func (s *Store) Snapshot(_ context.Context, ownerID string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items[ownerID]
	out := make([]core.Record, len(items))
	for i, t := range items {
		out[i] = core.RecordOf(t)
	}
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return core.Transaction{}, ports.ErrNotFound
	}
	return t, nil
}

// put must be called with mu held, or before the store is shared.
func (s *Store) put(t core.Transaction) {
	s.items[t.OwnerID] = append(s.items[t.OwnerID], t)
	s.byID[t.ID] = t
}
