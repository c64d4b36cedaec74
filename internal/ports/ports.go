// Package ports declares the contracts the tracker needs from its storage
// collaborator.
package ports

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/core"
)

// Ports for outbound adapters.
type (
	// TransactionInserter durably stores a validated transaction for owner and
	// returns the id it assigned.
	TransactionInserter interface {
		Insert(ctx context.Context, ownerID string, t core.Transaction) (id string, err error)
	}

	// SnapshotReader returns the complete set of owner's transactions in
	// arrival order.
	SnapshotReader interface {
		Snapshot(ctx context.Context, ownerID string) ([]core.Record, error)
	}

	// TransactionStore is what the ledger service needs from storage.
	TransactionStore interface {
		TransactionInserter
		SnapshotReader
	}

	// TransactionGetter loads one stored transaction by id.
	TransactionGetter interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	}

	// MirrorWriter appends a transaction to an external mirror such as a
	// spreadsheet and returns a reference to the written row.
	MirrorWriter interface {
		Append(ctx context.Context, t core.Transaction) (ref string, err error)
	}
)

// PersistenceKind classifies why a write failed.
type PersistenceKind string

const (
	Unreachable      PersistenceKind = "unreachable"
	PermissionDenied PersistenceKind = "permission_denied"
	Unknown          PersistenceKind = "unknown"
)

// PersistenceError is returned by stores when an insert could not be made durable.
type PersistenceError struct {
	Kind PersistenceKind
	Err  error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return "persist transaction: " + string(e.Kind)
	}
	return fmt.Sprintf("persist transaction (%s): %v", e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err with kind.
func NewPersistenceError(kind PersistenceKind, err error) error {
	return &PersistenceError{Kind: kind, Err: err}
}

// PersistenceKindOf returns the kind of a PersistenceError in err's chain.
func PersistenceKindOf(err error) (PersistenceKind, bool) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

var ErrNotFound = errors.New("transaction not found")
