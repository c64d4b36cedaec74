package amqp

import (
	"encoding/json"
	"time"
)

// TransactionSyncMessage asks the worker to mirror one stored transaction.
// The worker loads the row itself; the message only names it.
type TransactionSyncMessage struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTransactionSyncMessage(id, ownerID string) *TransactionSyncMessage {
	return &TransactionSyncMessage{
		ID:        id,
		OwnerID:   ownerID,
		Timestamp: time.Now(),
	}
}

func (m *TransactionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionSyncMessageFromJSON(data []byte) (*TransactionSyncMessage, error) {
	var msg TransactionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Ledger event kinds. An empty kind is a change, for messages from older
// processes.
const (
	EventLedgerChanged = "changed"
	EventSignedOut     = "signed_out"
)

// LedgerChangedMessage is broadcast to every server process when an owner's
// ledger gains a transaction or the owner signs out. Origin identifies the
// sending process.
type LedgerChangedMessage struct {
	OwnerID   string    `json:"owner_id"`
	Origin    string    `json:"origin"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(ownerID, origin string) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		OwnerID:   ownerID,
		Origin:    origin,
		Kind:      EventLedgerChanged,
		Timestamp: time.Now(),
	}
}

func NewSignedOutMessage(ownerID, origin string) *LedgerChangedMessage {
	msg := NewLedgerChangedMessage(ownerID, origin)
	msg.Kind = EventSignedOut
	return msg
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
