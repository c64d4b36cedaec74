package amqp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/feed"
	applog "expensetracker/internal/log"
)

const signOutBroadcastTimeout = 2 * time.Second

// FanoutBroker extends a local feed.Hub across processes. Publish notifies
// local subscribers at once and broadcasts the change; Run relays changes
// broadcast by other processes into the hub.
type FanoutBroker struct {
	client *Client
	hub    *feed.Hub
	origin string
}

var _ feed.Broker = (*FanoutBroker)(nil)

func NewFanoutBroker(client *Client, hub *feed.Hub) *FanoutBroker {
	return &FanoutBroker{client: client, hub: hub, origin: uuid.NewString()}
}

// Publish never fails because of the broker: a broadcast failure is logged
// and local subscribers have already been notified.
func (b *FanoutBroker) Publish(ctx context.Context, ownerID string) error {
	if err := b.hub.Publish(ctx, ownerID); err != nil {
		return err
	}
	if err := b.client.PublishLedgerChanged(ctx, NewLedgerChangedMessage(ownerID, b.origin)); err != nil {
		slog.WarnContext(ctx, "Ledger change broadcast failed",
			applog.FieldComponent, applog.ComponentFeed,
			applog.FieldOwnerID, ownerID,
			applog.FieldError, err)
	}
	return nil
}

func (b *FanoutBroker) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, func(), error) {
	return b.hub.Subscribe(ctx, ownerID)
}

// Run relays remote ledger events until ctx ends.
func (b *FanoutBroker) Run(ctx context.Context) error {
	return b.client.KeepConsuming(ctx, "ledger-events", func(ctx context.Context) error {
		return b.client.ConsumeLedgerChanged(ctx, b.relay)
	})
}

func (b *FanoutBroker) relay(ctx context.Context, msg *LedgerChangedMessage) {
	if msg.Origin == b.origin || msg.OwnerID == "" {
		return
	}
	if msg.Kind == EventSignedOut {
		if n := b.hub.Disconnect(msg.OwnerID); n > 0 {
			slog.InfoContext(ctx, "Ended streams after remote sign-out",
				applog.FieldComponent, applog.ComponentFeed,
				applog.FieldOwnerID, msg.OwnerID,
				"streams", n)
		}
		return
	}
	if err := b.hub.Publish(ctx, msg.OwnerID); err != nil {
		slog.DebugContext(ctx, "Dropping ledger event",
			applog.FieldComponent, applog.ComponentFeed,
			applog.FieldError, err)
	}
}

// Disconnect ends ownerID's local streams and asks every other process to do
// the same. It returns the local count; a failed broadcast is only logged.
func (b *FanoutBroker) Disconnect(ownerID string) int {
	n := b.hub.Disconnect(ownerID)

	ctx, cancel := context.WithTimeout(context.Background(), signOutBroadcastTimeout)
	defer cancel()
	if err := b.client.PublishLedgerChanged(ctx, NewSignedOutMessage(ownerID, b.origin)); err != nil {
		slog.WarnContext(ctx, "Sign-out broadcast failed",
			applog.FieldComponent, applog.ComponentFeed,
			applog.FieldOwnerID, ownerID,
			applog.FieldError, err)
	}
	return n
}
