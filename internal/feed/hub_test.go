package feed

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHubCoalescesNotifications(t *testing.T) {
	h := NewHub()
	ch, cancel, err := h.Subscribe(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	for range 5 {
		if err := h.Publish(context.Background(), "u1"); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-ch:
		t.Fatal("notifications should coalesce into one")
	default:
	}
}

func TestHubScopesByOwner(t *testing.T) {
	h := NewHub()
	a, cancelA, _ := h.Subscribe(context.Background(), "a")
	b, cancelB, _ := h.Subscribe(context.Background(), "b")
	defer cancelA()
	defer cancelB()

	_ = h.Publish(context.Background(), "a")

	select {
	case <-a:
	default:
		t.Fatal("owner a not notified")
	}
	select {
	case <-b:
		t.Fatal("owner b should not be notified")
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub()
	ch, cancel, _ := h.Subscribe(context.Background(), "u1")
	cancel()
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if n := h.Subscribers("u1"); n != 0 {
		t.Fatalf("Subscribers = %d", n)
	}
}

func TestHubContextCancelUnsubscribes(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, _ := h.Subscribe(ctx, "u1")
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not released after context cancel")
	}
}

func TestHubDisconnect(t *testing.T) {
	h := NewHub()
	ch1, _, _ := h.Subscribe(context.Background(), "u1")
	ch2, _, _ := h.Subscribe(context.Background(), "u1")
	other, cancelOther, _ := h.Subscribe(context.Background(), "u2")
	defer cancelOther()

	if n := h.Disconnect("u1"); n != 2 {
		t.Fatalf("Disconnect = %d, want 2", n)
	}
	for _, ch := range []<-chan struct{}{ch1, ch2} {
		if _, ok := <-ch; ok {
			t.Fatal("channel should be closed")
		}
	}
	_ = h.Publish(context.Background(), "u2")
	if _, ok := <-other; !ok {
		t.Fatal("other owner's subscription should survive")
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, _, _ := h.Subscribe(context.Background(), "u1")
	h.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if err := h.Publish(context.Background(), "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Publish after Close = %v", err)
	}
	if _, _, err := h.Subscribe(context.Background(), "u1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Subscribe after Close = %v", err)
	}
}
