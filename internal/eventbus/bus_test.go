package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/parley-im/parley/internal/eventbus"
)

func TestBusPublishDeliver(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	sub := bus.Subscribe(eventbus.TopicBadgesChanged)
	defer sub.Close()

	payload := eventbus.BadgeChangedEvent{
		ServerURL: "https://chat.example.com",
		Badge:     eventbus.Badge{Count: 3, HasCount: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	eventbus.Publish(ctx, bus, eventbus.Badges.Changed, eventbus.SourceSurface, payload)

	select {
	case env := <-sub.C():
		msg, ok := env.Payload.(eventbus.BadgeChangedEvent)
		if !ok {
			t.Fatalf("expected BadgeChangedEvent payload, got %T", env.Payload)
		}
		if msg.ServerURL != payload.ServerURL {
			t.Fatalf("expected server %q, got %q", payload.ServerURL, msg.ServerURL)
		}
		if msg.Badge.Count != 3 {
			t.Fatalf("unexpected badge count: %d", msg.Badge.Count)
		}
		if env.Source != eventbus.SourceSurface {
			t.Fatalf("unexpected source: %s", env.Source)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestBusDropOldest(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicBuffer(eventbus.TopicBadgesChanged, 1))
	defer bus.Shutdown()

	sub := bus.Subscribe(eventbus.TopicBadgesChanged, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()

	eventbus.Publish(ctx, bus, eventbus.Badges.Changed, eventbus.SourceSurface, eventbus.BadgeChangedEvent{
		ServerURL: "https://a.example",
		Badge:     eventbus.Badge{Count: 1, HasCount: true},
	})
	eventbus.Publish(ctx, bus, eventbus.Badges.Changed, eventbus.SourceSurface, eventbus.BadgeChangedEvent{
		ServerURL: "https://a.example",
		Badge:     eventbus.Badge{Count: 2, HasCount: true},
	})

	select {
	case env := <-sub.C():
		msg := env.Payload.(eventbus.BadgeChangedEvent)
		if msg.Badge.Count != 2 {
			t.Fatalf("expected count 2 after drop-oldest, got %d", msg.Badge.Count)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event after drops")
	}
}

func TestNilBusSubscribe(t *testing.T) {
	var bus *eventbus.Bus

	sub := bus.Subscribe(eventbus.TopicServersChanged)
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel from nil bus subscription")
		}
	case <-time.After(time.Second):
		t.Fatal("nil bus subscription channel should be closed immediately")
	}

	// Close and Shutdown must be no-ops.
	sub.Close()
	bus.Shutdown()
}

func TestSubscriptionContextClose(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(eventbus.TopicServersChanged, eventbus.WithContext(ctx))

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return // closed as expected
			}
		case <-deadline:
			t.Fatal("subscription was not closed after context cancellation")
		}
	}
}
