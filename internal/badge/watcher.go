package badge

import (
	"context"
	"log"
	"sync"

	"github.com/parley-im/parley/internal/eventbus"
)

// Watcher folds per-server badge changes into a single global indicator and
// republishes it whenever the result changes. It also forgets badges for
// servers that leave the registry so a removed workspace cannot pin the
// dock count forever.
type Watcher struct {
	bus *eventbus.Bus

	mu     sync.Mutex
	badges map[string]eventbus.Badge
	last   eventbus.GlobalBadgeEvent

	lifecycle eventbus.ServiceLifecycle
}

// NewWatcher builds a badge watcher over the given bus.
func NewWatcher(bus *eventbus.Bus) *Watcher {
	return &Watcher{
		bus:    bus,
		badges: make(map[string]eventbus.Badge),
	}
}

// Start subscribes the watcher and begins aggregating.
func (w *Watcher) Start(ctx context.Context) error {
	w.lifecycle.Start(ctx)

	changed := eventbus.SubscribeTo(w.bus, eventbus.Badges.Changed,
		eventbus.WithSubscriptionName("badge-watcher"))
	servers := eventbus.SubscribeTo(w.bus, eventbus.Servers.Changed,
		eventbus.WithSubscriptionName("badge-watcher"))
	w.lifecycle.AddSubscriptions(changed, servers)

	w.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, changed, w.onBadgeChanged)
	})
	w.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, servers, w.onServersChanged)
	})

	log.Printf("[BadgeWatcher] Started")
	return nil
}

// Stop shuts the watcher down and waits for its workers.
func (w *Watcher) Stop(ctx context.Context) error {
	return w.lifecycle.Shutdown(ctx)
}

// Global returns the most recently published global badge.
func (w *Watcher) Global() eventbus.GlobalBadgeEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Watcher) onBadgeChanged(event eventbus.BadgeChangedEvent) {
	w.mu.Lock()
	w.badges[event.ServerURL] = event.Badge
	w.recomputeLocked()
	w.mu.Unlock()
}

// onServersChanged drops badges for servers no longer in the registry.
func (w *Watcher) onServersChanged(event eventbus.ServersChangedEvent) {
	known := make(map[string]bool, len(event.URLs))
	for _, url := range event.URLs {
		known[url] = true
	}

	w.mu.Lock()
	pruned := false
	for url := range w.badges {
		if !known[url] {
			delete(w.badges, url)
			pruned = true
		}
	}
	if pruned {
		w.recomputeLocked()
	}
	w.mu.Unlock()
}

// recomputeLocked republishes the global badge if it changed. Callers hold
// w.mu.
func (w *Watcher) recomputeLocked() {
	next := Aggregate(w.badges)
	if next == w.last {
		return
	}
	w.last = next
	eventbus.Publish(w.lifecycle.Context(), w.bus, eventbus.Badges.Global, eventbus.SourceBadgeWatcher, next)
}
