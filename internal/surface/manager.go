package surface

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/parley-im/parley/internal/eventbus"
	"github.com/parley-im/parley/internal/registry"
)

// session is the manager's bookkeeping for one surface.
type session struct {
	surface  Surface
	state    eventbus.SurfaceState
	degraded bool
}

// Manager owns one surface per registered server. It reconciles the surface
// set against registry changes, routes activation, and turns the structured
// messages surfaces emit into registry updates. All registry writes flow
// through here or the registry's own API; surfaces never touch the store.
type Manager struct {
	registry *registry.Registry
	bus      *eventbus.Bus
	factory  Factory

	mu       sync.Mutex
	sessions map[string]*session

	lifecycle eventbus.ServiceLifecycle
}

// NewManager builds a surface manager. The factory is invoked once per
// server; a nil factory disables surface creation (useful headless).
func NewManager(reg *registry.Registry, bus *eventbus.Bus, factory Factory) *Manager {
	return &Manager{
		registry: reg,
		bus:      bus,
		factory:  factory,
		sessions: make(map[string]*session),
	}
}

// Start subscribes the manager and creates surfaces for the servers already
// registered.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Start(ctx)

	changed := eventbus.SubscribeTo(m.bus, eventbus.Servers.Changed,
		eventbus.WithSubscriptionName("surface-manager"))
	active := eventbus.SubscribeTo(m.bus, eventbus.Servers.Active,
		eventbus.WithSubscriptionName("surface-manager"))
	messages := eventbus.SubscribeTo(m.bus, eventbus.Surfaces.Message,
		eventbus.WithSubscriptionName("surface-manager"))
	m.lifecycle.AddSubscriptions(changed, active, messages)

	m.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, changed, func(event eventbus.ServersChangedEvent) {
			m.reconcile(ctx, event.URLs)
		})
	})
	m.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, active, func(event eventbus.ServerActiveEvent) {
			m.applyActivation(ctx, event.URL)
		})
	})
	m.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, messages, func(event eventbus.SurfaceMessageEvent) {
			m.handleMessage(ctx, event)
		})
	})

	urls := make([]string, 0)
	for _, srv := range m.registry.List() {
		urls = append(urls, srv.URL)
	}
	m.reconcile(m.lifecycle.Context(), urls)
	m.applyActivation(m.lifecycle.Context(), m.registry.ActiveURL())

	log.Printf("[SurfaceManager] Started with %d server(s)", len(urls))
	return nil
}

// Stop destroys all surfaces and waits for workers.
func (m *Manager) Stop(ctx context.Context) error {
	m.lifecycle.Stop()

	m.mu.Lock()
	for url, sess := range m.sessions {
		sess.surface.Destroy()
		delete(m.sessions, url)
	}
	m.mu.Unlock()

	return m.lifecycle.Wait(ctx)
}

// State returns the lifecycle state of one server's surface.
func (m *Manager) State(serverURL string) (eventbus.SurfaceState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[serverURL]
	if !ok {
		return "", false
	}
	return sess.state, true
}

// reconcile creates surfaces for new servers and destroys surfaces whose
// server left the registry.
func (m *Manager) reconcile(ctx context.Context, urls []string) {
	known := make(map[string]bool, len(urls))
	for _, url := range urls {
		known[url] = true
	}

	m.mu.Lock()
	var toCreate []string
	for _, url := range urls {
		if _, exists := m.sessions[url]; !exists {
			toCreate = append(toCreate, url)
		}
	}
	var toDestroy []*session
	var destroyedURLs []string
	for url, sess := range m.sessions {
		if !known[url] {
			toDestroy = append(toDestroy, sess)
			destroyedURLs = append(destroyedURLs, url)
			delete(m.sessions, url)
		}
	}
	m.mu.Unlock()

	for i, sess := range toDestroy {
		sess.surface.Destroy()
		m.publishLifecycle(ctx, destroyedURLs[i], eventbus.SurfaceStateDestroyed, false, "removed")
	}
	for _, url := range toCreate {
		m.create(ctx, url)
	}
}

func (m *Manager) create(ctx context.Context, serverURL string) {
	if m.factory == nil {
		return
	}

	surf, err := m.factory(serverURL)
	if err != nil {
		log.Printf("[SurfaceManager] Failed to create surface for %s: %v", serverURL, err)
		return
	}

	sess := &session{surface: surf, state: eventbus.SurfaceStateCreated}
	m.mu.Lock()
	m.sessions[serverURL] = sess
	m.mu.Unlock()
	m.publishLifecycle(ctx, serverURL, eventbus.SurfaceStateCreated, false, "")

	m.lifecycle.Go(func(ctx context.Context) {
		m.loadSession(ctx, serverURL, sess)
	})
}

// loadSession navigates a fresh surface to the server. A failed load shows
// the local fallback page but keeps the session alive: the surface reaches
// ready degraded rather than being torn down.
func (m *Manager) loadSession(ctx context.Context, serverURL string, sess *session) {
	m.setState(ctx, serverURL, sess, eventbus.SurfaceStateLoading, false, "")

	target := m.initialURL(serverURL)
	if err := sess.surface.Load(ctx, target); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[SurfaceManager] Load failed for %s: %v", serverURL, err)
		sess.surface.ShowFallback(err.Error())
		m.setState(ctx, serverURL, sess, eventbus.SurfaceStateReady, true, err.Error())
		m.applyActivation(ctx, m.registry.ActiveURL())
		return
	}
	m.setState(ctx, serverURL, sess, eventbus.SurfaceStateReady, false, "")
	m.applyActivation(ctx, m.registry.ActiveURL())
}

// initialURL resolves where a surface should start: the server's last
// visited path when it still belongs to the server, the base url otherwise.
func (m *Manager) initialURL(serverURL string) string {
	srv, ok := m.registry.Get(serverURL)
	if !ok {
		return serverURL
	}
	if srv.LastPath != "" && strings.HasPrefix(srv.LastPath, serverURL) {
		return srv.LastPath
	}
	return serverURL
}

// applyActivation shows the active server's surface and hides the rest.
func (m *Manager) applyActivation(ctx context.Context, activeURL string) {
	m.mu.Lock()
	type change struct {
		url   string
		sess  *session
		state eventbus.SurfaceState
	}
	var changes []change
	for url, sess := range m.sessions {
		want := eventbus.SurfaceStateInactive
		if url == activeURL {
			want = eventbus.SurfaceStateActive
		}
		if sess.state == want {
			continue
		}
		// Only settled surfaces flip; loading ones pick up activation
		// when they become ready.
		if sess.state != eventbus.SurfaceStateReady && sess.state != eventbus.SurfaceStateActive && sess.state != eventbus.SurfaceStateInactive {
			continue
		}
		changes = append(changes, change{url, sess, want})
	}
	m.mu.Unlock()

	for _, c := range changes {
		c.sess.surface.SetActive(c.state == eventbus.SurfaceStateActive)
		m.setState(ctx, c.url, c.sess, c.state, c.sess.degraded, "")
	}
}

// handleMessage maps a surface's structured message onto registry state.
func (m *Manager) handleMessage(ctx context.Context, event eventbus.SurfaceMessageEvent) {
	switch event.Kind {
	case eventbus.MessageUnreadChanged:
		badge := event.Badge
		m.registry.SetProperties(ctx, event.ServerURL, registry.Properties{Badge: &badge})
	case eventbus.MessageTitleChanged:
		title := event.Title
		m.registry.SetProperties(ctx, event.ServerURL, registry.Properties{Title: &title})
	case eventbus.MessagePathChanged:
		// Only remember paths that stay inside the server; a surface that
		// navigated elsewhere must not hijack the resume target.
		if !strings.HasPrefix(event.Path, event.ServerURL) {
			return
		}
		path := event.Path
		m.registry.SetProperties(ctx, event.ServerURL, registry.Properties{LastPath: &path})
	case eventbus.MessageStyleChanged:
		style := event.Style
		m.registry.SetProperties(ctx, event.ServerURL, registry.Properties{Style: &style})
	case eventbus.MessageFocusRequest:
		m.registry.SetActive(ctx, event.ServerURL)
	default:
		log.Printf("[SurfaceManager] Ignoring unknown surface message %q from %s", event.Kind, event.ServerURL)
	}
}

// RequestScreenShare asks whoever hosts the source picker to choose a
// screen-share source for the given server's session. The wait is bounded
// by ctx; surfaces call this when their session starts a capture.
func (m *Manager) RequestScreenShare(ctx context.Context, serverURL string) (eventbus.ScreenShareReply, error) {
	return eventbus.Call[eventbus.ScreenShareRequestEvent, eventbus.ScreenShareReply](
		ctx, m.bus, eventbus.ScreenShare, eventbus.SourceSurfaceManager,
		eventbus.ScreenShareRequestEvent{ServerURL: serverURL})
}

// CheckSpelling forwards a surface's spell-check query to the dictionary
// host and returns the flagged words.
func (m *Manager) CheckSpelling(ctx context.Context, serverURL string, words []string) ([]string, error) {
	reply, err := eventbus.Call[eventbus.SpellCheckRequestEvent, eventbus.SpellCheckReply](
		ctx, m.bus, eventbus.SpellCheck, eventbus.SourceSurfaceManager,
		eventbus.SpellCheckRequestEvent{ServerURL: serverURL, Words: words})
	if err != nil {
		return nil, err
	}
	return reply.Misspelled, nil
}

func (m *Manager) setState(ctx context.Context, serverURL string, sess *session, state eventbus.SurfaceState, degraded bool, reason string) {
	m.mu.Lock()
	sess.state = state
	sess.degraded = degraded
	m.mu.Unlock()
	m.publishLifecycle(ctx, serverURL, state, degraded, reason)
}

func (m *Manager) publishLifecycle(ctx context.Context, serverURL string, state eventbus.SurfaceState, degraded bool, reason string) {
	eventbus.Publish(ctx, m.bus, eventbus.Surfaces.Lifecycle, eventbus.SourceSurfaceManager, eventbus.SurfaceLifecycleEvent{
		ServerURL: serverURL,
		State:     state,
		Degraded:  degraded,
		Reason:    reason,
	})
}
