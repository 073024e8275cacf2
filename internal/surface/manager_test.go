package surface

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-im/parley/internal/eventbus"
	"github.com/parley-im/parley/internal/registry"
	"github.com/parley-im/parley/internal/testutil"
)

// fakeSurface records the calls the manager makes.
type fakeSurface struct {
	mu        sync.Mutex
	loadedURL string
	loadErr   error
	fallback  string
	active    bool
	destroyed bool
}

func (f *fakeSurface) Load(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedURL = url
	return f.loadErr
}

func (f *fakeSurface) ShowFallback(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = reason
}

func (f *fakeSurface) SetActive(active bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = active
}

func (f *fakeSurface) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = true
}

func (f *fakeSurface) snapshot() fakeSurface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeSurface{
		loadedURL: f.loadedURL,
		fallback:  f.fallback,
		active:    f.active,
		destroyed: f.destroyed,
	}
}

type fixture struct {
	bus      *eventbus.Bus
	registry *registry.Registry
	manager  *Manager

	mu       sync.Mutex
	surfaces map[string]*fakeSurface
	loadErr  map[string]error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		bus:      eventbus.New(),
		surfaces: make(map[string]*fakeSurface),
		loadErr:  make(map[string]error),
	}
	f.registry = registry.New(testutil.OpenStore(t), f.bus)
	f.manager = NewManager(f.registry, f.bus, func(serverURL string) (Surface, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		surf := &fakeSurface{loadErr: f.loadErr[serverURL]}
		f.surfaces[serverURL] = surf
		return surf, nil
	})

	if err := f.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		f.manager.Stop(ctx)
		f.bus.Shutdown()
	})
	return f
}

func (f *fixture) surface(t *testing.T, url string) *fakeSurface {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		surf := f.surfaces[url]
		f.mu.Unlock()
		if surf != nil {
			return surf
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("surface for %s never created", url)
	return nil
}

func (f *fixture) waitState(t *testing.T, url string, want eventbus.SurfaceState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := f.manager.State(url); ok && state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, _ := f.manager.State(url)
	t.Fatalf("surface %s state = %q, want %q", url, state, want)
}

func TestAddServerCreatesAndActivatesSurface(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.registry.Add(ctx, "https://chat.example.com")

	f.waitState(t, "https://chat.example.com", eventbus.SurfaceStateActive)
	surf := f.surface(t, "https://chat.example.com").snapshot()
	if surf.loadedURL != "https://chat.example.com" {
		t.Errorf("loaded %q, want base url", surf.loadedURL)
	}
	if !surf.active {
		t.Error("surface not shown")
	}
}

func TestInitialURLPrefersLastPathInsideServer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		lastPath string
		want     string
	}{
		{
			name:     "last path inside server",
			lastPath: "https://chat.example.com/channel/general",
			want:     "https://chat.example.com/channel/general",
		},
		{
			name:     "foreign last path falls back to base url",
			lastPath: "https://evil.example.net/phish",
			want:     "https://chat.example.com",
		},
		{
			name: "no last path",
			want: "https://chat.example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			ctx := context.Background()

			f.registry.Add(ctx, "https://chat.example.com")
			f.waitState(t, "https://chat.example.com", eventbus.SurfaceStateActive)
			if tt.lastPath != "" {
				path := tt.lastPath
				f.registry.SetProperties(ctx, "https://chat.example.com", registry.Properties{LastPath: &path})
			}

			if got := f.manager.initialURL("https://chat.example.com"); got != tt.want {
				t.Errorf("initialURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadFailureDegradesButKeepsSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.mu.Lock()
	f.loadErr["https://down.example.com"] = errors.New("connection refused")
	f.mu.Unlock()

	lifecycle := eventbus.SubscribeTo(f.bus, eventbus.Surfaces.Lifecycle)
	defer lifecycle.Close()

	f.registry.Add(ctx, "https://down.example.com")

	var ready eventbus.SurfaceLifecycleEvent
	deadline := time.After(2 * time.Second)
	for ready.State != eventbus.SurfaceStateReady {
		select {
		case env := <-lifecycle.C():
			ready = env.Payload
		case <-deadline:
			t.Fatal("surface never reached ready")
		}
	}
	if !ready.Degraded {
		t.Error("failed load not marked degraded")
	}

	surf := f.surface(t, "https://down.example.com").snapshot()
	if surf.fallback == "" {
		t.Error("fallback view not shown")
	}
	if surf.destroyed {
		t.Error("session torn down on load failure")
	}
}

func TestSingleActiveSurface(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.registry.Add(ctx, "https://a.example.com")
	f.registry.Add(ctx, "https://b.example.com")
	f.waitState(t, "https://b.example.com", eventbus.SurfaceStateActive)
	f.waitState(t, "https://a.example.com", eventbus.SurfaceStateInactive)

	f.registry.SetActive(ctx, "https://a.example.com")
	f.waitState(t, "https://a.example.com", eventbus.SurfaceStateActive)
	f.waitState(t, "https://b.example.com", eventbus.SurfaceStateInactive)

	if !f.surface(t, "https://a.example.com").snapshot().active {
		t.Error("a not shown")
	}
	if f.surface(t, "https://b.example.com").snapshot().active {
		t.Error("b still shown")
	}
}

func TestSurfaceMessagesUpdateRegistry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.registry.Add(ctx, "https://chat.example.com")
	f.waitState(t, "https://chat.example.com", eventbus.SurfaceStateActive)

	publish := func(event eventbus.SurfaceMessageEvent) {
		eventbus.Publish(ctx, f.bus, eventbus.Surfaces.Message, eventbus.SourceSurface, event)
	}
	publish(eventbus.SurfaceMessageEvent{
		ServerURL: "https://chat.example.com",
		Kind:      eventbus.MessageTitleChanged,
		Title:     "Team Chat",
	})
	publish(eventbus.SurfaceMessageEvent{
		ServerURL: "https://chat.example.com",
		Kind:      eventbus.MessageUnreadChanged,
		Badge:     eventbus.Badge{Count: 4, HasCount: true},
	})
	publish(eventbus.SurfaceMessageEvent{
		ServerURL: "https://chat.example.com",
		Kind:      eventbus.MessagePathChanged,
		Path:      "https://chat.example.com/channel/dev",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv, _ := f.registry.Get("https://chat.example.com")
		if srv.Title == "Team Chat" && srv.Badge.Count == 4 && srv.LastPath == "https://chat.example.com/channel/dev" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	srv, _ := f.registry.Get("https://chat.example.com")
	t.Fatalf("registry never converged: %+v", srv)
}

func TestRemovedServerDestroysSurface(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.registry.Add(ctx, "https://chat.example.com")
	surf := f.surface(t, "https://chat.example.com")
	f.waitState(t, "https://chat.example.com", eventbus.SurfaceStateActive)

	f.registry.Remove(ctx, "https://chat.example.com")
	f.waitDestroyed(t, "https://chat.example.com")
	if !surf.snapshot().destroyed {
		t.Error("surface not destroyed")
	}
}

func TestScreenShareAndSpellCheckRoundTrips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Subscribed before the requests go out so neither can be dropped.
	shareSub := eventbus.SubscribeTo(f.bus, eventbus.ScreenShare)
	defer shareSub.Close()
	spellSub := eventbus.SubscribeTo(f.bus, eventbus.SpellCheck)
	defer spellSub.Close()

	go func() {
		for env := range shareSub.C() {
			eventbus.Reply(ctx, f.bus, eventbus.ScreenShare, eventbus.SourceClient,
				env.CorrelationID, eventbus.ScreenShareReply{SourceID: "display-1"})
		}
	}()
	go func() {
		for env := range spellSub.C() {
			eventbus.Reply(ctx, f.bus, eventbus.SpellCheck, eventbus.SourceClient,
				env.CorrelationID, eventbus.SpellCheckReply{Misspelled: []string{"teh"}})
		}
	}()

	reply, err := f.manager.RequestScreenShare(ctx, "https://chat.example.com")
	if err != nil {
		t.Fatalf("RequestScreenShare: %v", err)
	}
	if reply.SourceID != "display-1" {
		t.Errorf("source = %q", reply.SourceID)
	}

	flagged, err := f.manager.CheckSpelling(ctx, "https://chat.example.com", []string{"teh", "chat"})
	if err != nil {
		t.Fatalf("CheckSpelling: %v", err)
	}
	if len(flagged) != 1 || flagged[0] != "teh" {
		t.Errorf("flagged = %v", flagged)
	}
}

func TestForeignPathChangeIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.registry.Add(ctx, "https://chat.example.com")
	f.waitState(t, "https://chat.example.com", eventbus.SurfaceStateActive)

	eventbus.Publish(ctx, f.bus, eventbus.Surfaces.Message, eventbus.SourceSurface, eventbus.SurfaceMessageEvent{
		ServerURL: "https://chat.example.com",
		Kind:      eventbus.MessagePathChanged,
		Path:      "https://evil.example.net/phish",
	})
	// A second, legitimate update proves the first was processed and dropped.
	eventbus.Publish(ctx, f.bus, eventbus.Surfaces.Message, eventbus.SourceSurface, eventbus.SurfaceMessageEvent{
		ServerURL: "https://chat.example.com",
		Kind:      eventbus.MessagePathChanged,
		Path:      "https://chat.example.com/channel/dev",
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		srv, _ := f.registry.Get("https://chat.example.com")
		if srv.LastPath == "https://chat.example.com/channel/dev" {
			return
		}
		if srv.LastPath == "https://evil.example.net/phish" {
			t.Fatal("foreign path persisted")
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("path update never applied")
}

func (f *fixture) waitDestroyed(t *testing.T, url string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := f.manager.State(url); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("surface %s never destroyed", url)
}
