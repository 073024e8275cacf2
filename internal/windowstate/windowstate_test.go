package windowstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/testutil"
)

type fakeWindow struct {
	mu         sync.Mutex
	bounds     Bounds
	maximized  bool
	minimized  bool
	visible    bool
	fullscreen bool
}

func (w *fakeWindow) Bounds() Bounds {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bounds
}

func (w *fakeWindow) SetBounds(b Bounds) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bounds = b
}

func (w *fakeWindow) IsMaximized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maximized
}

func (w *fakeWindow) Maximize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maximized = true
}

func (w *fakeWindow) IsMinimized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minimized
}

func (w *fakeWindow) Minimize() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.minimized = true
}

func (w *fakeWindow) IsVisible() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.visible
}

func (w *fakeWindow) Show() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = true
}

func (w *fakeWindow) Hide() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.visible = false
}

func (w *fakeWindow) IsFullScreen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fullscreen
}

func (w *fakeWindow) SetFullScreen(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.fullscreen = on
}

type fakeDisplays struct {
	displays []Display
}

func (d *fakeDisplays) Displays() []Display { return d.displays }

func singleDisplay() *fakeDisplays {
	return &fakeDisplays{displays: []Display{{Bounds: Bounds{X: 0, Y: 0, Width: 1920, Height: 1080}}}}
}

func TestLoadDefaultsWhenNothingPersisted(t *testing.T) {
	t.Parallel()

	h := NewHandler(testutil.OpenStore(t), nil, "root", &fakeWindow{visible: true}, singleDisplay())
	state := h.Load(context.Background())

	if state.Bounds.Width != DefaultWidth || state.Bounds.Height != DefaultHeight {
		t.Errorf("default size = %dx%d", state.Bounds.Width, state.Bounds.Height)
	}
}

func TestLoadRestoresPersistedState(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()

	rec := store.WindowStateRecord{
		Name: "root", X: 100, Y: 80, Width: 1200, Height: 700, IsMaximized: true,
	}
	if err := st.SaveWindowState(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := NewHandler(st, nil, "root", &fakeWindow{visible: true}, singleDisplay())
	state := h.Load(ctx)

	if state.Bounds != (Bounds{X: 100, Y: 80, Width: 1200, Height: 700}) {
		t.Errorf("bounds = %+v", state.Bounds)
	}
	if !state.IsMaximized {
		t.Error("maximized flag lost")
	}
}

func TestLoadRecentersOffscreenWindow(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()

	// Bounds that only made sense on a detached second monitor.
	if err := st.SaveWindowState(ctx, store.WindowStateRecord{
		Name: "root", X: 3000, Y: 200, Width: 1200, Height: 700,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	h := NewHandler(st, nil, "root", &fakeWindow{visible: true}, singleDisplay())
	state := h.Load(ctx)

	want := Bounds{
		X:      (1920 - DefaultWidth) / 2,
		Y:      (1080 - DefaultHeight) / 2,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
	if state.Bounds != want {
		t.Errorf("bounds = %+v, want centered default %+v", state.Bounds, want)
	}
}

func TestApplyRestoresGeometryAndFlags(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()

	if err := st.SaveWindowState(ctx, store.WindowStateRecord{
		Name: "root", X: 200, Y: 150, Width: 1300, Height: 800, IsMaximized: true,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	win := &fakeWindow{}
	h := NewHandler(st, nil, "root", win, singleDisplay())
	h.Load(ctx)
	h.Apply()

	if got := win.Bounds(); got != (Bounds{X: 200, Y: 150, Width: 1300, Height: 800}) {
		t.Errorf("restored bounds = %+v", got)
	}
	if !win.IsMaximized() {
		t.Error("maximized flag not applied")
	}
	if !win.IsVisible() {
		t.Error("window not shown")
	}
}

func TestFetchSkipsGeometryWhileMaximized(t *testing.T) {
	t.Parallel()

	win := &fakeWindow{bounds: Bounds{X: 10, Y: 20, Width: 800, Height: 500}, visible: true}
	h := NewHandler(testutil.OpenStore(t), nil, "root", win, singleDisplay())
	h.Load(context.Background())

	h.Fetch()

	win.mu.Lock()
	win.maximized = true
	win.bounds = Bounds{X: 0, Y: 0, Width: 1920, Height: 1080}
	win.mu.Unlock()

	state := h.Fetch()
	if state.Bounds != (Bounds{X: 10, Y: 20, Width: 800, Height: 500}) {
		t.Errorf("maximized geometry captured: %+v", state.Bounds)
	}
	if !state.IsMaximized {
		t.Error("maximized flag not captured")
	}
}

func TestFetchAndSaveDebounces(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()

	win := &fakeWindow{bounds: Bounds{X: 5, Y: 5, Width: 900, Height: 550}, visible: true}
	h := NewHandler(st, nil, "root", win, singleDisplay(), WithDebounce(30*time.Millisecond))
	h.Load(ctx)

	// A drag burst: many calls, one write after the dust settles.
	for i := 0; i < 10; i++ {
		win.mu.Lock()
		win.bounds.X = 5 + i
		win.mu.Unlock()
		h.FetchAndSave(ctx)
	}

	if _, err := st.GetWindowState(ctx, "root"); !store.IsNotFound(err) {
		t.Fatal("write landed before the debounce interval")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec, err := st.GetWindowState(ctx, "root")
		if err == nil {
			if rec.X != 14 {
				t.Errorf("persisted X = %d, want final position 14", rec.X)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced save never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandleCloseExitsFullscreenAndFlushes(t *testing.T) {
	t.Parallel()

	st := testutil.OpenStore(t)
	ctx := context.Background()

	win := &fakeWindow{bounds: Bounds{X: 40, Y: 30, Width: 1100, Height: 650}, visible: true, fullscreen: true}
	h := NewHandler(st, nil, "root", win, singleDisplay())
	h.Load(ctx)

	if err := h.HandleClose(ctx); err != nil {
		t.Fatalf("HandleClose: %v", err)
	}

	if win.IsFullScreen() {
		t.Error("window still fullscreen after close")
	}
	rec, err := st.GetWindowState(ctx, "root")
	if err != nil {
		t.Fatalf("state not flushed: %v", err)
	}
	if rec.Width != 1100 || rec.Height != 650 {
		t.Errorf("flushed size = %dx%d", rec.Width, rec.Height)
	}
}
