// Package windowstate persists and restores shell window geometry.
package windowstate

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/eventbus"
)

// Default window size when nothing is persisted or the persisted bounds no
// longer fit any attached display.
const (
	DefaultWidth  = 1000
	DefaultHeight = 600
)

// saveDebounce batches the burst of move/resize events the window system
// emits while the user drags.
const saveDebounce = time.Second

// Bounds is a window rectangle in screen coordinates.
type Bounds struct {
	X      int
	Y      int
	Width  int
	Height int
}

// State is the restorable window state.
type State struct {
	Bounds      Bounds
	IsMaximized bool
	IsMinimized bool
	IsHidden    bool
}

// Window is the shell window the handler tracks. Implementations wrap the
// actual windowing backend.
type Window interface {
	Bounds() Bounds
	SetBounds(Bounds)
	IsMaximized() bool
	Maximize()
	IsMinimized() bool
	Minimize()
	IsVisible() bool
	Show()
	Hide()
	IsFullScreen() bool
	SetFullScreen(on bool)
}

// Display is one attached screen's usable area.
type Display struct {
	Bounds Bounds
}

// DisplayProvider reports the attached displays. The first display is the
// primary one.
type DisplayProvider interface {
	Displays() []Display
}

// Handler keeps one named window's geometry synced with the store. Saves
// are debounced; Save forces a synchronous write for shutdown paths.
type Handler struct {
	name     string
	store    *store.Store
	bus      *eventbus.Bus
	window   Window
	displays DisplayProvider
	debounce time.Duration

	mu    sync.Mutex
	state State
	timer *time.Timer
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithDebounce overrides the save debounce interval.
func WithDebounce(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.debounce = d
		}
	}
}

// NewHandler builds a handler for the named window.
func NewHandler(st *store.Store, bus *eventbus.Bus, name string, window Window, displays DisplayProvider, opts ...HandlerOption) *Handler {
	h := &Handler{
		name:     name,
		store:    st,
		bus:      bus,
		window:   window,
		displays: displays,
		debounce: saveDebounce,
		state: State{
			Bounds: Bounds{Width: DefaultWidth, Height: DefaultHeight},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Load reads the persisted state, fits it to the attached displays, and
// returns what the window should be restored to. Persisted bounds that no
// longer land on any display are replaced by a default-sized window
// centered on the primary display, so a detached monitor cannot strand the
// window off screen.
func (h *Handler) Load(ctx context.Context) State {
	state := State{Bounds: Bounds{Width: DefaultWidth, Height: DefaultHeight}}

	if h.store != nil {
		rec, err := h.store.GetWindowState(ctx, h.name)
		switch {
		case err == nil:
			state = State{
				Bounds:      Bounds{X: rec.X, Y: rec.Y, Width: rec.Width, Height: rec.Height},
				IsMaximized: rec.IsMaximized,
				IsMinimized: rec.IsMinimized,
				IsHidden:    rec.IsHidden,
			}
		case store.IsNotFound(err):
		default:
			log.Printf("[WindowState] Failed to load %q, using defaults: %v", h.name, err)
		}
	}

	state = h.fit(state)

	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	return state
}

// Apply restores the handler's state onto the window: geometry first, then
// the run-state flags, so a maximize or hide does not clobber the normal
// bounds being restored underneath it.
func (h *Handler) Apply() {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	if h.window == nil {
		return
	}
	h.window.SetBounds(state.Bounds)
	switch {
	case state.IsMaximized:
		h.window.Maximize()
	case state.IsMinimized:
		h.window.Minimize()
	}
	if state.IsHidden {
		h.window.Hide()
	} else {
		h.window.Show()
	}
}

// fit clamps a state onto the attached displays.
func (h *Handler) fit(state State) State {
	if state.Bounds.Width <= 0 || state.Bounds.Height <= 0 {
		state.Bounds.Width = DefaultWidth
		state.Bounds.Height = DefaultHeight
	}
	if h.displays == nil {
		return state
	}
	displays := h.displays.Displays()
	if len(displays) == 0 {
		return state
	}
	for _, d := range displays {
		if insideDisplay(state.Bounds, d.Bounds) {
			return state
		}
	}

	primary := displays[0].Bounds
	width := min(DefaultWidth, primary.Width)
	height := min(DefaultHeight, primary.Height)
	state.Bounds = Bounds{
		X:      primary.X + (primary.Width-width)/2,
		Y:      primary.Y + (primary.Height-height)/2,
		Width:  width,
		Height: height,
	}
	return state
}

func insideDisplay(b, d Bounds) bool {
	return b.X >= d.X && b.Y >= d.Y &&
		b.X+b.Width <= d.X+d.Width &&
		b.Y+b.Height <= d.Y+d.Height
}

// Fetch snapshots the live window into the handler's state. Geometry is
// only captured while the window is in its normal state; a maximized,
// minimized or fullscreen window keeps the last normal bounds so restore
// lands where the user left the window, not where the window system put it.
func (h *Handler) Fetch() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.window != nil {
		if !h.window.IsMaximized() && !h.window.IsMinimized() && !h.window.IsFullScreen() {
			h.state.Bounds = h.window.Bounds()
		}
		h.state.IsMaximized = h.window.IsMaximized()
		h.state.IsMinimized = h.window.IsMinimized()
		h.state.IsHidden = !h.window.IsVisible()
	}
	return h.state
}

// FetchAndSave schedules a debounced fetch-and-persist. Bursts of calls
// collapse into one write after the debounce interval.
func (h *Handler) FetchAndSave(ctx context.Context) {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(h.debounce, func() {
		h.Fetch()
		if err := h.Save(ctx); err != nil {
			log.Printf("[WindowState] Debounced save of %q failed: %v", h.name, err)
		}
	})
	h.mu.Unlock()
}

// Save writes the current state synchronously, cancelling any pending
// debounced save.
func (h *Handler) Save(ctx context.Context) error {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	state := h.state
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}
	return h.store.SaveWindowState(ctx, store.WindowStateRecord{
		Name:        h.name,
		X:           state.Bounds.X,
		Y:           state.Bounds.Y,
		Width:       state.Bounds.Width,
		Height:      state.Bounds.Height,
		IsMaximized: state.IsMaximized,
		IsMinimized: state.IsMinimized,
		IsHidden:    state.IsHidden,
	})
}

// HandleClose runs the window close path: announce the close, leave
// fullscreen so the persisted state is the normal geometry, then flush
// synchronously.
func (h *Handler) HandleClose(ctx context.Context) error {
	eventbus.Publish(ctx, h.bus, eventbus.Windows.Closing, eventbus.SourceWindowState, eventbus.WindowClosingEvent{
		Name: h.name,
	})

	if h.window != nil && h.window.IsFullScreen() {
		h.window.SetFullScreen(false)
	}
	h.Fetch()
	return h.Save(ctx)
}
