// Package updates resolves the update policy from its two tiers: an
// administrator file deployed next to the executable and the user's own
// preferences. The administrator tier can force itself, locking the user
// tier out entirely.
package updates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/eventbus"
)

// Settings is one tier of update preferences. The JSON layout matches the
// update.json file administrators deploy.
type Settings struct {
	Forced         bool   `json:"forced"`
	CanUpdate      bool   `json:"canUpdate"`
	AutoUpdate     bool   `json:"autoUpdate"`
	SkippedVersion string `json:"skippedUpdateVersion,omitempty"`
}

// userPrefsKey is the settings-table key holding the user tier.
const userPrefsKey = "updates.prefs"

// AppSettingsFile is the administrator tier filename, looked up next to
// the running executable.
const AppSettingsFile = "update.json"

// ErrLocked is returned when the administrator tier forbids changing a
// setting.
var ErrLocked = errors.New("updates: setting locked by administrator policy")

// VersionSource reports the newest published version, for update checks.
type VersionSource func(ctx context.Context) (string, error)

// Updater owns the resolved update policy.
type Updater struct {
	store          *store.Store
	bus            *eventbus.Bus
	appPath        string
	currentVersion string
	source         VersionSource

	mu     sync.Mutex
	app    Settings
	hasApp bool
	user   Settings
}

// Option customises an Updater.
type Option func(*Updater)

// WithAppSettingsPath overrides where the administrator tier is read from.
func WithAppSettingsPath(path string) Option {
	return func(u *Updater) { u.appPath = path }
}

// WithVersionSource installs the remote version probe.
func WithVersionSource(source VersionSource) Option {
	return func(u *Updater) { u.source = source }
}

// New builds an Updater and loads both tiers. A missing administrator file
// simply leaves that tier absent; a corrupt one is logged and ignored.
func New(st *store.Store, bus *eventbus.Bus, currentVersion string, opts ...Option) *Updater {
	u := &Updater{
		store:          st,
		bus:            bus,
		currentVersion: currentVersion,
		user: Settings{
			CanUpdate:  true,
			AutoUpdate: true,
		},
	}
	if exe, err := os.Executable(); err == nil {
		u.appPath = filepath.Join(filepath.Dir(exe), AppSettingsFile)
	}
	for _, opt := range opts {
		opt(u)
	}
	u.load()
	return u
}

func (u *Updater) load() {
	if u.appPath != "" {
		data, err := os.ReadFile(u.appPath)
		switch {
		case err == nil:
			var app Settings
			if jsonErr := json.Unmarshal(data, &app); jsonErr != nil {
				log.Printf("[Updates] Ignoring corrupt %s: %v", u.appPath, jsonErr)
			} else {
				u.app = app
				u.hasApp = true
			}
		case os.IsNotExist(err):
		default:
			log.Printf("[Updates] Failed to read %s: %v", u.appPath, err)
		}
	}

	if u.store != nil {
		value, err := u.store.GetSetting(context.Background(), userPrefsKey)
		switch {
		case err == nil:
			var user Settings
			if jsonErr := json.Unmarshal([]byte(value), &user); jsonErr != nil {
				log.Printf("[Updates] Ignoring corrupt user update prefs: %v", jsonErr)
			} else {
				u.user = user
			}
		case store.IsNotFound(err):
		default:
			log.Printf("[Updates] Failed to load user update prefs: %v", err)
		}
	}
}

// Effective resolves the two tiers. A forced administrator tier wins
// outright; otherwise the user tier applies, constrained by the
// administrator's CanUpdate switch.
func (u *Updater) Effective() Settings {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.effectiveLocked()
}

func (u *Updater) effectiveLocked() Settings {
	if u.hasApp && u.app.Forced {
		return u.app
	}
	merged := u.user
	if u.hasApp && !u.app.CanUpdate {
		merged.CanUpdate = false
	}
	return merged
}

// CanUpdate reports whether updates may be applied at all.
func (u *Updater) CanUpdate() bool {
	return u.Effective().CanUpdate
}

// CanAutoUpdate reports whether updates are checked automatically.
func (u *Updater) CanAutoUpdate() bool {
	s := u.Effective()
	return s.CanUpdate && s.AutoUpdate
}

// CanSetAutoUpdate reports whether the user may change the auto-update
// switch.
func (u *Updater) CanSetAutoUpdate() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !(u.hasApp && u.app.Forced)
}

// SetAutoUpdate flips the user tier's auto-update switch.
func (u *Updater) SetAutoUpdate(ctx context.Context, on bool) error {
	if !u.CanSetAutoUpdate() {
		return ErrLocked
	}
	u.mu.Lock()
	u.user.AutoUpdate = on
	u.mu.Unlock()
	return u.persistUser(ctx)
}

// SkipVersion records a version the user declined; automatic checks stop
// announcing it.
func (u *Updater) SkipVersion(ctx context.Context, version string) error {
	u.mu.Lock()
	u.user.SkippedVersion = version
	u.mu.Unlock()
	return u.persistUser(ctx)
}

func (u *Updater) persistUser(ctx context.Context) error {
	if u.store == nil {
		return nil
	}
	u.mu.Lock()
	data, err := json.Marshal(u.user)
	u.mu.Unlock()
	if err != nil {
		return fmt.Errorf("updates: marshal user prefs: %w", err)
	}
	if err := u.store.SetSetting(ctx, userPrefsKey, string(data)); err != nil {
		return fmt.Errorf("updates: persist user prefs: %w", err)
	}
	return nil
}

// Check probes the version source and publishes the result. A version the
// user skipped is reported as no update.
func (u *Updater) Check(ctx context.Context) (string, error) {
	if !u.CanUpdate() {
		return "", nil
	}
	if u.source == nil {
		return "", nil
	}

	eventbus.Publish(ctx, u.bus, eventbus.Updates.Status, eventbus.SourceUpdates, eventbus.UpdateStatusEvent{
		Checking: true,
	})

	latest, err := u.source(ctx)
	if err != nil {
		eventbus.Publish(ctx, u.bus, eventbus.Updates.Status, eventbus.SourceUpdates, eventbus.UpdateStatusEvent{
			Message: err.Error(),
		})
		return "", fmt.Errorf("updates: check: %w", err)
	}

	u.mu.Lock()
	skipped := u.user.SkippedVersion
	u.mu.Unlock()

	event := eventbus.UpdateStatusEvent{}
	if latest != "" && latest != u.currentVersion && latest != skipped {
		event.NewVersion = latest
	}
	eventbus.Publish(ctx, u.bus, eventbus.Updates.Status, eventbus.SourceUpdates, event)
	return event.NewVersion, nil
}
