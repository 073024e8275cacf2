// Package daemon wires the shell's services together: the store, the event
// bus, the server registry, certificate trust, badges, surfaces and the
// gateway frontends connect to.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parley-im/parley/internal/badge"
	"github.com/parley-im/parley/internal/certstore"
	"github.com/parley-im/parley/internal/config"
	"github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/eventbus"
	"github.com/parley-im/parley/internal/procutil"
	"github.com/parley-im/parley/internal/registry"
	"github.com/parley-im/parley/internal/runtime"
	"github.com/parley-im/parley/internal/surface"
	"github.com/parley-im/parley/internal/updates"
	"github.com/parley-im/parley/internal/windowstate"
)

const serviceOpTimeout = 5 * time.Second

// Options groups the dependencies a Daemon is built from. Only Store is
// required; the rest default to headless no-ops so the daemon can run
// without a frontend attached.
type Options struct {
	Store          *store.Store
	Version        string
	SurfaceFactory surface.Factory
	TrustPrompt    certstore.Prompt
	Window         windowstate.Window
	Displays       windowstate.DisplayProvider
}

// Daemon is the long-running shell backend.
type Daemon struct {
	store       *store.Store
	bus         *eventbus.Bus
	registry    *registry.Registry
	certs       *certstore.Store
	updater     *updates.Updater
	windowState *windowstate.Handler
	host        *runtime.ServiceHost
	lifecycle   *runtime.Lifecycle
	paths       config.InstancePaths
}

// New builds a daemon bound to the given store. Legacy server files left by
// older releases are migrated before anything reads the registry.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}

	paths := config.GetInstancePaths(opts.Store.InstanceName())

	migrated, err := opts.Store.MigrateLegacyServers(context.Background(), paths.LegacyServers)
	if err != nil {
		log.Printf("[Daemon] Legacy server migration failed: %v", err)
	} else if migrated > 0 {
		log.Printf("[Daemon] Migrated %d server(s) from %s", migrated, paths.LegacyServers)
	}

	bus := eventbus.New()
	reg := registry.New(opts.Store, bus)
	certs := certstore.New(opts.Store, bus, certstore.WithPrompt(opts.TrustPrompt))
	updater := updates.New(opts.Store, bus, opts.Version)

	d := &Daemon{
		store:     opts.Store,
		bus:       bus,
		registry:  reg,
		certs:     certs,
		updater:   updater,
		host:      runtime.NewServiceHost(),
		lifecycle: runtime.NewLifecycle(),
		paths:     paths,
	}

	if opts.Window != nil {
		d.windowState = windowstate.NewHandler(opts.Store, bus, "root", opts.Window, opts.Displays)
	}

	if err := d.registerServices(opts); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Daemon) registerServices(opts Options) error {
	if err := d.host.Register("badge-watcher", func(ctx context.Context) (runtime.Service, error) {
		return badge.NewWatcher(d.bus), nil
	}); err != nil {
		return err
	}

	if err := d.host.Register("surface-manager", func(ctx context.Context) (runtime.Service, error) {
		return surface.NewManager(d.registry, d.bus, opts.SurfaceFactory), nil
	}); err != nil {
		return err
	}

	if err := d.host.Register("gateway", func(ctx context.Context) (runtime.Service, error) {
		return newGatewayService(d.registry, d.bus, d.paths.Socket), nil
	}); err != nil {
		return err
	}

	return nil
}

// Start runs the daemon until Shutdown is called. It blocks.
func (d *Daemon) Start() error {
	if err := runtime.WritePIDFile(d.paths.Lock, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer runtime.RemovePIDFile(d.paths.Lock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.host.Start(ctx); err != nil {
		return fmt.Errorf("daemon: start services: %w", err)
	}

	if d.windowState != nil {
		d.windowState.Load(ctx)
		d.windowState.Apply()
	}

	if d.updater.CanAutoUpdate() {
		go func() {
			if _, err := d.updater.Check(ctx); err != nil {
				log.Printf("[Daemon] Startup update check failed: %v", err)
			}
		}()
	}

	log.Printf("[Daemon] Running, gateway at %s", d.paths.Socket)
	<-d.lifecycle.Done()

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	defer stopCancel()
	var runErr error
	if err := d.host.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		runErr = err
	}

	// Flush window geometry before the store goes away.
	if d.windowState != nil {
		if err := d.windowState.HandleClose(stopCtx); err != nil {
			log.Printf("[Daemon] Final window state save failed: %v", err)
		}
	}

	d.bus.Shutdown()

	if err := d.store.Close(); err != nil {
		log.Printf("[Daemon] Store close error: %v", err)
	}
	return runErr
}

// Shutdown signals the daemon to stop. Safe to call from any goroutine.
func (d *Daemon) Shutdown() {
	d.lifecycle.Shutdown()
}

// Registry exposes the server registry for in-process frontends.
func (d *Daemon) Registry() *registry.Registry { return d.registry }

// Bus exposes the event bus for in-process frontends.
func (d *Daemon) Bus() *eventbus.Bus { return d.bus }

// CertStore exposes the certificate trust store.
func (d *Daemon) CertStore() *certstore.Store { return d.certs }

// Updater exposes the update policy.
func (d *Daemon) Updater() *updates.Updater { return d.updater }

// WindowState exposes the root window state handler, or nil when running
// headless.
func (d *Daemon) WindowState() *windowstate.Handler { return d.windowState }

// IsRunning reports whether a daemon already serves the given instance.
func IsRunning(instanceName string) bool {
	paths := config.GetInstancePaths(instanceName)

	if conn, err := net.Dial("unix", paths.Socket); err == nil {
		conn.Close()
		return true
	}

	data, err := os.ReadFile(paths.Lock)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(paths.Lock)
		return false
	}
	if !procutil.IsProcessAlive(pid) {
		os.Remove(paths.Lock)
		return false
	}
	return true
}

// RunningPID returns the pid recorded for the instance's daemon, or 0.
func RunningPID(instanceName string) int {
	paths := config.GetInstancePaths(instanceName)
	data, err := os.ReadFile(paths.Lock)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || !procutil.IsProcessAlive(pid) {
		return 0
	}
	return pid
}
