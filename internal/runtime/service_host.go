package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Service is one unit the daemon runs: the surface manager, the badge
// watcher, the gateway.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServiceFactory constructs a service instance at start time.
type ServiceFactory func(ctx context.Context) (Service, error)

const defaultShutdownTimeout = 5 * time.Second

type serviceRegistration struct {
	name            string
	factory         ServiceFactory
	service         Service
	shutdownTimeout time.Duration
}

// Option configures a service registration.
type Option func(*serviceRegistration)

// WithShutdownTimeout customises how long a service gets to stop.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *serviceRegistration) {
		reg.shutdownTimeout = timeout
	}
}

// ServiceHost starts registered services in order and stops them in
// reverse, so later services can rely on earlier ones for their whole
// lifetime.
type ServiceHost struct {
	mu        sync.Mutex
	order     []string
	entries   map[string]*serviceRegistration
	started   bool
	cancel    context.CancelFunc
	parentCtx context.Context
}

// NewServiceHost creates an empty host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{entries: make(map[string]*serviceRegistration)}
}

// Register adds a service factory under a unique name. Registration order
// is start order.
func (h *ServiceHost) Register(name string, factory ServiceFactory, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if _, exists := h.entries[name]; exists {
		return fmt.Errorf("runtime: service %q already registered", name)
	}

	reg := &serviceRegistration{
		name:            name,
		factory:         factory,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(reg)
	}

	h.entries[name] = reg
	h.order = append(h.order, name)
	return nil
}

// Start creates and starts every registered service. A failure stops the
// services already started and returns the error.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("runtime: service host already started")
	}
	h.started = true
	h.parentCtx, h.cancel = context.WithCancel(ctx)
	h.mu.Unlock()

	started := make([]*serviceRegistration, 0, len(h.order))
	for _, name := range h.order {
		h.mu.Lock()
		reg := h.entries[name]
		h.mu.Unlock()

		svc, err := reg.factory(h.parentCtx)
		if err != nil {
			h.stopStarted(started)
			return fmt.Errorf("runtime: create service %q: %w", name, err)
		}
		if err := svc.Start(h.parentCtx); err != nil {
			h.stopStarted(started)
			return fmt.Errorf("runtime: start service %q: %w", name, err)
		}
		reg.service = svc
		started = append(started, reg)
	}
	return nil
}

// Stop shuts every started service down in reverse order. The first
// shutdown error is returned after all services have been asked to stop.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var stopErr error
	for i := len(h.order) - 1; i >= 0; i-- {
		h.mu.Lock()
		reg := h.entries[h.order[i]]
		h.mu.Unlock()
		if reg == nil || reg.service == nil {
			continue
		}

		stopCtx, stopCancel := context.WithTimeout(ctx, reg.shutdownTimeout)
		if err := reg.service.Stop(stopCtx); err != nil && err != context.Canceled && stopErr == nil {
			stopErr = fmt.Errorf("runtime: stop service %q: %w", reg.name, err)
		}
		stopCancel()
		reg.service = nil
	}
	return stopErr
}

func (h *ServiceHost) stopStarted(started []*serviceRegistration) {
	for i := len(started) - 1; i >= 0; i-- {
		reg := started[i]
		stopCtx, cancel := context.WithTimeout(context.Background(), reg.shutdownTimeout)
		_ = reg.service.Stop(stopCtx)
		cancel()
		reg.service = nil
	}
	h.mu.Lock()
	h.started = false
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.mu.Unlock()
}
