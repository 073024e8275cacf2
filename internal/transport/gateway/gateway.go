// Package gateway exposes the daemon to shell frontends and the CLI over
// WebSocket. Inbound frames are commands against the registry and the bus;
// outbound frames mirror the bus topics a frontend renders.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parley-im/parley/internal/eventbus"
	"github.com/parley-im/parley/internal/registry"
)

// Message is the wire envelope for both directions.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Inbound frame types.
const (
	TypeServerAdd      = "server.add"
	TypeServerRemove   = "server.remove"
	TypeServerActivate = "server.activate"
	TypeServerReorder  = "server.reorder"
	TypeServerList     = "server.list"
	TypeDeepLink       = "deeplink"
	TypeSurfaceMessage = "surface.message"
)

// Outbound frame types.
const (
	TypeServers          = "servers"
	TypeBadgeGlobal      = "badge.global"
	TypeSurfaceLifecycle = "surface.lifecycle"
	TypeUpdateStatus     = "update.status"
	TypeCertTrustPrompt  = "certificate.trust_prompt"
)

// ServerDTO is the registry entry as frontends see it. Credentials never
// cross the gateway.
type ServerDTO struct {
	URL      string         `json:"url"`
	Title    string         `json:"title"`
	IsActive bool           `json:"isActive"`
	LastPath string         `json:"lastPath,omitempty"`
	Style    string         `json:"style,omitempty"`
	Badge    eventbus.Badge `json:"badge"`
}

// Gateway is the WebSocket hub: one event loop owns the client set, each
// client gets its own read and write pumps.
type Gateway struct {
	registry *registry.Registry
	bus      *eventbus.Bus

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	upgrader   websocket.Upgrader

	mu        sync.RWMutex
	lifecycle eventbus.ServiceLifecycle
}

// New builds a gateway over the given registry and bus.
func New(reg *registry.Registry, bus *eventbus.Bus) *Gateway {
	return &Gateway{
		registry:   reg,
		bus:        bus,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 256),
		upgrader: websocket.Upgrader{
			// The daemon listens on a local socket owned by the user;
			// browser-style origin checks do not apply.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start runs the hub loop and bridges bus topics to connected clients.
func (g *Gateway) Start(ctx context.Context) error {
	g.lifecycle.Start(ctx)

	g.lifecycle.Go(g.run)

	serversChanged := eventbus.SubscribeTo(g.bus, eventbus.Servers.Changed,
		eventbus.WithSubscriptionName("gateway"))
	badgeGlobal := eventbus.SubscribeTo(g.bus, eventbus.Badges.Global,
		eventbus.WithSubscriptionName("gateway"))
	surfaceLifecycle := eventbus.SubscribeTo(g.bus, eventbus.Surfaces.Lifecycle,
		eventbus.WithSubscriptionName("gateway"))
	updateStatus := eventbus.SubscribeTo(g.bus, eventbus.Updates.Status,
		eventbus.WithSubscriptionName("gateway"))
	trustPrompts := eventbus.SubscribeTo(g.bus, eventbus.Certs.RequestTrust,
		eventbus.WithSubscriptionName("gateway"))
	g.lifecycle.AddSubscriptions(serversChanged, badgeGlobal, surfaceLifecycle, updateStatus, trustPrompts)

	g.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, serversChanged, func(eventbus.ServersChangedEvent) {
			g.Broadcast(TypeServers, g.serverList())
		})
	})
	g.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, badgeGlobal, func(event eventbus.GlobalBadgeEvent) {
			g.Broadcast(TypeBadgeGlobal, event)
		})
	})
	g.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, surfaceLifecycle, func(event eventbus.SurfaceLifecycleEvent) {
			g.Broadcast(TypeSurfaceLifecycle, event)
		})
	})
	g.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, updateStatus, func(event eventbus.UpdateStatusEvent) {
			g.Broadcast(TypeUpdateStatus, event)
		})
	})
	g.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, trustPrompts, func(event eventbus.CertTrustRequestEvent) {
			g.Broadcast(TypeCertTrustPrompt, event)
		})
	})

	return nil
}

// Stop disconnects all clients and waits for the hub to drain.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.lifecycle.Shutdown(ctx)
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

func (g *Gateway) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			for c := range g.clients {
				close(c.send)
				delete(g.clients, c)
			}
			g.mu.Unlock()
			return

		case c := <-g.register:
			g.mu.Lock()
			g.clients[c] = true
			g.mu.Unlock()
			c.enqueue(mustMarshal(TypeServers, g.serverList()))

		case c := <-g.unregister:
			g.mu.Lock()
			if _, ok := g.clients[c]; ok {
				delete(g.clients, c)
				close(c.send)
			}
			g.mu.Unlock()

		case payload := <-g.broadcast:
			g.mu.RLock()
			for c := range g.clients {
				c.enqueue(payload)
			}
			g.mu.RUnlock()
		}
	}
}

// Broadcast fans a frame out to every connected client.
func (g *Gateway) Broadcast(frameType string, data any) {
	payload := mustMarshal(frameType, data)
	if payload == nil {
		return
	}
	select {
	case g.broadcast <- payload:
	case <-g.lifecycle.Context().Done():
	}
}

// HandleWebSocket upgrades an HTTP request into a gateway connection.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] Upgrade failed: %v", err)
		return
	}

	c := &client{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, 64),
		gateway: g,
	}
	g.register <- c

	go c.writePump()
	go c.readPump(g.lifecycle.Context())
}

func (g *Gateway) serverList() []ServerDTO {
	servers := g.registry.List()
	dtos := make([]ServerDTO, 0, len(servers))
	for _, srv := range servers {
		dtos = append(dtos, ServerDTO{
			URL:      srv.URL,
			Title:    srv.Title,
			IsActive: srv.IsActive,
			LastPath: srv.LastPath,
			Style:    srv.Style,
			Badge:    srv.Badge,
		})
	}
	return dtos
}

func mustMarshal(frameType string, data any) []byte {
	msg := Message{Type: frameType, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			log.Printf("[Gateway] Failed to marshal %s frame: %v", frameType, err)
			return nil
		}
		msg.Data = raw
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[Gateway] Failed to marshal frame: %v", err)
		return nil
	}
	return payload
}
