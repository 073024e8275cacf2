package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/parley-im/parley/internal/eventbus"
	"github.com/parley-im/parley/internal/registry"
	"github.com/parley-im/parley/internal/transport/gateway"
)

// gatewayService runs the WebSocket gateway on the instance's unix socket.
type gatewayService struct {
	gateway    *gateway.Gateway
	socketPath string
	server     *http.Server
	listener   net.Listener
}

func newGatewayService(reg *registry.Registry, bus *eventbus.Bus, socketPath string) *gatewayService {
	return &gatewayService{
		gateway:    gateway.New(reg, bus),
		socketPath: socketPath,
	}
}

func (s *gatewayService) Start(ctx context.Context) error {
	if err := s.gateway.Start(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("gateway: create socket directory: %w", err)
	}
	// A dead daemon leaves its socket behind; the pid file already decided
	// nobody is serving it.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("gateway: restrict socket permissions: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.gateway.HandleWebSocket)
	s.server = &http.Server{Handler: mux}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Gateway] Serve error: %v", err)
		}
	}()
	return nil
}

func (s *gatewayService) Stop(ctx context.Context) error {
	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.gateway.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = os.Remove(s.socketPath)
	return firstErr
}
