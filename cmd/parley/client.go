package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley/internal/config"
	configstore "github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/daemon"
	"github.com/parley-im/parley/internal/registry"
	"github.com/parley-im/parley/internal/transport/gateway"
)

const gatewayTimeout = 5 * time.Second

// gatewayClient talks to a running daemon over its unix socket.
type gatewayClient struct {
	conn *websocket.Conn
}

func dialGateway(instance string) (*gatewayClient, error) {
	paths := config.GetInstancePaths(instance)
	dialer := websocket.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) {
			return net.DialTimeout("unix", paths.Socket, gatewayTimeout)
		},
		HandshakeTimeout: gatewayTimeout,
	}
	conn, _, err := dialer.Dial("ws://parleyd/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	return &gatewayClient{conn: conn}, nil
}

func (c *gatewayClient) Close() {
	c.conn.Close()
}

func (c *gatewayClient) send(frameType string, data any) error {
	msg := gateway.Message{Type: frameType, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		msg.Data = raw
	}
	return c.conn.WriteJSON(msg)
}

// awaitServers reads frames until the next server snapshot arrives. An
// error frame fails the call instead.
func (c *gatewayClient) awaitServers() ([]gateway.ServerDTO, error) {
	c.conn.SetReadDeadline(time.Now().Add(gatewayTimeout))
	for {
		var msg gateway.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("read from daemon: %w", err)
		}
		switch msg.Type {
		case gateway.TypeServers:
			var servers []gateway.ServerDTO
			if err := json.Unmarshal(msg.Data, &servers); err != nil {
				return nil, fmt.Errorf("decode server list: %w", err)
			}
			return servers, nil
		case "error":
			return nil, fmt.Errorf("daemon: %s", msg.Error)
		}
	}
}

// withDirectRegistry runs fn against the store directly. The store is
// single-owner, so this path refuses to run next to a live daemon.
func withDirectRegistry(instance string, fn func(*registry.Registry) error) error {
	if daemon.IsRunning(instance) {
		return fmt.Errorf("daemon is running for instance %q; this command talks to it instead", instance)
	}

	if _, err := config.EnsureInstanceDirs(instance); err != nil {
		return fmt.Errorf("prepare instance directories: %w", err)
	}
	st, err := configstore.Open(configstore.Options{InstanceName: instance})
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer st.Close()

	paths := config.GetInstancePaths(instance)
	if n, err := st.MigrateLegacyServers(context.Background(), paths.LegacyServers); err == nil && n > 0 {
		fmt.Printf("Migrated %d server(s) from %s\n", n, paths.LegacyServers)
	}

	return fn(registry.New(st, nil))
}
