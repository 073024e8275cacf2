package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parley-im/parley/internal/deeplink"
	"github.com/parley-im/parley/internal/eventbus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// client is one gateway connection.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway
}

// enqueue drops the frame when the client's send buffer is full; a stalled
// frontend must not back the hub up.
func (c *client) enqueue(payload []byte) {
	if payload == nil {
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("[Gateway] Client %s send buffer full, dropping frame", c.id)
	}
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.gateway.unregister <- c:
		case <-ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Gateway] Client %s read error: %v", c.id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.sendError("malformed frame: " + err.Error())
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(ctx context.Context, msg Message) {
	switch msg.Type {
	case TypeServerAdd:
		var data struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("server.add: " + err.Error())
			return
		}
		if _, _, err := c.gateway.registry.Add(ctx, data.URL); err != nil {
			c.sendError(err.Error())
			return
		}
		c.ackWithSnapshot()

	case TypeServerRemove:
		var data struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("server.remove: " + err.Error())
			return
		}
		c.gateway.registry.Remove(ctx, data.URL)
		c.ackWithSnapshot()

	case TypeServerActivate:
		var data struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("server.activate: " + err.Error())
			return
		}
		c.gateway.registry.SetActive(ctx, data.URL)
		c.ackWithSnapshot()

	case TypeServerReorder:
		var data struct {
			URLs []string `json:"urls"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("server.reorder: " + err.Error())
			return
		}
		c.gateway.registry.Reorder(ctx, data.URLs)
		c.ackWithSnapshot()

	case TypeServerList:
		c.enqueue(mustMarshal(TypeServers, c.gateway.serverList()))

	case TypeDeepLink:
		var data struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("deeplink: " + err.Error())
			return
		}
		if err := deeplink.Dispatch(ctx, c.gateway.bus, data.URL); err != nil {
			c.sendError(err.Error())
		}

	case TypeSurfaceMessage:
		var event eventbus.SurfaceMessageEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.sendError("surface.message: " + err.Error())
			return
		}
		eventbus.Publish(ctx, c.gateway.bus, eventbus.Surfaces.Message, eventbus.SourceClient, event)

	default:
		c.sendError("unknown frame type: " + msg.Type)
	}
}

// ackWithSnapshot answers a mutation frame with the current server list.
// A no-op mutation still gets this reply, so callers waiting on a snapshot
// never hang on a command that changed nothing.
func (c *client) ackWithSnapshot() {
	c.enqueue(mustMarshal(TypeServers, c.gateway.serverList()))
}

func (c *client) sendError(message string) {
	payload, err := json.Marshal(Message{
		Type:      "error",
		Error:     message,
		Timestamp: time.Now(),
	})
	if err != nil {
		return
	}
	c.enqueue(payload)
}
