package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"supmap-tracking/internal/tracking"
)

const (
	// sendChannelSize controls the max number
	// of messages that can be queued for a client.
	sendChannelSize = 16
	pingPeriod      = (60 * 9 * time.Second) / 10
)

type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type Client struct {
	ID      string
	Conn    *websocket.Conn
	Manager *Manager
	send    chan Message
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(id string, conn *websocket.Conn, manager *Manager) *Client {
	ctx, cancel := context.WithCancel(manager.ctx)
	return &Client{
		ID:      id,
		Conn:    conn,
		Manager: manager,
		send:    make(chan Message, sendChannelSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) Start() {
	go c.readPump()
	go c.writePump()
	select {
	case c.Manager.register <- c:
	case <-c.ctx.Done():
	}
}

func (c *Client) Close() {
	if err := c.Conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.Manager.logger.Debug("failed to close connection", "clientID", c.ID, "error", err)
	}
	c.cancel()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Manager.unregister <- c:
		case <-c.Manager.ctx.Done():
		}
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			c.Manager.logger.Debug("failed to read message", "clientID", c.ID, "error", err)
			break
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.Manager.logger.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
			c.Manager.logger.Debug("message sent", "clientID", c.ID, "type", msg.Type)
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.Manager.logger.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) reply(msg Message) {
	select {
	case c.send <- msg:
	default:
		c.Manager.logger.Warn("dropping reply, client queue full", "clientID", c.ID, "type", msg.Type)
	}
}

func (c *Client) replyError(err error) {
	data, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		c.Manager.logger.Error("failed to encode error reply", "clientID", c.ID, "error", mErr)
		return
	}
	c.reply(Message{Type: "error", Data: data})
}

func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "start":
		c.Manager.logger.Debug("received start message", "clientID", c.ID, "data", string(msg.Data))

		var req tracking.StartRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.Manager.logger.Warn("failed to unmarshal start message", "clientID", c.ID, "error", err)
			c.replyError(err)
			return
		}
		if _, err := c.Manager.controller.StartSession(c.ctx, req); err != nil {
			c.Manager.logger.Warn("failed to start session", "clientID", c.ID, "error", err)
			c.replyError(err)
		}
	case "stop":
		c.Manager.logger.Debug("received stop message", "clientID", c.ID)

		if _, err := c.Manager.controller.StopSession(c.ctx); err != nil {
			c.Manager.logger.Warn("failed to stop session", "clientID", c.ID, "error", err)
			c.replyError(err)
		}
	case "snapshot":
		snap, err := c.Manager.controller.Snapshot()
		if err != nil {
			c.replyError(err)
			return
		}
		reply, err := snapshotMessage(snap)
		if err != nil {
			c.Manager.logger.Error("failed to encode snapshot", "clientID", c.ID, "error", err)
			c.replyError(err)
			return
		}
		c.reply(reply)
	default:
		c.Manager.logger.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}
