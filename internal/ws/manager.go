package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"supmap-tracking/internal/tracking"
)

// Controller is what presentation clients may ask of the tracking engine.
type Controller interface {
	StartSession(ctx context.Context, req tracking.StartRequest) (tracking.Snapshot, error)
	StopSession(ctx context.Context) (tracking.Snapshot, error)
	Snapshot() (tracking.Snapshot, error)
}

// Manager fans published snapshots out to every connected presentation client.
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
	controller Controller
}

func NewManager(ctx context.Context, logger *slog.Logger, controller Controller) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		controller: controller,
	}
}

func (m *Manager) Start() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Info("client connected", "clientID", client.ID)
			if snap, err := m.controller.Snapshot(); err == nil {
				if msg, err := snapshotMessage(snap); err == nil {
					m.sendTo(client, msg)
				} else {
					m.logger.Error("failed to encode snapshot", "sessionID", snap.SessionID, "error", err)
				}
			}
		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.send)
				m.logger.Info("client disconnected", "clientID", client.ID)
			}
			m.mu.Unlock()
		case message := <-m.broadcast:
			m.mu.RLock()
			for _, client := range m.clients {
				m.sendTo(client, message)
			}
			m.mu.RUnlock()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) sendTo(client *Client, message Message) {
	select {
	case client.send <- message:
	default:
		go m.forceDisconnect(client)
	}
}

// HandleNewConnection starts the pumps of an accepted connection.
func (m *Manager) HandleNewConnection(id string, conn *websocket.Conn) {
	NewClient(id, conn, m).Start()
}

func (m *Manager) Broadcast(message Message) {
	select {
	case m.broadcast <- message:
	case <-m.ctx.Done():
	}
}

// Observe is a tracking.Observer broadcasting every published snapshot.
func (m *Manager) Observe(snap tracking.Snapshot) {
	msg, err := snapshotMessage(snap)
	if err != nil {
		m.logger.Error("failed to encode snapshot", "sessionID", snap.SessionID, "error", err)
		return
	}
	m.Broadcast(msg)
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) forceDisconnect(c *Client) {
	c.Close()
}

func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	for _, client := range m.clients {
		client.Close()
	}
	m.mu.Unlock()
}

func snapshotMessage(snap tracking.Snapshot) (Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return Message{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return Message{Type: "snapshot", Data: data}, nil
}
