package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
)

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(sessionID string, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains sessionID -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling when configured: local broadcast
// plus publish to Redis. Both pub/sub sides may be nil for single-instance.
type Hub struct {
	// sessionID -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a session room. Starts the Redis subscription
// for this session if it is the first member.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.SessionID] == nil {
		h.rooms[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			sid := c.SessionID
			cancel, err := h.redisSub.SubscribeSession(sid, func(event string, payload []byte) {
				h.Broadcast(sid, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[sid] = cancel
			}
		}
	}
	h.rooms[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined room",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID),
	)
}

// Unregister removes a client from its session room. Cancels the Redis
// subscription when the last member leaves. Safe to call for clients that
// never bound to a session.
func (h *Hub) Unregister(c *Client) {
	if c.SessionID == "" {
		return
	}
	h.mu.Lock()
	if m, ok := h.rooms[c.SessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left room",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID),
	)
}

// Broadcast sends a message to all clients in a session room (local only).
func (h *Hub) Broadcast(sessionID string, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	// The room map is iterated under the read lock: Register/Unregister
	// mutate it concurrently, and sends are non-blocking so holding the
	// lock across the fan-out cannot stall.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[sessionID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastAndPublish sends to local room members and publishes to Redis
// for other instances.
func (h *Hub) BroadcastAndPublish(sessionID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.Broadcast(sessionID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// SendToClient sends a message to a single client in a session room.
func (h *Hub) SendToClient(sessionID, clientID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	c, ok := h.rooms[sessionID][clientID]
	h.mu.RUnlock()
	if !ok || c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// RoomSize returns the number of connected clients in a session room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
