package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/entity-history/backend/internal/auth"
	"github.com/entity-history/backend/internal/events"
	"github.com/entity-history/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// wsClient is one socket; a non-empty entityUID limits it to that entity's events.
type wsClient struct {
	actor     string
	entityUID string
}

// WSHub fans change events out to connected readers.
type WSHub struct {
	jwtSecret   string
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[*websocket.Conn]wsClient
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:   jwtSecret,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[*websocket.Conn]wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamEntity, h.broadcast)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	uid, _ := event.Payload["entity_uid"].(string)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn, client := range h.connections {
		if client.entityUID != "" && client.entityUID != uid {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("ws write failed", zap.String("actor", client.actor), zap.Error(err))
		}
	}
}

// Clients returns the number of open sockets.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}
	if !rbac.AnyHasPermission(claims.Roles, rbac.PermReadEntities) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"forbidden"}`))
		conn.Close()
		return
	}

	h.mu.Lock()
	h.connections[conn] = wsClient{actor: claims.Actor(), entityUID: conn.Query("entity_uid")}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.connections, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
