package events

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Publisher is what the domain services see. Publish is fire-and-forget:
// delivery only reaches subscribers connected at the moment of publishing, and
// callers must invoke it after the corresponding store mutation has committed.
type Publisher interface {
	Publish(event string, payload any)
}

// Envelope is the wire format sent to websocket subscribers.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
	Origin  string          `json:"-"`
}

type wireEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
	Origin  string          `json:"origin,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans events out to connected websocket clients. When given a Redis
// client it also bridges events between api-server instances over a pub/sub
// channel; each hub tags outgoing messages with its own origin id so it does
// not re-deliver its own bridged messages.
type Hub struct {
	id      string
	rdb     *redis.Client
	channel string

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewHub(rdb *redis.Client, channel string) *Hub {
	return &Hub{
		id:      uuid.NewString(),
		rdb:     rdb,
		channel: channel,
		conns:   make(map[*websocket.Conn]bool),
	}
}

// Run consumes the Redis bridge until ctx is cancelled. It is a no-op when the
// hub was built without a Redis client.
func (h *Hub) Run(ctx context.Context) {
	if h.rdb == nil {
		<-ctx.Done()
		return
	}

	sub := h.rdb.Subscribe(ctx, h.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("events: drop malformed bridge message: %v", err)
				continue
			}
			if env.Origin == h.id {
				continue
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

func (h *Hub) Publish(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("events: marshal payload for %s: %v", event, err)
		return
	}

	env := wireEnvelope{
		Event:   event,
		Payload: data,
		At:      time.Now(),
		Origin:  h.id,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("events: marshal envelope for %s: %v", event, err)
		return
	}

	h.broadcast(raw)

	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.rdb.Publish(ctx, h.channel, raw).Err(); err != nil {
			log.Printf("events: bridge publish %s: %v", event, err)
		}
	}
}

func (h *Hub) broadcast(raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// SubscriberCount reports currently connected websocket clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeWS upgrades the request and holds the connection open until the client
// disconnects. Subscribers receive every event published after they connect.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()

	conn.Close()
}
