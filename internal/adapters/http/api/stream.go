package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/milepost/internal/domain/model"
	"github.com/okian/milepost/pkg/logger"
	"github.com/okian/milepost/pkg/metrics"
)

// Websocket timing, following the gorilla chat example.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// OfferMessage is one published batch of offers for a carrier.
type OfferMessage struct {
	Carrier string                `json:"carrier"`
	Offers  []model.RawAwardOffer `json:"offers"`
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan OfferMessage
}

// Hub fans published offers out to websocket subscribers. Run owns the
// client set; everything else talks to it through channels.
type Hub struct {
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan OfferMessage
	clients    map[*wsClient]struct{}
	done       chan struct{}
	ran        atomic.Bool
	count      atomic.Int64
	upgrader   websocket.Upgrader
	logger     logger.Logger
}

// NewHub creates a hub. Call Run before serving subscribers.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan OfferMessage, sendBuffer),
		clients:    make(map[*wsClient]struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Get().Named("ws"),
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Run serves register, unregister and broadcast requests until ctx ends.
// A hub runs once; later calls return immediately.
func (h *Hub) Run(ctx context.Context) {
	if !h.ran.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
		h.count.Store(0)
		metrics.UpdateWebsocketClients(0)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.updateCount()
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.updateCount()
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow subscriber.
					delete(h.clients, c)
					close(c.send)
					h.updateCount()
					h.logger.Warn(ctx, "dropping slow websocket subscriber", logger.String("remote", c.conn.RemoteAddr().String()))
				}
			}
		}
	}
}

func (h *Hub) updateCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.UpdateWebsocketClients(len(h.clients))
}

// Broadcast queues offers for every subscriber. It never blocks the
// caller; messages are dropped when the hub is saturated.
func (h *Hub) Broadcast(ctx context.Context, carrier string, offers []model.RawAwardOffer) {
	select {
	case h.broadcast <- OfferMessage{Carrier: carrier, Offers: offers}:
	default:
		h.logger.Warn(ctx, "offer broadcast dropped", logger.String("carrier", carrier), logger.Int("offers", len(offers)))
	}
}

// HandleWS handles GET /ws/offers.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c := &wsClient{hub: h, conn: conn, send: make(chan OfferMessage, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump discards client messages and keeps the read deadline alive.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.logger.Warn(context.Background(), "websocket read error", logger.Error(err))
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
