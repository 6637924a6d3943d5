// Package ws раздает события заполненности объявлений websocket-клиентам.
//
// Hub получает события из redis-канала и рассылает их всем подключенным
// клиентам. Клиент, не успевающий читать, отключается.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rivve/boarding-house/internal/lib/sl"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Subscriber подписка на канал событий.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func([]byte)) error
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub реестр подключенных клиентов.
type Hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        *slog.Logger
	mu         sync.RWMutex
}

// NewHub создает Hub. Run должен быть запущен до подключения клиентов.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 64),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Run обслуживает регистрацию клиентов и рассылку до отмены контекста.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				h.drop(c)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("websocket client registered", slog.Int("clients", h.ClientCount()))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("websocket client is too slow, disconnecting")
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop вызывается под h.mu.
func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
}

// ClientCount возвращает число подключенных клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast ставит сообщение в очередь рассылки.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// Listen пересылает сообщения redis-канала клиентам до отмены контекста.
func (h *Hub) Listen(ctx context.Context, sub Subscriber, channel string) error {
	return sub.Subscribe(ctx, channel, func(payload []byte) {
		select {
		case h.broadcast <- payload:
		case <-ctx.Done():
		case <-h.done:
		}
	})
}

// ServeHTTP переводит соединение на websocket и регистрирует клиента.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "ws.ServeHTTP"
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", slog.String("op", op), sl.Err(err))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump только обрабатывает pong и закрытие, входящие сообщения игнорируются.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
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
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
