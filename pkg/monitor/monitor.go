// Package monitor mirrors the console event log to read-only websocket
// clients. Every entry and every ramp progress update is broadcast as one
// JSON message.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gwillem/armctl/pkg/console"
	"github.com/gwillem/armctl/pkg/motion"
)

const (
	writeTimeout = 2 * time.Second
	queueSize    = 256
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Message is the JSON frame sent to clients. Exactly one of Entry and
// Progress is set.
type Message struct {
	Type     string           `json:"type"`
	Entry    *console.Entry   `json:"entry,omitempty"`
	Progress *motion.Progress `json:"progress,omitempty"`
}

// Hub tracks websocket clients and broadcasts to all of them.
type Hub struct {
	log     logrus.FieldLogger
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	queue   chan Message
}

// NewHub creates a hub without clients.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Hub{
		log:     log,
		clients: map[*websocket.Conn]bool{},
		queue:   make(chan Message, queueSize),
	}
}

// Attach subscribes the hub to c and broadcasts its events until ctx is
// done. Messages are dropped when clients fall too far behind.
func (h *Hub) Attach(ctx context.Context, c *console.Console) {
	c.Subscribe(func(e console.Entry) {
		h.enqueue(Message{Type: "entry", Entry: &e})
	})
	c.SubscribeProgress(func(p motion.Progress) {
		h.enqueue(Message{Type: "progress", Progress: &p})
	})
	go h.pump(ctx)
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.queue <- msg:
	default:
		h.log.WithField("type", msg.Type).Debug("monitor queue full, message dropped")
	}
}

func (h *Hub) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.queue:
			h.Broadcast(msg)
		}
	}
}

// Handler returns the websocket endpoint. history, if set, is replayed to
// each new client.
func (h *Hub) Handler(history func() []console.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.WithError(err).Debug("websocket upgrade failed")
			return
		}

		h.mu.Lock()
		if history != nil {
			for _, e := range history() {
				if err := h.write(conn, Message{Type: "entry", Entry: &e}); err != nil {
					h.mu.Unlock()
					_ = conn.Close()
					return
				}
			}
		}
		h.clients[conn] = true
		h.mu.Unlock()
		h.log.WithField("remote", r.RemoteAddr).Info("monitor client connected")

		go h.readLoop(conn)
	})
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends msg to every client. Clients that fail are dropped.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := h.write(c, msg); err != nil {
			h.log.WithError(err).Debug("dropping monitor client")
			delete(h.clients, c)
			_ = c.Close()
		}
	}
}

// ListenAndServe serves the hub on addr at /ws until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string, c *console.Console) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln, c)
}

// Serve is ListenAndServe on an existing listener.
func (h *Hub) Serve(ctx context.Context, ln net.Listener, c *console.Console) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", h.Handler(c.History))

	srv := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	h.log.WithField("addr", ln.Addr().String()).Info("monitor listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	h.closeAll()
	return nil
}

// write must be called with h.mu held.
func (h *Hub) write(c *websocket.Conn, msg Message) error {
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteJSON(msg)
}

// readLoop discards client frames and unregisters the client on disconnect.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.Close()
		delete(h.clients, c)
	}
}
