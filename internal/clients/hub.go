package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/hpungsan/storysync/internal/logging"
)

// ErrNoClients is returned when a request needs a connected view context and none is.
var ErrNoClients = errors.New("no connected view context")

// Conn is one connected view context.
type Conn interface {
	Write(ctx context.Context, msg Message) error
	Close() error
}

// MessageHandler receives every inbound message except AUTH_TOKEN replies.
type MessageHandler func(ctx context.Context, clientID string, msg Message)

type client struct {
	id          string
	conn        Conn
	connectedAt time.Time
}

// Hub is the registry of connected view contexts.
type Hub struct {
	tokenTimeout time.Duration
	origins      []string
	log          logging.Logger

	mu      sync.RWMutex
	clients map[string]*client
	order   []string
	handler MessageHandler

	pendingMu sync.Mutex
	pending   map[string]chan string
}

// NewHub returns a Hub. tokenTimeout bounds GET_AUTH_TOKEN round-trips; origins are the
// accepted WebSocket Origin host patterns.
func NewHub(tokenTimeout time.Duration, origins []string, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		tokenTimeout: tokenTimeout,
		origins:      origins,
		log:          log,
		clients:      make(map[string]*client),
		pending:      make(map[string]chan string),
	}
}

// OnMessage sets the handler for inbound messages.
func (h *Hub) OnMessage(fn MessageHandler) {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
}

// Attach registers conn and returns its id.
func (h *Hub) Attach(conn Conn) string {
	id := uuid.NewString()
	h.mu.Lock()
	h.clients[id] = &client{id: id, conn: conn, connectedAt: time.Now()}
	h.order = append(h.order, id)
	h.mu.Unlock()
	return id
}

// Detach unregisters a client. Unknown ids are ignored.
func (h *Hub) Detach(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; !ok {
		return
	}
	delete(h.clients, id)
	for i, cid := range h.order {
		if cid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Deliver processes one inbound message from clientID.
func (h *Hub) Deliver(ctx context.Context, clientID string, msg Message) {
	if msg.Type == TypeAuthToken {
		h.resolveToken(msg.RequestID, msg.Token)
		return
	}

	h.mu.RLock()
	handler := h.handler
	h.mu.RUnlock()
	if handler == nil {
		h.log.Debug(ctx, "inbound message dropped", "type", msg.Type, "client", clientID)
		return
	}
	handler(ctx, clientID, msg)
}

// Broadcast sends msg to every connected client and returns how many accepted it.
// Write failures are logged; the client stays registered until its read loop ends.
func (h *Hub) Broadcast(ctx context.Context, msg Message) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.order))
	for _, id := range h.order {
		targets = append(targets, h.clients[id])
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if err := c.conn.Write(ctx, msg); err != nil {
			h.log.Warn(ctx, "broadcast failed", "type", msg.Type, "client", c.id, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// Send writes msg to one client.
func (h *Hub) Send(ctx context.Context, clientID string, msg Message) error {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("client %s not connected", clientID)
	}
	return c.conn.Write(ctx, msg)
}

// Token asks the longest-connected client for its credential. It fails with
// ErrNoClients when nobody is connected and with a timeout when nobody answers.
func (h *Hub) Token(ctx context.Context) (string, error) {
	h.mu.RLock()
	var target *client
	if len(h.order) > 0 {
		target = h.clients[h.order[0]]
	}
	h.mu.RUnlock()
	if target == nil {
		return "", ErrNoClients
	}

	requestID := uuid.NewString()
	ch := make(chan string, 1)
	h.pendingMu.Lock()
	h.pending[requestID] = ch
	h.pendingMu.Unlock()
	defer func() {
		h.pendingMu.Lock()
		delete(h.pending, requestID)
		h.pendingMu.Unlock()
	}()

	if h.tokenTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.tokenTimeout)
		defer cancel()
	}

	if err := target.conn.Write(ctx, Message{Type: TypeGetAuthToken, RequestID: requestID}); err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}

	select {
	case token := <-ch:
		return token, nil
	case <-ctx.Done():
		return "", fmt.Errorf("request token: %w", ctx.Err())
	}
}

func (h *Hub) resolveToken(requestID, token string) {
	h.pendingMu.Lock()
	ch, ok := h.pending[requestID]
	if ok {
		delete(h.pending, requestID)
	}
	h.pendingMu.Unlock()
	if ok {
		ch <- token
	}
}

// NotifySyncComplete broadcasts SYNC_COMPLETE.
func (h *Hub) NotifySyncComplete(ctx context.Context, count, total int) {
	n := h.Broadcast(ctx, SyncComplete(count, total))
	h.log.Debug(ctx, "sync complete broadcast", "count", count, "total", total, "clients", n)
}

// NotifyActivated broadcasts ACTIVATED.
func (h *Hub) NotifyActivated(ctx context.Context, version string) {
	h.Broadcast(ctx, Activated(version))
}

// ServeHTTP upgrades the request to a WebSocket and pumps inbound messages until the
// connection closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.log.Warn(r.Context(), "websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	id := h.Attach(&wsConn{c: c})
	defer h.Detach(id)

	ctx := r.Context()
	h.log.Debug(ctx, "view context connected", "client", id)
	for {
		var msg Message
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				h.log.Debug(ctx, "view context read failed", "client", id, "error", err)
			}
			return
		}
		h.Deliver(ctx, id, msg)
	}
}

// Close closes every connection with a going-away status.
func (h *Hub) Close() {
	h.mu.Lock()
	targets := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()
	for _, c := range targets {
		_ = c.conn.Close()
	}
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Write(ctx context.Context, msg Message) error {
	return wsjson.Write(ctx, w.c, msg)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusGoingAway, "edge shutting down")
}
