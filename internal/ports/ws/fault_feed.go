package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fibermap/internal/logging"
	"fibermap/internal/ports"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// FaultFeed транслює події обривів підключеним клієнтам (диспетчерська карта, планшети бригад)
type FaultFeed struct {
	upgrader websocket.Upgrader
	log      logging.Logger

	clientsMu sync.Mutex
	clients   map[uuid.UUID]*client
}

// client - одне з'єднання; gorilla дозволяє лише одного писача, тому запис під writeMu
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	filterMu sync.Mutex
	liaison  *uuid.UUID
}

var _ ports.NotificationSink = (*FaultFeed)(nil)

// NewFaultFeed створює новий FaultFeed. allowedOrigins з "*" пропускає будь-яке походження.
func NewFaultFeed(allowedOrigins []string, log logging.Logger) *FaultFeed {
	if log == nil {
		log = logging.Noop()
	}
	f := &FaultFeed{
		log:     log.With(logging.String("component", "fault_feed")),
		clients: make(map[uuid.UUID]*client),
	}
	f.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return f
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Scheme+"://"+u.Host]
	}
}

func (f *FaultFeed) Name() string { return "websocket" }

// HandleConnection оброблює WebSocket з'єднання; ?liaison_id= обмежує потік однією лінією
func (f *FaultFeed) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var liaison *uuid.UUID
	if raw := r.URL.Query().Get("liaison_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid liaison_id", http.StatusBadRequest)
			return
		}
		liaison = &id
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warn(r.Context(), "websocket upgrade failed", logging.Err(err))
		return
	}

	id := uuid.New()
	c := &client{conn: conn, liaison: liaison}

	f.clientsMu.Lock()
	f.clients[id] = c
	total := len(f.clients)
	f.clientsMu.Unlock()

	f.log.Info(r.Context(), "fault feed client connected",
		logging.String("client_id", id.String()), logging.Int("clients", total))

	go f.pingLoop(id, c)
	go f.readLoop(id, c)
}

// Deliver надсилає подію всім клієнтам, чий фільтр її пропускає.
// Клієнт, якому не вдалося написати, відключається.
func (f *FaultFeed) Deliver(ctx context.Context, event ports.FaultEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fault event: %w", err)
	}

	f.clientsMu.Lock()
	targets := make(map[uuid.UUID]*client, len(f.clients))
	for id, c := range f.clients {
		if c.accepts(event.Fault.LiaisonID) {
			targets[id] = c
		}
	}
	f.clientsMu.Unlock()

	for id, c := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.write(websocket.TextMessage, data); err != nil {
			f.log.Warn(ctx, "dropping fault feed client",
				logging.String("client_id", id.String()), logging.Err(err))
			f.remove(id)
		}
	}
	return nil
}

// Clients повертає кількість підключених клієнтів
func (f *FaultFeed) Clients() int {
	f.clientsMu.Lock()
	defer f.clientsMu.Unlock()
	return len(f.clients)
}

// Close закриває всі з'єднання
func (f *FaultFeed) Close() {
	f.clientsMu.Lock()
	ids := make([]uuid.UUID, 0, len(f.clients))
	for id := range f.clients {
		ids = append(ids, id)
	}
	f.clientsMu.Unlock()

	for _, id := range ids {
		f.remove(id)
	}
}

func (f *FaultFeed) remove(id uuid.UUID) {
	f.clientsMu.Lock()
	c, ok := f.clients[id]
	delete(f.clients, id)
	f.clientsMu.Unlock()
	if ok {
		_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
		c.conn.Close()
	}
}

// feedMessage - повідомлення від клієнта
type feedMessage struct {
	Type      string `json:"type"`
	LiaisonID string `json:"liaison_id,omitempty"`
}

func (f *FaultFeed) readLoop(id uuid.UUID, c *client) {
	defer f.remove(id)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.log.Warn(context.Background(), "fault feed read failed",
					logging.String("client_id", id.String()), logging.Err(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		f.handleTextMessage(id, c, p)
	}
}

func (f *FaultFeed) handleTextMessage(id uuid.UUID, c *client, data []byte) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		f.reply(id, c, map[string]interface{}{"type": "error", "error": "invalid JSON"})
		return
	}

	switch msg.Type {
	case "heartbeat":
		f.reply(id, c, map[string]interface{}{"type": "heartbeat_ack", "time": time.Now().Unix()})

	case "subscribe":
		var liaison *uuid.UUID
		if msg.LiaisonID != "" {
			parsed, err := uuid.Parse(msg.LiaisonID)
			if err != nil {
				f.reply(id, c, map[string]interface{}{"type": "error", "error": "invalid liaison_id"})
				return
			}
			liaison = &parsed
		}
		c.filterMu.Lock()
		c.liaison = liaison
		c.filterMu.Unlock()
		f.reply(id, c, map[string]interface{}{"type": "subscribed", "liaison_id": msg.LiaisonID})

	default:
		f.reply(id, c, map[string]interface{}{"type": "error", "error": "unknown message type " + msg.Type})
	}
}

func (f *FaultFeed) reply(id uuid.UUID, c *client, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		f.log.Debug(context.Background(), "fault feed reply failed",
			logging.String("client_id", id.String()), logging.Err(err))
	}
}

func (f *FaultFeed) pingLoop(id uuid.UUID, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		f.clientsMu.Lock()
		_, alive := f.clients[id]
		f.clientsMu.Unlock()
		if !alive {
			return
		}
		if err := c.write(websocket.PingMessage, nil); err != nil {
			f.remove(id)
			return
		}
	}
}

func (c *client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) accepts(liaisonID uuid.UUID) bool {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	return c.liaison == nil || *c.liaison == liaisonID
}
