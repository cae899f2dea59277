package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/samintell/songquiz/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 64
)

// Message is the JSON envelope delivered to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Command is an inbound control frame sent by a client.
type Command struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams,omitempty"`
	Channel string   `json:"channel,omitempty"`
	Text    string   `json:"text,omitempty"`
}

// CommandHandler answers client commands the hub does not handle itself, such as
// guesses. A non-nil reply is sent back to the issuing connection only.
type CommandHandler func(participant string, cmd Command, receivedAt time.Time) *Message

// Hub fans quiz events out to WebSocket subscribers, keyed by stream and participant.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	commands      CommandHandler
	timeNow       func() time.Time
	log           *zap.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithCommandHandler routes unrecognised client actions to fn.
func WithCommandHandler(fn CommandHandler) HubOption {
	return func(h *Hub) {
		h.commands = fn
	}
}

// NewHub constructs a realtime hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subscriptions: make(map[string]map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
		timeNow: time.Now,
		log:     logger.WithModule("realtime"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetCommandHandler installs fn after construction, for wiring cycles between the hub
// and the service that consumes its commands.
func (h *Hub) SetCommandHandler(fn CommandHandler) {
	h.mu.Lock()
	h.commands = fn
	h.mu.Unlock()
}

// Serve upgrades the request and subscribes the participant to streams.
func (h *Hub) Serve(participant string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newConnection(h, conn, participant)
	h.subscribe(client, streams)

	go client.writeLoop()
	client.readLoop()
}

// BroadcastStream delivers a message to every subscriber of stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = NormalizeStream(stream)
	if stream == "" {
		return
	}

	var dropped []*connection
	h.mu.RLock()
	message.Stream = stream
	for _, clients := range h.subscriptions[stream] {
		for client := range clients {
			if !client.offer(message) {
				dropped = append(dropped, client)
			}
		}
	}
	h.mu.RUnlock()

	h.closeSlow(dropped)
}

// Subscribers counts the connections listening on stream.
func (h *Hub) Subscribers(stream string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.subscriptions[NormalizeStream(stream)] {
		n += len(clients)
	}
	return n
}

func (h *Hub) closeSlow(clients []*connection) {
	for _, client := range clients {
		h.log.Warn("dropping slow subscriber", zap.String("participant", client.participant))
		client.close()
	}
}

func (h *Hub) subscribe(client *connection, streams []string) {
	if len(streams) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if _, ok := ChannelFromStream(stream); !ok {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("participant", client.participant))
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}
		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[string]map[*connection]struct{})
		}
		if h.subscriptions[stream][client.participant] == nil {
			h.subscriptions[stream][client.participant] = make(map[*connection]struct{})
		}
		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client.participant][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeLocked(client, stream)
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeLocked(client, stream)
	}
}

func (h *Hub) removeLocked(client *connection, stream string) {
	delete(client.streams, stream)

	byParticipant, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	clients := byParticipant[client.participant]
	delete(clients, client)
	if len(clients) == 0 {
		delete(byParticipant, client.participant)
	}
	if len(byParticipant) == 0 {
		delete(h.subscriptions, stream)
	}
}

func (h *Hub) handle(client *connection, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.log.Debug("invalid command payload", zap.String("participant", client.participant), zap.Error(err))
		return
	}

	switch strings.ToLower(strings.TrimSpace(cmd.Action)) {
	case "subscribe":
		h.subscribe(client, cmd.Streams)
	case "unsubscribe":
		h.unsubscribe(client, cmd.Streams)
	case "ping":
		client.offer(Message{Event: "pong"})
	default:
		h.mu.RLock()
		fn := h.commands
		h.mu.RUnlock()
		if fn == nil {
			h.log.Debug("unsupported command", zap.String("action", cmd.Action))
			return
		}
		if reply := fn(client.participant, cmd, h.timeNow()); reply != nil {
			client.offer(*reply)
		}
	}
}

type connection struct {
	hub         *Hub
	socket      *websocket.Conn
	participant string
	streams     map[string]struct{}
	send        chan Message

	mu     sync.Mutex
	closed bool
}

func newConnection(hub *Hub, conn *websocket.Conn, participant string) *connection {
	return &connection{
		hub:         hub,
		socket:      conn,
		participant: participant,
		streams:     make(map[string]struct{}),
		send:        make(chan Message, defaultBufferSize),
	}
}

// offer queues message without blocking. It reports false when the buffer is full.
func (c *connection) offer(message Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("participant", c.participant), zap.Error(err))
			}
			return
		}
		if len(payload) > 0 {
			c.hub.handle(c, payload)
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.hub.unregister(c)
	_ = c.socket.Close()
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
