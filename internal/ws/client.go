package ws

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/readtrail/internal/logging"
	"github.com/manpreetbhatti/readtrail/internal/protocol"
	"github.com/manpreetbhatti/readtrail/internal/ratelimit"
)

const (
	rateLimitWarnEvery      = 100
	rateLimitDisconnectAt   = 1000
	defaultWriteWait        = 10 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultMaxMessageSize   = 64 * 1024
	defaultSendBuffer       = 256
	defaultMessagesPerSec   = 60
	defaultMessageBurst     = 120
	handshakeTimeoutSeconds = 10
)

// Transport settings for reader connections
type Options struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	// "*" allows any origin; an empty list allows only same-host requests
	AllowedOrigins []string
}

func DefaultOptions() Options {
	return Options{
		WriteWait:         defaultWriteWait,
		PongWait:          defaultPongWait,
		MaxMessageSize:    defaultMaxMessageSize,
		SendBuffer:        defaultSendBuffer,
		MessagesPerSecond: defaultMessagesPerSec,
		MessageBurst:      defaultMessageBurst,
		AllowedOrigins:    []string{"*"},
	}
}

// Fills unset fields from DefaultOptions
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MessagesPerSecond <= 0 {
		o.MessagesPerSecond = d.MessagesPerSecond
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = d.MessageBurst
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client is one reader's WebSocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	id      string
	addr    string
	limiter *ratelimit.Limiter
	opts    Options
	logger  *slog.Logger
}

// ID is the connection id other readers see.
func (c *Client) ID() string {
	return c.id
}

// Handler upgrades requests on the socket endpoint.
type Handler struct {
	hub      *Hub
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, opts Options, logger *slog.Logger) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		hub:    hub,
		opts:   opts,
		logger: logging.OrDiscard(logger).With("component", "ws"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: handshakeTimeoutSeconds * time.Second,
		CheckOrigin:      originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, h.opts.SendBuffer),
		id:      id,
		addr:    r.RemoteAddr,
		limiter: ratelimit.NewLimiter(h.opts.MessagesPerSecond, h.opts.MessageBurst),
		opts:    h.opts,
		logger:  h.logger.With("conn", id),
	}

	if !h.hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", messageType)
			continue
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%rateLimitWarnEvery == 1 {
				c.logger.Warn("rate limit exceeded", "warnings", rateLimitWarnings)
			}
			if rateLimitWarnings > rateLimitDisconnectAt {
				c.logger.Warn("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		event, err := protocol.Decode(frame)
		if err != nil {
			c.logger.Warn("dropping invalid frame", "error", err)
			continue
		}

		if !c.hub.Submit(c, event) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
