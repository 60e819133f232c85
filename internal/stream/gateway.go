package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"papertrader/internal/notify"
)

// GatewayConfig holds configuration for the websocket gateway.
type GatewayConfig struct {
	// SendBufferSize is the size of each client's outbound buffer.
	SendBufferSize int
	// WriteTimeout is the maximum time to wait on one frame write.
	WriteTimeout time.Duration
	// PingInterval is the keepalive cadence; must be shorter than
	// PongTimeout.
	PingInterval time.Duration
	// PongTimeout is how long a client may go silent before it is
	// dropped.
	PongTimeout time.Duration
}

// DefaultGatewayConfig returns the default gateway configuration.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		SendBufferSize: 64,
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
	}
}

// clientMessage is the inbound wire format. Action is one of
// "subscribe", "unsubscribe", "subscribe-portfolio",
// "unsubscribe-portfolio".
type clientMessage struct {
	Action      string   `json:"action"`
	Symbols     []string `json:"symbols,omitempty"`
	PortfolioID int64    `json:"portfolioId,omitempty"`
}

// serverMessage is the outbound wire format.
type serverMessage struct {
	Topic string      `json:"topic"`
	Event interface{} `json:"event"`
}

// Gateway bridges the in-process event bus to websocket clients. Each
// client manages its own subscriptions through the shared registry, so
// the execution engine polls exactly the symbols somebody is watching.
type Gateway struct {
	config   GatewayConfig
	registry *Registry
	bus      *notify.Bus
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	unsubscribe func()
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan serverMessage
	once sync.Once
}

// NewGateway creates a Gateway wired to the registry and bus.
func NewGateway(config GatewayConfig, registry *Registry, bus *notify.Bus, logger zerolog.Logger) *Gateway {
	defaults := DefaultGatewayConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaults.SendBufferSize
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = defaults.PongTimeout
	}
	g := &Gateway{
		config:   config,
		registry: registry,
		bus:      bus,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	g.unsubscribe = bus.Subscribe(g.relay)
	return g
}

// Close detaches the gateway from the bus and drops every client.
func (g *Gateway) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}

	g.mu.Lock()
	clients := make([]*client, 0, len(g.clients))
	for _, c := range g.clients {
		clients = append(clients, c)
	}
	g.mu.Unlock()

	for _, c := range clients {
		g.drop(c)
	}
}

// ServeHTTP upgrades the request and runs the client until it
// disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &client{
		id:   ulid.Make().String(),
		conn: conn,
		send: make(chan serverMessage, g.config.SendBufferSize),
	}

	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	g.logger.Info().Str("client_id", c.id).Str("remote", r.RemoteAddr).Msg("Websocket client connected")

	go g.writePump(c)
	g.readPump(c)
}

// relay receives every bus event and forwards it to the clients whose
// subscriptions cover the topic. Sends are non-blocking: a client that
// cannot keep up loses events rather than stalling the publisher.
func (g *Gateway) relay(topic string, event interface{}) {
	var observerIDs []string
	switch {
	case strings.HasPrefix(topic, "price-"):
		observerIDs = g.registry.SymbolObservers(strings.TrimPrefix(topic, "price-"))
	case strings.HasPrefix(topic, "portfolio-"):
		id, err := strconv.ParseInt(strings.TrimPrefix(topic, "portfolio-"), 10, 64)
		if err != nil {
			return
		}
		observerIDs = g.registry.PortfolioObservers(id)
	default:
		return
	}

	if len(observerIDs) == 0 {
		return
	}

	msg := serverMessage{Topic: topic, Event: event}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range observerIDs {
		c, ok := g.clients[id]
		if !ok {
			continue
		}
		select {
		case c.send <- msg:
		default:
			g.logger.Debug().Str("client_id", id).Str("topic", topic).Msg("Client buffer full, dropping event")
		}
	}
}

func (g *Gateway) readPump(c *client) {
	defer g.drop(c)

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(g.config.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn().Err(err).Str("client_id", c.id).Msg("Websocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			g.logger.Debug().Err(err).Str("client_id", c.id).Msg("Malformed client message")
			continue
		}
		g.handleMessage(c, msg)
	}
}

func (g *Gateway) handleMessage(c *client, msg clientMessage) {
	switch msg.Action {
	case "subscribe":
		for _, symbol := range msg.Symbols {
			symbol = strings.ToUpper(strings.TrimSpace(symbol))
			if symbol == "" {
				continue
			}
			g.registry.SubscribeSymbol(c.id, symbol)
		}
	case "unsubscribe":
		for _, symbol := range msg.Symbols {
			g.registry.UnsubscribeSymbol(c.id, strings.ToUpper(strings.TrimSpace(symbol)))
		}
	case "subscribe-portfolio":
		if msg.PortfolioID > 0 {
			g.registry.SubscribePortfolio(c.id, msg.PortfolioID)
		}
	case "unsubscribe-portfolio":
		if msg.PortfolioID > 0 {
			g.registry.UnsubscribePortfolio(c.id, msg.PortfolioID)
		}
	default:
		g.logger.Debug().Str("client_id", c.id).Str("action", msg.Action).Msg("Unknown client action")
	}
}

func (g *Gateway) writePump(c *client) {
	ticker := time.NewTicker(g.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(g.config.WriteTimeout))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				g.logger.Debug().Err(err).Str("client_id", c.id).Msg("Websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(g.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop disconnects a client and clears its subscriptions.
func (g *Gateway) drop(c *client) {
	c.once.Do(func() {
		// Closing the send channel under the write lock keeps relay,
		// which sends under the read lock, from racing the close.
		g.mu.Lock()
		delete(g.clients, c.id)
		close(c.send)
		g.mu.Unlock()

		g.registry.RemoveObserver(c.id)
		_ = c.conn.Close()

		g.logger.Info().Str("client_id", c.id).Msg("Websocket client disconnected")
	})
}

// ClientCount returns the number of connected clients.
func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

var _ http.Handler = (*Gateway)(nil)

// Publish is a convenience for pushing an event onto the gateway's bus
// from outside the engine, e.g. from CLI-driven market fills.
func (g *Gateway) Publish(ctx context.Context, topic string, event interface{}) error {
	return g.bus.Publish(ctx, topic, event)
}
