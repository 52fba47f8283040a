package stream

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/DaveXRouz/Bental-sub004/internal/model"
)

// ErrReconnectExhausted is surfaced via OnError exactly once after the
// reconnect attempt ceiling is exceeded. The client stays down until
// Connect is called again.
var ErrReconnectExhausted = errors.New("stream: reconnect attempts exhausted")

// Config holds streaming client settings.
type Config struct {
	URL                  string
	WatchList            []string // Canonical symbols to keep
	QuoteSuffix          string   // Stripped from upstream symbols (e.g. "USDT")
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	HandshakeTimeout     time.Duration
	PingInterval         time.Duration
	ReadTimeout          time.Duration
}

// OnData receives filtered, normalized record batches. Empty batches
// are never delivered.
type OnData func(records []model.TickerRecord)

// OnError receives advisory transport errors and, once per Connect
// cycle, the terminal ErrReconnectExhausted.
type OnError func(err error)

// Client maintains one persistent streaming connection.
type Client struct {
	cfg    Config
	logger *slog.Logger
	watch  map[string]struct{}

	mu             sync.Mutex
	conn           *websocket.Conn
	connected      bool
	connecting     bool
	attempts       int
	gen            uint64 // Bumped by Connect/Disconnect to invalidate stale goroutines and timers
	reconnectTimer *time.Timer
	onData         OnData
	onError        OnError
}

// NewClient creates a streaming client. The connection is not opened
// until Connect is called.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	watch := make(map[string]struct{}, len(cfg.WatchList))
	for _, s := range cfg.WatchList {
		if sym := model.CanonicalSymbol(s); sym != "" {
			watch[sym] = struct{}{}
		}
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
		watch:  watch,
	}
}

// Connect opens the connection asynchronously and registers callbacks.
// Calling while already connected (or connecting) only replaces the
// callbacks. A client that went terminal after exhausting its reconnect
// attempts is restarted from scratch.
func (c *Client) Connect(onData OnData, onError OnError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onData = onData
	c.onError = onError

	if c.connected || c.connecting {
		return
	}

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}

	c.attempts = 0
	c.gen++
	c.connecting = true

	go c.dial(c.gen)
}

// Disconnect closes the connection and cancels any pending reconnect
// timer. No callbacks fire after Disconnect returns the client to the
// idle state. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.attempts = 0
	c.mu.Unlock()

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		conn.Close()
	}
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// dial opens the WebSocket and hands the connection to the read loop.
func (c *Client) dial(gen uint64) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.cfg.URL, nil)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.connecting = false

	if err != nil {
		onError := c.onError
		c.mu.Unlock()

		c.logger.Warn("stream dial failed", "url", c.cfg.URL, "error", err)
		if onError != nil {
			onError(err)
		}
		c.scheduleReconnect(gen, err)
		return
	}

	c.conn = conn
	c.connected = true
	c.attempts = 0 // Successful open resets the reconnect counter
	c.mu.Unlock()

	c.logger.Info("stream connected", "url", c.cfg.URL)

	go c.readLoop(gen, conn)
}

// readLoop reads frames until the connection drops, then enters the
// reconnect path. Parse errors are per-message and keep the connection
// open.
func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(conn, done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := gen != c.gen
			onError := c.onError
			c.mu.Unlock()

			if stale {
				// Disconnect already tore this connection down.
				return
			}

			c.logger.Warn("stream read failed", "error", err)
			if onError != nil {
				onError(err)
			}
			conn.Close()
			c.scheduleReconnect(gen, err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.handleMessage(gen, data)
	}
}

// pingLoop keeps the connection alive until the read loop exits.
func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}
		}
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or
// goes terminal once the ceiling is exceeded. Attempt n waits
// ReconnectBaseDelay × n.
func (c *Client) scheduleReconnect(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	c.connected = false
	c.conn = nil
	c.attempts++
	attempt := c.attempts
	onError := c.onError

	if attempt > c.cfg.MaxReconnectAttempts {
		c.mu.Unlock()

		c.logger.Error("stream reconnect exhausted",
			"attempts", c.cfg.MaxReconnectAttempts,
			"cause", cause,
		)
		if onError != nil {
			onError(ErrReconnectExhausted)
		}
		return
	}

	delay := c.cfg.ReconnectBaseDelay * time.Duration(attempt)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.connecting = true
		c.mu.Unlock()

		c.dial(gen)
	})
	c.mu.Unlock()

	c.logger.Warn("stream reconnecting",
		"attempt", attempt,
		"max", c.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
}
