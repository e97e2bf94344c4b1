package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"mchat/protocol"
)

type WebSocketConfig struct {
	URL            string
	Header         http.Header
	DialTimeout    time.Duration
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendQueue      int
}

func (c *WebSocketConfig) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// WebSocket is a Channel over a gorilla/websocket connection carrying
// protocol envelopes as text frames. Inbound events are dispatched from the
// single read goroutine, so handlers observe them in order.
type WebSocket struct {
	registry
	cfg    WebSocketConfig
	logger zerolog.Logger

	mu   sync.Mutex
	sess *wsSession
}

// wsSession is one live connection; a new one is made per Connect.
type wsSession struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func NewWebSocket(cfg WebSocketConfig, logger zerolog.Logger) *WebSocket {
	cfg.setDefaults()
	return &WebSocket{
		cfg:    cfg,
		logger: logger.With().Str("transport", "websocket").Str("url", cfg.URL).Logger(),
	}
}

func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.sess != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	w.notifyState(StateConnecting)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: w.cfg.DialTimeout,
	}
	dialCtx, cancel := context.WithTimeout(ctx, w.cfg.DialTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, w.cfg.URL, w.cfg.Header)
	if err != nil {
		w.notifyState(StateDisconnected)
		return errors.Wrapf(err, "dial %s", w.cfg.URL)
	}

	sess := &wsSession{
		conn: conn,
		send: make(chan []byte, w.cfg.SendQueue),
		done: make(chan struct{}),
	}

	w.mu.Lock()
	w.sess = sess
	w.mu.Unlock()

	go w.writePump(sess)
	go w.readLoop(sess)

	w.logger.Info().Msg("Connected")
	w.notifyState(StateConnected)
	return nil
}

func (w *WebSocket) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sess != nil
}

// Send queues an event for the write pump. It never blocks.
func (w *WebSocket) Send(event string, payload interface{}) error {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}

	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}

	select {
	case <-sess.done:
		return ErrNotConnected
	case sess.send <- data:
		return nil
	default:
		return errors.Wrap(ErrQueueFull, event)
	}
}

// Close sends a close frame and releases the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	sess := w.sess
	w.mu.Unlock()
	if sess == nil {
		return nil
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = sess.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(w.cfg.WriteWait))
	w.teardown(sess, nil)
	return nil
}

func (w *WebSocket) readLoop(sess *wsSession) {
	conn := sess.conn
	conn.SetReadLimit(w.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(w.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(w.cfg.PongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			w.teardown(sess, err)
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			w.logger.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		if n := w.dispatch(env); n == 0 {
			w.logger.Debug().Str("event", env.Event).Msg("No handler for event")
		}
	}
}

func (w *WebSocket) writePump(sess *wsSession) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case data := <-sess.send:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.teardown(sess, err)
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(w.cfg.WriteWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.teardown(sess, err)
				return
			}
		}
	}
}

// teardown runs once per session no matter which side noticed the failure.
func (w *WebSocket) teardown(sess *wsSession, cause error) {
	sess.once.Do(func() {
		close(sess.done)
		sess.conn.Close()

		w.mu.Lock()
		if w.sess == sess {
			w.sess = nil
		}
		w.mu.Unlock()

		if cause == nil || websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			w.logger.Info().Msg("Disconnected")
		} else {
			w.logger.Warn().Err(cause).Msg("Connection lost")
		}
		w.notifyState(StateDisconnected)
	})
}
