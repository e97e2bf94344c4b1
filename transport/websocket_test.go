package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mchat/models"
	"mchat/protocol"
)

// ackServer answers every message event with a sent status update and
// records the events it saw.
type ackServer struct {
	mu     sync.Mutex
	events []string
	conns  []*websocket.Conn
}

func (a *ackServer) handler(t *testing.T) http.HandlerFunc {
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		a.mu.Lock()
		a.conns = append(a.conns, conn)
		a.mu.Unlock()
		defer conn.Close()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(raw)
			if err != nil {
				continue
			}
			a.mu.Lock()
			a.events = append(a.events, env.Event)
			a.mu.Unlock()

			if env.Event != protocol.EventMessage {
				continue
			}
			var msg protocol.OutgoingMessage
			if err := env.Bind(&msg); err != nil {
				continue
			}
			reply, _ := protocol.Encode(protocol.EventMessageStatusUpdate, protocol.StatusUpdate{MessageID: msg.ID, Status: models.MessageSent})
			if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
				return
			}
		}
	}
}

func (a *ackServer) seen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

func (a *ackServer) dropAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range a.conns {
		c.Close()
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketRoundTrip(t *testing.T) {
	as := &ackServer{}
	srv := httptest.NewServer(as.handler(t))
	defer srv.Close()

	ws := NewWebSocket(WebSocketConfig{URL: wsURL(srv)}, zerolog.Nop())
	require.ErrorIs(t, ws.Send(protocol.EventTyping, protocol.Typing{}), ErrNotConnected)

	log := &statusLog{}
	ws.On(protocol.EventMessageStatusUpdate, log.handler)

	states := make(chan ConnState, 8)
	ws.OnStateChange(func(s ConnState) { states <- s })

	require.NoError(t, ws.Connect(context.Background()))
	require.True(t, ws.Connected())
	require.Equal(t, StateConnecting, <-states)
	require.Equal(t, StateConnected, <-states)

	require.NoError(t, ws.Send(protocol.EventTyping, protocol.Typing{ConversationID: "conv-1", IsTyping: true}))
	require.NoError(t, ws.Send(protocol.EventMessage, protocol.OutgoingMessage{ID: "7", Content: "hi", ConversationID: "conv-1"}))

	require.Eventually(t, func() bool { return len(log.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, protocol.StatusUpdate{MessageID: "7", Status: models.MessageSent}, log.get()[0])
	require.Equal(t, []string{protocol.EventTyping, protocol.EventMessage}, as.seen())

	require.NoError(t, ws.Close())
	require.False(t, ws.Connected())
	require.Equal(t, StateDisconnected, <-states)
	require.NoError(t, ws.Close())
}

func TestWebSocketServerDrop(t *testing.T) {
	as := &ackServer{}
	srv := httptest.NewServer(as.handler(t))
	defer srv.Close()

	ws := NewWebSocket(WebSocketConfig{URL: wsURL(srv)}, zerolog.Nop())
	disconnected := make(chan struct{}, 1)
	ws.OnStateChange(func(s ConnState) {
		if s == StateDisconnected {
			disconnected <- struct{}{}
		}
	})

	require.NoError(t, ws.Connect(context.Background()))
	require.Eventually(t, func() bool {
		as.mu.Lock()
		defer as.mu.Unlock()
		return len(as.conns) == 1
	}, time.Second, 5*time.Millisecond)

	as.dropAll()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not noticed")
	}
	require.False(t, ws.Connected())
	require.ErrorIs(t, ws.Send(protocol.EventTyping, protocol.Typing{}), ErrNotConnected)
}

func TestWebSocketDialFailure(t *testing.T) {
	ws := NewWebSocket(WebSocketConfig{URL: "ws://127.0.0.1:1/ws", DialTimeout: 500 * time.Millisecond}, zerolog.Nop())
	require.Error(t, ws.Connect(context.Background()))
	require.False(t, ws.Connected())
}
