package relay

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mchat/chat"
	"mchat/models"
	"mchat/protocol"
	"mchat/store"
	"mchat/transport"
)

func setupTestRelay(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(Config{}, zerolog.Nop())
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		hs.Close()
	})
	return srv, hs
}

func wsURL(hs *httptest.Server, user string) string {
	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?user=" + user
}

func dial(t *testing.T, hs *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(hs, user), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	raw, err := protocol.Encode(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func expectUserStatus(t *testing.T, conn *websocket.Conn, userID string, status models.UserStatus) protocol.UserStatusChange {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.EventUserStatusChange, env.Event)
	var u protocol.UserStatusChange
	require.NoError(t, env.Bind(&u))
	require.Equal(t, userID, u.UserID)
	require.Equal(t, status, u.Status)
	return u
}

func TestRelayMessageFlow(t *testing.T) {
	srv, hs := setupTestRelay(t)

	alice := dial(t, hs, "user-1")
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)
	me := dial(t, hs, "current-user")

	// The newcomer learns who is online; the others learn about the newcomer.
	expectUserStatus(t, me, "user-1", models.StatusOnline)
	expectUserStatus(t, alice, "current-user", models.StatusOnline)

	sendEnvelope(t, me, protocol.EventMessage, protocol.OutgoingMessage{
		ID:             "1700000000000",
		SenderID:       "spoofed",
		Content:        "hi Alice",
		ConversationID: "conv-1",
	})

	var acks []protocol.StatusUpdate
	for i := 0; i < 2; i++ {
		env := readEnvelope(t, me)
		require.Equal(t, protocol.EventMessageStatusUpdate, env.Event)
		var u protocol.StatusUpdate
		require.NoError(t, env.Bind(&u))
		acks = append(acks, u)
	}
	require.Equal(t, []protocol.StatusUpdate{
		{MessageID: "1700000000000", Status: models.MessageSent},
		{MessageID: "1700000000000", Status: models.MessageDelivered},
	}, acks)

	env := readEnvelope(t, alice)
	require.Equal(t, protocol.EventMessage, env.Event)
	var got models.Message
	require.NoError(t, env.Bind(&got))
	require.Equal(t, "current-user", got.SenderID)
	require.Equal(t, "hi Alice", got.Content)
	require.Equal(t, models.MessageDelivered, got.Status)
	require.Equal(t, models.MessageText, got.Type)
	require.False(t, got.Timestamp.IsZero())

	sendEnvelope(t, alice, protocol.EventTyping, protocol.Typing{ConversationID: "conv-1", UserID: "someone-else", IsTyping: true})
	env = readEnvelope(t, me)
	require.Equal(t, protocol.EventTyping, env.Event)
	var ty protocol.Typing
	require.NoError(t, env.Bind(&ty))
	require.Equal(t, protocol.Typing{ConversationID: "conv-1", UserID: "user-1", IsTyping: true}, ty)

	require.Equal(t, Stats{Connections: 2, Users: []string{"current-user", "user-1"}}, srv.Stats())

	require.NoError(t, alice.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	u := expectUserStatus(t, me, "user-1", models.StatusOffline)
	require.NotNil(t, u.LastSeen)
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)
}

func TestRelaySentOnlyWithoutPeers(t *testing.T) {
	_, hs := setupTestRelay(t)
	me := dial(t, hs, "current-user")

	sendEnvelope(t, me, protocol.EventMessage, protocol.OutgoingMessage{ID: "9", Content: "anyone?", ConversationID: "conv-2"})
	env := readEnvelope(t, me)
	var u protocol.StatusUpdate
	require.NoError(t, env.Bind(&u))
	require.Equal(t, models.MessageSent, u.Status)

	// Nothing else follows.
	require.NoError(t, me.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := me.ReadMessage()
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout())
}

func TestRelayRejectsMissingUser(t *testing.T) {
	_, hs := setupTestRelay(t)

	resp, err := http.Get(hs.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRelayDuplicateUserReplacesSession(t *testing.T) {
	srv, hs := setupTestRelay(t)

	alice := dial(t, hs, "user-1")
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)

	first := dial(t, hs, "user-2")
	expectUserStatus(t, first, "user-1", models.StatusOnline)
	expectUserStatus(t, alice, "user-2", models.StatusOnline)

	second := dial(t, hs, "user-2")

	// The replacing session gets the roster like any newcomer.
	expectUserStatus(t, second, "user-1", models.StatusOnline)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	require.Equal(t, Stats{Connections: 2, Users: []string{"user-1", "user-2"}}, srv.Stats())

	// The surviving session still works, and alice saw no offline/online
	// flap for user-2: the next thing she gets is the forwarded message.
	sendEnvelope(t, second, protocol.EventMessage, protocol.OutgoingMessage{ID: "5", Content: "still here", ConversationID: "conv-2"})
	env := readEnvelope(t, second)
	require.Equal(t, protocol.EventMessageStatusUpdate, env.Event)

	env = readEnvelope(t, alice)
	require.Equal(t, protocol.EventMessage, env.Event)
	var got models.Message
	require.NoError(t, env.Bind(&got))
	require.Equal(t, "still here", got.Content)
	require.Equal(t, "user-2", got.SenderID)
}

func TestRelayStatsEndpoint(t *testing.T) {
	srv, hs := setupTestRelay(t)
	dial(t, hs, "user-3")
	require.Eventually(t, func() bool { return srv.Stats().Connections == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(hs.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var stats Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, Stats{Connections: 1, Users: []string{"user-3"}}, stats)
}

func TestRelayServeStopsOnCancel(t *testing.T) {
	srv := New(Config{}, zerolog.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/stats")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func newChatClient(t *testing.T, hs *httptest.Server, userID string) *chat.Client {
	t.Helper()
	fx, err := store.DefaultFixture()
	require.NoError(t, err)
	state, err := fx.State(userID, time.Now())
	require.NoError(t, err)

	ch := transport.NewWebSocket(transport.WebSocketConfig{URL: wsURL(hs, userID)}, zerolog.Nop())
	c, err := chat.New(store.New(state), ch)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRelayBetweenChatClients(t *testing.T) {
	srv, hs := setupTestRelay(t)

	alice := newChatClient(t, hs, "user-1")
	me := newChatClient(t, hs, "current-user")
	require.Eventually(t, func() bool { return srv.Stats().Connections == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, me.SelectConversation("conv-1"))
	msg, ok := me.SendMessage("hello over the wire")
	require.True(t, ok)

	require.Eventually(t, func() bool {
		m, ok := me.Store().Snapshot().FindMessage(msg.ID)
		return ok && m.Status == models.MessageDelivered
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := alice.Store().Snapshot().FindMessage(msg.ID)
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	snap := alice.Store().Snapshot()
	conv, _ := snap.Conversation("conv-1")
	require.Equal(t, 3, conv.UnreadCount)
	require.Equal(t, msg.ID, conv.LastMessage.ID)
	got, _ := snap.FindMessage(msg.ID)
	require.Equal(t, "current-user", got.SenderID)

	sess := alice.NewTypingSession("conv-1")
	sess.Input("typing...")
	require.Eventually(t, func() bool {
		return len(me.Store().Snapshot().TypingUsers("conv-1")) == 1
	}, 2*time.Second, 5*time.Millisecond)
	sess.Stop()
	require.Eventually(t, func() bool {
		return len(me.Store().Snapshot().TypingUsers("conv-1")) == 0
	}, 2*time.Second, 5*time.Millisecond)
}
