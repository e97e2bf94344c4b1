package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mchat/models"
	"mchat/protocol"
)

type statusLog struct {
	mu      sync.Mutex
	updates []protocol.StatusUpdate
}

func (s *statusLog) handler(env *protocol.Envelope) {
	var u protocol.StatusUpdate
	if err := env.Bind(&u); err != nil {
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, u)
	s.mu.Unlock()
}

func (s *statusLog) get() []protocol.StatusUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.StatusUpdate(nil), s.updates...)
}

func TestLoopbackAcknowledgesInOrder(t *testing.T) {
	lb := NewLoopback(LoopbackConfig{SentDelay: 5 * time.Millisecond, DeliveredDelay: 10 * time.Millisecond}, zerolog.Nop())
	log := &statusLog{}
	lb.On(protocol.EventMessageStatusUpdate, log.handler)

	require.ErrorIs(t, lb.Send(protocol.EventMessage, protocol.OutgoingMessage{ID: "1"}), ErrNotConnected)

	require.NoError(t, lb.Connect(context.Background()))
	defer lb.Close()
	require.True(t, lb.Connected())

	require.NoError(t, lb.Send(protocol.EventMessage, protocol.OutgoingMessage{ID: "42", Content: "hi", ConversationID: "conv-1"}))

	require.Eventually(t, func() bool { return len(log.get()) == 2 }, time.Second, 2*time.Millisecond)
	require.Equal(t, []protocol.StatusUpdate{
		{MessageID: "42", Status: models.MessageSent},
		{MessageID: "42", Status: models.MessageDelivered},
	}, log.get())

	out := lb.Outbound()
	require.Len(t, out, 1)
	require.Equal(t, protocol.EventMessage, out[0].Event)
}

func TestLoopbackTypingIsRecordedOnly(t *testing.T) {
	lb := NewLoopback(LoopbackConfig{}, zerolog.Nop())
	log := &statusLog{}
	lb.On(protocol.EventMessageStatusUpdate, log.handler)
	require.NoError(t, lb.Connect(context.Background()))

	require.NoError(t, lb.Send(protocol.EventTyping, protocol.Typing{ConversationID: "conv-1", IsTyping: true}))
	require.NoError(t, lb.Close())

	require.Empty(t, log.get())
	require.Len(t, lb.Outbound(), 1)
}

func TestLoopbackInjectAndOff(t *testing.T) {
	lb := NewLoopback(LoopbackConfig{}, zerolog.Nop())
	received := make(chan protocol.Typing, 4)
	lb.On(protocol.EventTyping, func(env *protocol.Envelope) {
		var ty protocol.Typing
		if env.Bind(&ty) == nil {
			received <- ty
		}
	})

	var states []ConnState
	var mu sync.Mutex
	lb.OnStateChange(func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, lb.Connect(context.Background()))
	require.NoError(t, lb.Inject(protocol.EventTyping, protocol.Typing{ConversationID: "conv-1", UserID: "user-1", IsTyping: true}))

	select {
	case ty := <-received:
		require.Equal(t, "user-1", ty.UserID)
	case <-time.After(time.Second):
		t.Fatal("typing event not delivered")
	}

	lb.Off(protocol.EventTyping)
	require.NoError(t, lb.Inject(protocol.EventTyping, protocol.Typing{ConversationID: "conv-1", UserID: "user-2", IsTyping: true}))
	require.NoError(t, lb.Close())
	require.Empty(t, received)

	mu.Lock()
	require.Equal(t, []ConnState{StateConnected, StateDisconnected}, states)
	mu.Unlock()

	require.ErrorIs(t, lb.Inject(protocol.EventTyping, protocol.Typing{}), ErrNotConnected)
}

func TestConnStateString(t *testing.T) {
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "disconnected", StateDisconnected.String())
}
