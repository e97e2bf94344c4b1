package chat

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"mchat/models"
	"mchat/protocol"
	"mchat/store"
	"mchat/transport"
	"mchat/typing"
)

var (
	ErrNoStore   = errors.New("chat: no store")
	ErrNoChannel = errors.New("chat: no transport channel")
)

var inboundEvents = []string{
	protocol.EventMessage,
	protocol.EventTyping,
	protocol.EventMessageStatusUpdate,
	protocol.EventUserStatusChange,
}

// Client binds a conversation store to a transport channel. It owns the
// composite intents (select, send) and turns inbound events into actions.
type Client struct {
	store   *store.Store
	channel transport.Channel
	ids     *IDGenerator
	now     func() time.Time
	logger  zerolog.Logger
}

type Option func(*Client)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for timestamps and message ids.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New wires st and ch together. Both are required; a missing one is a
// programming error the caller should treat as fatal.
func New(st *store.Store, ch transport.Channel, opts ...Option) (*Client, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if ch == nil {
		return nil, ErrNoChannel
	}

	c := &Client{
		store:   st,
		channel: ch,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ids = NewIDGenerator(c.now)

	ch.On(protocol.EventMessage, c.onMessage)
	ch.On(protocol.EventTyping, c.onTyping)
	ch.On(protocol.EventMessageStatusUpdate, c.onStatusUpdate)
	ch.On(protocol.EventUserStatusChange, c.onUserStatus)
	ch.OnStateChange(func(s transport.ConnState) {
		c.logger.Info().Str("state", s.String()).Msg("Transport state changed")
	})

	return c, nil
}

func (c *Client) Store() *store.Store {
	return c.store
}

func (c *Client) Connect(ctx context.Context) error {
	return c.channel.Connect(ctx)
}

func (c *Client) Connected() bool {
	return c.channel.Connected()
}

// OnStateChange forwards connection lifecycle notifications.
func (c *Client) OnStateChange(fn func(transport.ConnState)) {
	c.channel.OnStateChange(fn)
}

// Disconnect closes the channel but keeps handlers, so Connect can be
// called again.
func (c *Client) Disconnect() error {
	return c.channel.Close()
}

// Close unregisters the inbound handlers and closes the channel.
func (c *Client) Close() error {
	for _, ev := range inboundEvents {
		c.channel.Off(ev)
	}
	return c.channel.Close()
}

// SelectConversation makes id active and marks it read in one batch.
func (c *Client) SelectConversation(id string) error {
	err := c.store.Dispatch(
		store.SetActiveConversation{ID: id},
		store.MarkConversationRead{ID: id},
	)
	if err != nil {
		c.logger.Warn().Err(err).Str("conversation_id", id).Msg("Cannot select conversation")
	}
	return err
}

// SendMessage appends a new message to the active conversation and hands it
// to the transport. With no active conversation or blank content it does
// nothing and reports false.
func (c *Client) SendMessage(content string) (models.Message, bool) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, false
	}

	snap := c.store.Snapshot()
	conv, ok := snap.ActiveConversation()
	if !ok {
		c.logger.Debug().Msg("Send ignored: no active conversation")
		return models.Message{}, false
	}
	if !conv.HasParticipant(snap.CurrentUser.ID) {
		c.logger.Warn().Str("conversation_id", conv.ID).Msg("Send ignored: not a participant")
		return models.Message{}, false
	}

	msg := models.Message{
		ID:             c.ids.Next(),
		SenderID:       snap.CurrentUser.ID,
		Content:        content,
		Timestamp:      c.now(),
		Status:         models.MessageSending,
		Type:           models.MessageText,
		ConversationID: conv.ID,
	}
	if peer, ok := conv.Peer(snap.CurrentUser.ID); ok {
		msg.ReceiverID = peer.ID
	}

	if err := c.store.Dispatch(store.AddMessage{Message: msg}); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to add message")
		return models.Message{}, false
	}

	out := protocol.OutgoingMessage{
		ID:             msg.ID,
		SenderID:       msg.SenderID,
		ReceiverID:     msg.ReceiverID,
		Content:        msg.Content,
		Type:           msg.Type,
		ConversationID: msg.ConversationID,
		Timestamp:      msg.Timestamp,
	}
	if err := c.channel.Send(protocol.EventMessage, out); err != nil {
		// No retry: the message stays in sending.
		c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Message not handed to transport")
	}
	return msg, true
}

// SendTyping emits a typing signal. It matches typing.Emitter.
func (c *Client) SendTyping(conversationID string, isTyping bool) {
	err := c.channel.Send(protocol.EventTyping, protocol.Typing{
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("conversation_id", conversationID).Msg("Typing signal dropped")
	}
}

// NewTypingSession returns a typing session that reports through this client.
func (c *Client) NewTypingSession(conversationID string, opts ...typing.Option) *typing.Session {
	opts = append([]typing.Option{typing.WithLogger(c.logger)}, opts...)
	return typing.New(conversationID, c.SendTyping, opts...)
}

func (c *Client) onMessage(env *protocol.Envelope) {
	var msg models.Message
	if err := env.Bind(&msg); err != nil {
		c.logger.Warn().Err(err).Msg("Bad message event")
		return
	}

	snap := c.store.Snapshot()
	conv, ok := snap.Conversation(msg.ConversationID)
	if !ok {
		c.logger.Warn().
			Str("message_id", msg.ID).
			Str("conversation_id", msg.ConversationID).
			Msg("Dropping message for unknown conversation")
		return
	}
	if !conv.HasParticipant(msg.SenderID) {
		c.logger.Warn().
			Str("message_id", msg.ID).
			Str("conversation_id", msg.ConversationID).
			Str("user_id", msg.SenderID).
			Msg("Dropping message from non-participant")
		return
	}
	if _, dup := snap.FindMessage(msg.ID); dup {
		c.logger.Debug().Str("message_id", msg.ID).Msg("Duplicate message ignored")
		return
	}

	if msg.Type == "" {
		msg.Type = models.MessageText
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = c.now()
	}
	// It reached us, so it is at least delivered.
	if msg.Status.Rank() < models.MessageDelivered.Rank() {
		msg.Status = models.MessageDelivered
	}

	actions := []store.Action{
		store.AddMessage{Message: msg},
		store.SetTyping{ConversationID: msg.ConversationID, UserID: msg.SenderID, IsTyping: false},
	}
	if snap.ActiveConversationID == msg.ConversationID {
		actions = append(actions, store.MarkConversationRead{ID: msg.ConversationID})
	} else if msg.SenderID != snap.CurrentUser.ID {
		actions = append(actions, store.IncrementUnread{ID: msg.ConversationID})
	}

	if err := c.store.Dispatch(actions...); err != nil {
		c.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("Inbound message partly applied")
	}
}

func (c *Client) onTyping(env *protocol.Envelope) {
	var t protocol.Typing
	if err := env.Bind(&t); err != nil {
		c.logger.Warn().Err(err).Msg("Bad typing event")
		return
	}
	if t.UserID == "" || t.ConversationID == "" {
		return
	}
	snap := c.store.Snapshot()
	if t.UserID == snap.CurrentUser.ID {
		return
	}
	// Only participants of a known conversation can be typing in it.
	if conv, ok := snap.Conversation(t.ConversationID); !ok || !conv.HasParticipant(t.UserID) {
		return
	}
	_ = c.store.Dispatch(store.SetTyping{
		ConversationID: t.ConversationID,
		UserID:         t.UserID,
		IsTyping:       t.IsTyping,
	})
}

func (c *Client) onStatusUpdate(env *protocol.Envelope) {
	var u protocol.StatusUpdate
	if err := env.Bind(&u); err != nil {
		c.logger.Warn().Err(err).Msg("Bad status update event")
		return
	}
	if !u.Status.Valid() {
		c.logger.Warn().Str("message_id", u.MessageID).Str("status", string(u.Status)).Msg("Unknown message status")
		return
	}
	_ = c.store.Dispatch(store.UpdateMessageStatus{MessageID: u.MessageID, Status: u.Status})
}

func (c *Client) onUserStatus(env *protocol.Envelope) {
	var u protocol.UserStatusChange
	if err := env.Bind(&u); err != nil {
		c.logger.Warn().Err(err).Msg("Bad user status event")
		return
	}
	if !u.Status.Valid() {
		c.logger.Warn().Str("user_id", u.UserID).Str("status", string(u.Status)).Msg("Unknown presence status")
		return
	}
	_ = c.store.Dispatch(store.SetUserStatus{UserID: u.UserID, Status: u.Status, LastSeen: u.LastSeen})
}
