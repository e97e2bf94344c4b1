package protocol

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"mchat/models"
)

// Event names shared by clients and the relay.
const (
	EventMessage             = "message"
	EventTyping              = "typing"
	EventMessageStatusUpdate = "messageStatusUpdate"
	EventUserStatusChange    = "userStatusChange"
)

var (
	ErrInvalidEnvelope = errors.New("invalid envelope")
)

// Envelope is the unit sent over every transport: {"event": ..., "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutgoingMessage is what a client emits for a locally created message.
type OutgoingMessage struct {
	ID             string             `json:"id"`
	SenderID       string             `json:"senderId"`
	ReceiverID     string             `json:"receiverId,omitempty"`
	Content        string             `json:"content"`
	Type           models.MessageType `json:"type"`
	ConversationID string             `json:"conversationId"`
	Timestamp      time.Time          `json:"timestamp"`
}

// ToMessage turns a relayed outgoing message into the Message a peer stores.
func (m OutgoingMessage) ToMessage(status models.MessageStatus) models.Message {
	return models.Message{
		ID:             m.ID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Content:        m.Content,
		Timestamp:      m.Timestamp,
		Status:         status,
		Type:           m.Type,
		ConversationID: m.ConversationID,
	}
}

// Typing is sent outbound without UserID; the relay stamps it.
type Typing struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

type StatusUpdate struct {
	MessageID string               `json:"messageId"`
	Status    models.MessageStatus `json:"status"`
}

type UserStatusChange struct {
	UserID   string            `json:"userId"`
	Status   models.UserStatus `json:"status"`
	LastSeen *time.Time        `json:"lastSeen,omitempty"`
}

// Encode wraps payload into an envelope and marshals it.
func Encode(event string, payload interface{}) ([]byte, error) {
	if event == "" {
		return nil, ErrInvalidEnvelope
	}
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "encode %s payload", event)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, err.Error())
	}
	if env.Event == "" {
		return nil, ErrInvalidEnvelope
	}
	return &env, nil
}

// Bind unmarshals the envelope data into v.
func (e *Envelope) Bind(v interface{}) error {
	if len(e.Data) == 0 {
		return errors.Wrapf(ErrInvalidEnvelope, "%s: empty data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", e.Event)
	}
	return nil
}
