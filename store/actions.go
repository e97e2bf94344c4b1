package store

import (
	"time"

	"mchat/models"
)

// Action is a tagged state transition understood by Reduce.
type Action interface {
	Kind() string
}

type SetActiveConversation struct {
	ID string
}

type MarkConversationRead struct {
	ID string
}

type AddMessage struct {
	Message models.Message
}

type UpdateMessageStatus struct {
	MessageID string
	Status    models.MessageStatus
}

type SetTyping struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

// IncrementUnread bumps the unread counter of a conversation that received a
// remote message while it was not active.
type IncrementUnread struct {
	ID string
}

// SetUserStatus applies a presence change to every record of that user.
type SetUserStatus struct {
	UserID   string
	Status   models.UserStatus
	LastSeen *time.Time
}

func (SetActiveConversation) Kind() string { return "SetActiveConversation" }
func (MarkConversationRead) Kind() string  { return "MarkConversationRead" }
func (AddMessage) Kind() string            { return "AddMessage" }
func (UpdateMessageStatus) Kind() string   { return "UpdateMessageStatus" }
func (SetTyping) Kind() string             { return "SetTyping" }
func (IncrementUnread) Kind() string       { return "IncrementUnread" }
func (SetUserStatus) Kind() string         { return "SetUserStatus" }
