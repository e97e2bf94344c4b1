package models

import "time"

// UserStatus is advisory presence, not authenticated.
type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusAway    UserStatus = "away"
	StatusOffline UserStatus = "offline"
)

// Valid reports whether s is one of the known presence values.
func (s UserStatus) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusOffline:
		return true
	}
	return false
}

// MessageStatus moves forward only: sending -> sent -> delivered -> read.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Rank orders statuses along the delivery sequence. Unknown values rank -1.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageSending:
		return 0
	case MessageSent:
		return 1
	case MessageDelivered:
		return 2
	case MessageRead:
		return 3
	}
	return -1
}

func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

type User struct {
	ID       string     `json:"id" yaml:"id"`
	Name     string     `json:"name" yaml:"name"`
	Status   UserStatus `json:"status" yaml:"status"`
	LastSeen *time.Time `json:"lastSeen,omitempty" yaml:"lastSeen,omitempty"`
}

type Message struct {
	ID             string        `json:"id"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId,omitempty"`
	Content        string        `json:"content"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status"`
	Type           MessageType   `json:"type"`
	ConversationID string        `json:"conversationId"`
}

// Conversation holds participants by value; messages live in the store keyed
// by conversation id, so LastMessage is a denormalized copy.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []User   `json:"participants"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount"`
}

// Peer returns the first participant that is not selfID.
func (c Conversation) Peer(selfID string) (User, bool) {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return User{}, false
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}
