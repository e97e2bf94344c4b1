package store

import (
	"reflect"

	"mchat/models"
)

// State is an immutable snapshot of the chat. The reducer never writes into a
// slice or map reachable from a previous State; it copies what it changes.
// Callers must treat every field as read-only.
type State struct {
	CurrentUser          models.User
	Conversations        []models.Conversation
	ActiveConversationID string
	Messages             map[string][]models.Message
	TypingIndicators     map[string][]string
	// Version grows by one for every applied action batch.
	Version uint64
}

// Conversation looks a conversation up by id.
func (s State) Conversation(id string) (models.Conversation, bool) {
	if i := s.conversationIndex(id); i >= 0 {
		return s.Conversations[i], true
	}
	return models.Conversation{}, false
}

// ActiveConversation returns the conversation the active pointer refers to.
func (s State) ActiveConversation() (models.Conversation, bool) {
	if s.ActiveConversationID == "" {
		return models.Conversation{}, false
	}
	return s.Conversation(s.ActiveConversationID)
}

func (s State) MessagesFor(conversationID string) []models.Message {
	return s.Messages[conversationID]
}

func (s State) TypingUsers(conversationID string) []string {
	return s.TypingIndicators[conversationID]
}

// FindMessage scans all conversations for a message id.
func (s State) FindMessage(id string) (models.Message, bool) {
	for _, msgs := range s.Messages {
		for _, m := range msgs {
			if m.ID == id {
				return m, true
			}
		}
	}
	return models.Message{}, false
}

// User resolves a user id against the current user and every participant.
func (s State) User(id string) (models.User, bool) {
	if s.CurrentUser.ID == id {
		return s.CurrentUser, true
	}
	for _, c := range s.Conversations {
		for _, p := range c.Participants {
			if p.ID == id {
				return p, true
			}
		}
	}
	return models.User{}, false
}

// TotalUnread sums unread counters over all conversations.
func (s State) TotalUnread() int {
	total := 0
	for _, c := range s.Conversations {
		total += c.UnreadCount
	}
	return total
}

func (s State) conversationIndex(id string) int {
	for i, c := range s.Conversations {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func cloneConversations(in []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, len(in))
	copy(out, in)
	return out
}

func cloneMessageMap(in map[string][]models.Message) map[string][]models.Message {
	out := make(map[string][]models.Message, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTypingMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// sameState reports whether next is prev untouched. Reducers replace every
// slice and map they change, so identity is enough.
func sameState(prev, next State) bool {
	return prev.CurrentUser == next.CurrentUser &&
		prev.ActiveConversationID == next.ActiveConversationID &&
		sameRef(prev.Conversations, next.Conversations) &&
		sameRef(prev.Messages, next.Messages) &&
		sameRef(prev.TypingIndicators, next.TypingIndicators)
}

func sameRef(a, b interface{}) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
}
