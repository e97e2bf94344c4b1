package store

import (
	"github.com/pkg/errors"

	"mchat/models"
)

var (
	ErrUnknownConversation = errors.New("unknown conversation")
	ErrInvalidMessage      = errors.New("message has no conversation id")
	ErrUnknownAction       = errors.New("unknown action")
)

// Reduce applies one action to s and returns the next state. It never mutates
// s. When it returns an error the returned state equals s.
func Reduce(s State, a Action) (State, error) {
	switch act := a.(type) {
	case SetActiveConversation:
		return setActive(s, act)
	case MarkConversationRead:
		return markRead(s, act), nil
	case AddMessage:
		return addMessage(s, act)
	case UpdateMessageStatus:
		return updateStatus(s, act), nil
	case SetTyping:
		return setTyping(s, act), nil
	case IncrementUnread:
		return incrementUnread(s, act)
	case SetUserStatus:
		return setUserStatus(s, act), nil
	}
	return s, errors.Wrapf(ErrUnknownAction, "%T", a)
}

func setActive(s State, act SetActiveConversation) (State, error) {
	if s.conversationIndex(act.ID) < 0 {
		return s, errors.Wrap(ErrUnknownConversation, act.ID)
	}
	s.ActiveConversationID = act.ID
	return s, nil
}

func markRead(s State, act MarkConversationRead) State {
	idx := s.conversationIndex(act.ID)
	if idx < 0 {
		return s
	}

	convs := cloneConversations(s.Conversations)
	convs[idx].UnreadCount = 0

	if msgs, ok := s.Messages[act.ID]; ok {
		updated := make([]models.Message, len(msgs))
		for i, m := range msgs {
			if m.SenderID != s.CurrentUser.ID {
				m.Status = models.MessageRead
			}
			updated[i] = m
		}
		s.Messages = cloneMessageMap(s.Messages)
		s.Messages[act.ID] = updated
		convs[idx].LastMessage = refreshLast(convs[idx].LastMessage, updated)
	}

	s.Conversations = convs
	return s
}

func addMessage(s State, act AddMessage) (State, error) {
	msg := act.Message
	if msg.ConversationID == "" {
		return s, ErrInvalidMessage
	}

	prev := s.Messages[msg.ConversationID]
	seq := make([]models.Message, len(prev), len(prev)+1)
	copy(seq, prev)
	seq = append(seq, msg)

	s.Messages = cloneMessageMap(s.Messages)
	s.Messages[msg.ConversationID] = seq

	if idx := s.conversationIndex(msg.ConversationID); idx >= 0 {
		convs := cloneConversations(s.Conversations)
		last := msg
		convs[idx].LastMessage = &last
		s.Conversations = convs
	}
	return s, nil
}

func updateStatus(s State, act UpdateMessageStatus) State {
	for convID, msgs := range s.Messages {
		for i, m := range msgs {
			if m.ID != act.MessageID {
				continue
			}
			updated := make([]models.Message, len(msgs))
			copy(updated, msgs)
			updated[i].Status = act.Status

			s.Messages = cloneMessageMap(s.Messages)
			s.Messages[convID] = updated

			if idx := s.conversationIndex(convID); idx >= 0 {
				convs := cloneConversations(s.Conversations)
				convs[idx].LastMessage = refreshLast(convs[idx].LastMessage, updated)
				s.Conversations = convs
			}
			return s
		}
	}
	return s
}

func setTyping(s State, act SetTyping) State {
	current := s.TypingIndicators[act.ConversationID]
	member := false
	for _, id := range current {
		if id == act.UserID {
			member = true
			break
		}
	}

	if act.IsTyping == member {
		return s
	}

	var next []string
	if act.IsTyping {
		next = make([]string, len(current), len(current)+1)
		copy(next, current)
		next = append(next, act.UserID)
	} else {
		next = removeString(current, act.UserID)
	}

	s.TypingIndicators = cloneTypingMap(s.TypingIndicators)
	s.TypingIndicators[act.ConversationID] = next
	return s
}

func incrementUnread(s State, act IncrementUnread) (State, error) {
	idx := s.conversationIndex(act.ID)
	if idx < 0 {
		return s, errors.Wrap(ErrUnknownConversation, act.ID)
	}
	convs := cloneConversations(s.Conversations)
	convs[idx].UnreadCount++
	s.Conversations = convs
	return s, nil
}

func setUserStatus(s State, act SetUserStatus) State {
	apply := func(u models.User) models.User {
		u.Status = act.Status
		if act.LastSeen != nil {
			seen := *act.LastSeen
			u.LastSeen = &seen
		}
		return u
	}

	if s.CurrentUser.ID == act.UserID {
		s.CurrentUser = apply(s.CurrentUser)
	}

	var convs []models.Conversation
	for i, c := range s.Conversations {
		if !c.HasParticipant(act.UserID) {
			continue
		}
		if convs == nil {
			convs = cloneConversations(s.Conversations)
		}
		parts := make([]models.User, len(c.Participants))
		for j, p := range c.Participants {
			if p.ID == act.UserID {
				p = apply(p)
			}
			parts[j] = p
		}
		convs[i].Participants = parts
	}
	if convs != nil {
		s.Conversations = convs
	}

	// An offline user cannot still be typing.
	if act.Status == models.StatusOffline {
		for convID := range s.TypingIndicators {
			s = setTyping(s, SetTyping{ConversationID: convID, UserID: act.UserID})
		}
	}
	return s
}

// refreshLast re-derives the cached last message after a status rewrite.
func refreshLast(last *models.Message, seq []models.Message) *models.Message {
	if last == nil || len(seq) == 0 {
		return last
	}
	tail := seq[len(seq)-1]
	if tail.ID != last.ID {
		return last
	}
	return &tail
}

func removeString(in []string, v string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
