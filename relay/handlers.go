package relay

import (
	"time"

	"mchat/logger"
	"mchat/models"
	"mchat/protocol"
)

func (s *Server) handleFrame(sess *Session, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		sess.logger.Warn().Err(err).Msg("Bad frame")
		return
	}

	switch env.Event {
	case protocol.EventMessage:
		s.handleMessage(sess, env)
	case protocol.EventTyping:
		s.handleTyping(sess, env)
	default:
		sess.logger.Debug().Str("event", env.Event).Msg("Ignoring event")
	}
}

// handleMessage acknowledges the message to its sender as sent, forwards it
// to every other user, and acknowledges delivered if anyone received it.
func (s *Server) handleMessage(sess *Session, env *protocol.Envelope) {
	var msg protocol.OutgoingMessage
	if err := env.Bind(&msg); err != nil {
		sess.logger.Warn().Err(err).Msg("Bad message payload")
		return
	}
	if msg.ID == "" || msg.ConversationID == "" {
		sess.logger.Warn().Str(logger.FieldMessageID, msg.ID).Msg("Message without id or conversation")
		return
	}

	msg.SenderID = sess.UserID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if msg.Type == "" {
		msg.Type = models.MessageText
	}

	s.ack(sess, msg.ID, models.MessageSent)

	delivered := s.broadcast(sess.UserID, protocol.EventMessage, msg.ToMessage(models.MessageDelivered))
	sess.logger.Debug().
		Str(logger.FieldMessageID, msg.ID).
		Str(logger.FieldConversationID, msg.ConversationID).
		Int("recipients", delivered).
		Msg("Message relayed")

	if delivered > 0 {
		s.ack(sess, msg.ID, models.MessageDelivered)
	}
}

func (s *Server) handleTyping(sess *Session, env *protocol.Envelope) {
	var t protocol.Typing
	if err := env.Bind(&t); err != nil {
		sess.logger.Warn().Err(err).Msg("Bad typing payload")
		return
	}
	if t.ConversationID == "" {
		return
	}
	t.UserID = sess.UserID
	s.broadcast(sess.UserID, protocol.EventTyping, t)
}

func (s *Server) ack(sess *Session, messageID string, status models.MessageStatus) {
	raw, err := protocol.Encode(protocol.EventMessageStatusUpdate, protocol.StatusUpdate{MessageID: messageID, Status: status})
	if err != nil {
		sess.logger.Error().Err(err).Msg("Failed to encode status update")
		return
	}
	sess.enqueue(raw)
}

// broadcast sends event to every session except those of fromUserID and
// returns how many accepted it.
func (s *Server) broadcast(fromUserID, event string, payload interface{}) int {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return 0
	}

	n := 0
	for _, peer := range s.others(fromUserID) {
		if peer.enqueue(raw) {
			n++
		}
	}
	return n
}

// sendPresence tells a new session who is already online.
func (s *Server) sendPresence(sess *Session) {
	for _, peer := range s.others(sess.UserID) {
		raw, err := protocol.Encode(protocol.EventUserStatusChange, protocol.UserStatusChange{
			UserID: peer.UserID,
			Status: models.StatusOnline,
		})
		if err != nil {
			continue
		}
		sess.enqueue(raw)
	}
}

func (s *Server) notifyOnline(userID string) {
	s.broadcast(userID, protocol.EventUserStatusChange, protocol.UserStatusChange{
		UserID: userID,
		Status: models.StatusOnline,
	})
}

func (s *Server) notifyOffline(userID string, at time.Time) {
	s.broadcast(userID, protocol.EventUserStatusChange, protocol.UserStatusChange{
		UserID:   userID,
		Status:   models.StatusOffline,
		LastSeen: &at,
	})
}
