package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mchat/logger"
)

// Session is one WebSocket connection of one user.
type Session struct {
	ID     string
	UserID string

	srv    *Server
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func newSession(srv *Server, userID string, conn *websocket.Conn) *Session {
	id := uuid.New().String()
	return &Session{
		ID:     id,
		UserID: userID,
		srv:    srv,
		conn:   conn,
		send:   make(chan []byte, srv.cfg.SendQueue),
		done:   make(chan struct{}),
		logger: srv.logger.With().
			Str(logger.FieldSessionID, id).
			Str(logger.FieldUserID, userID).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
	}
}

// enqueue queues raw for the write pump. It never blocks; a full queue or a
// closed session drops the frame.
func (s *Session) enqueue(raw []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- raw:
		return true
	default:
		s.logger.Warn().Msg("Send queue full, dropping frame")
		return false
	}
}

func (s *Session) readPump() {
	defer func() {
		s.close(websocket.CloseNormalClosure, "")
		s.srv.unregister(s)
	}()

	cfg := s.srv.cfg
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Warn().Err(err).Msg("Read failed")
			}
			return
		}
		s.srv.handleFrame(s, raw)
	}
}

func (s *Session) writePump() {
	cfg := s.srv.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case raw := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.logger.Debug().Err(err).Msg("Write failed")
				s.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-s.done:
			return
		}
	}
}

// close sends a close frame (when code is not abnormal) and tears the
// connection down. Safe to call more than once.
func (s *Session) close(code int, reason string) {
	s.once.Do(func() {
		close(s.done)
		if code != websocket.CloseAbnormalClosure {
			deadline := time.Now().Add(s.srv.cfg.WriteWait)
			_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		}
		s.conn.Close()
	})
}
