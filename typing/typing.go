package typing

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DefaultTimeout = 2 * time.Second

// Emitter forwards a start (true) or stop (false) typing signal.
type Emitter func(conversationID string, isTyping bool)

// Timer is the part of *time.Timer the session needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, like time.AfterFunc.
type AfterFunc func(d time.Duration, f func()) Timer

type Option func(*Session)

func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithAfterFunc(fn AfterFunc) Option {
	return func(s *Session) {
		s.afterFunc = fn
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session turns raw input changes for one conversation into debounced
// start/stop typing signals. At most one start is emitted per typing run and
// every run ends with exactly one stop.
type Session struct {
	mu             sync.Mutex
	conversationID string
	emit           Emitter
	timeout        time.Duration
	afterFunc      AfterFunc
	logger         zerolog.Logger

	typing bool
	timer  Timer
	// gen invalidates timer callbacks that fired after being replaced.
	gen uint64
}

func New(conversationID string, emit Emitter, opts ...Option) *Session {
	s := &Session{
		conversationID: conversationID,
		emit:           emit,
		timeout:        DefaultTimeout,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ConversationID() string {
	return s.conversationID
}

// Typing reports whether the session is between a start and a stop.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// Input handles the current content of the input field after a change.
func (s *Session) Input(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		s.stopLocked("cleared")
		return
	}

	if !s.typing {
		s.typing = true
		s.logger.Debug().Str("conversation_id", s.conversationID).Msg("Typing started")
		s.emit(s.conversationID, true)
	}
	s.armLocked()
}

// Stop ends the current typing run, if any. Used after a message is sent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked("stopped")
}

// Close stops the session for good; a pending timer never fires afterwards.
func (s *Session) Close() {
	s.Stop()
}

func (s *Session) armLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	gen := s.gen
	s.timer = s.afterFunc(s.timeout, func() {
		s.expire(gen)
	})
}

func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.stopLocked("idle")
}

func (s *Session) stopLocked(reason string) {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.typing {
		return
	}
	s.typing = false
	s.logger.Debug().
		Str("conversation_id", s.conversationID).
		Str("reason", reason).
		Msg("Typing stopped")
	s.emit(s.conversationID, false)
}
