package store

import (
	"sync"

	"github.com/rs/zerolog"

	"mchat/models"
)

// Store owns the chat state. Every Dispatch runs to completion under the lock
// before the next one starts, so a batch of actions is never interleaved with
// another caller's.
type Store struct {
	mu     sync.Mutex
	state  State
	logger zerolog.Logger

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a store seeded with initial.
func New(initial State, opts ...Option) *Store {
	if initial.Messages == nil {
		initial.Messages = map[string][]models.Message{}
	}
	if initial.TypingIndicators == nil {
		initial.TypingIndicators = map[string][]string{}
	}
	s := &Store{
		state:  initial,
		logger: zerolog.Nop(),
		subs:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state. It stays valid and unchanged after
// later dispatches.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies actions in order as one atomic batch. An action that fails
// leaves the state as it was and the remaining actions still run; the first
// error is returned. Version grows and subscribers are notified once per
// batch that changed the state; a batch of declined or no-op actions is
// silent.
func (s *Store) Dispatch(actions ...Action) error {
	if len(actions) == 0 {
		return nil
	}

	s.mu.Lock()
	next := s.state
	var firstErr error
	for _, a := range actions {
		reduced, err := Reduce(next, a)
		if err != nil {
			s.logger.Debug().Err(err).Str("action", a.Kind()).Msg("Action declined")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		next = reduced
	}
	if sameState(s.state, next) {
		s.mu.Unlock()
		return firstErr
	}
	next.Version = s.state.Version + 1
	s.state = next
	s.mu.Unlock()

	s.notify(next)
	return firstErr
}

// Subscribe registers fn to be called with the new state after every batch.
// Under concurrent dispatches notifications may arrive out of order; compare
// State.Version or re-read Snapshot when order matters.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(state State) {
	s.subMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
