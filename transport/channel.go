package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"mchat/protocol"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrQueueFull    = errors.New("send queue full")
)

// ConnState is the lifecycle of a channel's connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "disconnected"
}

// Handler receives one inbound event. Handlers for a channel run one at a
// time, in arrival order.
type Handler func(env *protocol.Envelope)

// Channel is a bidirectional event link to the remote side.
type Channel interface {
	Connect(ctx context.Context) error
	Send(event string, payload interface{}) error
	On(event string, handler Handler)
	Off(event string)
	OnStateChange(fn func(ConnState))
	Connected() bool
	Close() error
}

// registry is the handler bookkeeping shared by the implementations.
type registry struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	watchers []func(ConnState)
}

func (r *registry) On(event string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string][]Handler)
	}
	r.handlers[event] = append(r.handlers[event], handler)
}

// Off removes every handler registered for event.
func (r *registry) Off(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, event)
}

func (r *registry) OnStateChange(fn func(ConnState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watchers = append(r.watchers, fn)
}

func (r *registry) dispatch(env *protocol.Envelope) int {
	r.mu.Lock()
	handlers := append([]Handler(nil), r.handlers[env.Event]...)
	r.mu.Unlock()

	for _, h := range handlers {
		h(env)
	}
	return len(handlers)
}

func (r *registry) notifyState(state ConnState) {
	r.mu.Lock()
	watchers := make([]func(ConnState), len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.Unlock()

	for _, fn := range watchers {
		fn(state)
	}
}
