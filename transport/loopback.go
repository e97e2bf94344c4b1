package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"mchat/models"
	"mchat/protocol"
)

// LoopbackConfig sets how long the loopback waits before acknowledging a
// sent message. Zero delays acknowledge immediately.
type LoopbackConfig struct {
	SentDelay      time.Duration
	DeliveredDelay time.Duration
}

// Loopback is an in-memory Channel with no remote peer. It acknowledges every
// outbound message with messageStatusUpdate sent, then delivered, and lets
// callers inject inbound events. Used offline and in tests.
type Loopback struct {
	registry
	cfg    LoopbackConfig
	logger zerolog.Logger

	mu        sync.Mutex
	connected bool
	inbound   chan *protocol.Envelope
	done      chan struct{}
	wg        sync.WaitGroup
	outbound  []protocol.Envelope
}

func NewLoopback(cfg LoopbackConfig, logger zerolog.Logger) *Loopback {
	return &Loopback{
		cfg:    cfg,
		logger: logger.With().Str("transport", "loopback").Logger(),
	}
}

func (l *Loopback) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = true
	l.inbound = make(chan *protocol.Envelope, 256)
	l.done = make(chan struct{})
	inbound, done := l.inbound, l.done
	l.mu.Unlock()

	l.wg.Add(1)
	go l.deliverLoop(inbound, done)

	l.logger.Info().Msg("Connected")
	l.notifyState(StateConnected)
	return nil
}

func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Loopback) Send(event string, payload interface{}) error {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	var msg protocol.OutgoingMessage
	ack := event == protocol.EventMessage
	if ack {
		if err := env.Bind(&msg); err != nil {
			return err
		}
	}

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	l.outbound = append(l.outbound, *env)
	done := l.done
	if ack {
		l.wg.Add(1)
	}
	l.mu.Unlock()

	if !ack {
		return nil
	}

	go func() {
		defer l.wg.Done()
		if !sleep(l.cfg.SentDelay, done) {
			return
		}
		l.Inject(protocol.EventMessageStatusUpdate, protocol.StatusUpdate{MessageID: msg.ID, Status: models.MessageSent})
		if !sleep(l.cfg.DeliveredDelay-l.cfg.SentDelay, done) {
			return
		}
		l.Inject(protocol.EventMessageStatusUpdate, protocol.StatusUpdate{MessageID: msg.ID, Status: models.MessageDelivered})
	}()
	return nil
}

// Inject queues an inbound event as if the remote side had sent it.
func (l *Loopback) Inject(event string, payload interface{}) error {
	raw, err := protocol.Encode(event, payload)
	if err != nil {
		return err
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return ErrNotConnected
	}
	inbound, done := l.inbound, l.done
	l.mu.Unlock()

	select {
	case inbound <- env:
		return nil
	case <-done:
		return ErrNotConnected
	}
}

// Outbound returns every envelope sent so far.
func (l *Loopback) Outbound() []protocol.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Envelope(nil), l.outbound...)
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = false
	close(l.done)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Info().Msg("Disconnected")
	l.notifyState(StateDisconnected)
	return nil
}

func (l *Loopback) deliverLoop(inbound <-chan *protocol.Envelope, done <-chan struct{}) {
	defer l.wg.Done()
	for {
		select {
		case <-done:
			return
		case env := <-inbound:
			l.dispatch(env)
		}
	}
}

func sleep(d time.Duration, done <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
