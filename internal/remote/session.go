package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/markus-barta/webos-remote/internal/protocol"
	"github.com/markus-barta/webos-remote/internal/socket"
	"github.com/rs/zerolog"
)

// session owns the sockets and correlation tables of one connection. Its
// tables are discarded with it; nothing is shared across sessions.
type session struct {
	log     zerolog.Logger
	control *socket.Conn

	mu      sync.Mutex
	input   *socket.Conn
	nextID  uint64
	pending map[uint64]chan *protocol.Message
	subs    map[uint64]*subscription

	done      chan struct{}
	closeOnce sync.Once
}

func newSession(control *socket.Conn, log zerolog.Logger) *session {
	return &session{
		log:     log,
		control: control,
		pending: make(map[uint64]chan *protocol.Message),
		subs:    make(map[uint64]*subscription),
		done:    make(chan struct{}),
	}
}

func (s *session) setInput(conn *socket.Conn) {
	s.mu.Lock()
	s.input = conn
	s.mu.Unlock()
}

func (s *session) inputConn() *socket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// end fails every waiter. Later calls are no-ops.
func (s *session) end() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *session) ended() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// register allocates the next id and records a pending waiter for it. A
// non-nil handler also registers a subscription under the same id.
func (s *session) register(handler func(json.RawMessage)) (uint64, chan *protocol.Message, *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	reply := make(chan *protocol.Message, 1)
	s.pending[id] = reply

	var sub *subscription
	if handler != nil {
		sub = newSubscription(id, handler)
		s.subs[id] = sub
	}
	return id, reply, sub
}

func (s *session) forget(id uint64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// unsubscribe rolls back a subscription whose initial request failed.
func (s *session) unsubscribe(sub *subscription) {
	s.mu.Lock()
	if s.subs[sub.id] == sub {
		delete(s.subs, sub.id)
	}
	s.mu.Unlock()
	sub.stop()
}

func (s *session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *session) subscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// stopSubscriptions discards the subscription table.
func (s *session) stopSubscriptions() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[uint64]*subscription)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

// send writes a command without waiting for a reply.
func (s *session) send(ctx context.Context, msgType, endpoint string, payload any) error {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	msg, err := protocol.NewMessage(id, msgType, endpoint, payload)
	if err != nil {
		return err
	}
	return s.sendErr(s.control.SendJSON(ctx, msg))
}

func (s *session) sendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, socket.ErrNotConnected) || s.ended() {
		return fmt.Errorf("%w: control socket closed", ErrNotConnected)
	}
	return err
}

// call sends one request and waits for the matching response. With a
// handler it is a subscribe: the handler receives the initial payload and
// every later push for the same id, and call returns only after the initial
// payload was handled.
func (s *session) call(ctx context.Context, msgType, endpoint string, payload any, handler func(json.RawMessage)) (json.RawMessage, error) {
	if s.ended() {
		return nil, ErrNotConnected
	}

	id, reply, sub := s.register(handler)
	defer s.forget(id)

	ok := false
	if sub != nil {
		defer func() {
			if !ok {
				s.unsubscribe(sub)
			}
		}()
	}

	msg, err := protocol.NewMessage(id, msgType, endpoint, payload)
	if err != nil {
		return nil, err
	}
	if err := s.control.SendJSON(ctx, msg); err != nil {
		return nil, s.sendErr(err)
	}

	var resp *protocol.Message
	select {
	case resp = <-reply:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, fmt.Errorf("%w: session closed while waiting for %s", ErrNotConnected, msg.URI)
	}

	result, err := protocol.Validate(resp)
	if err != nil {
		envelope, _ := json.Marshal(resp)
		return nil, &CommandError{URI: msg.URI, Envelope: envelope, Err: err}
	}

	if sub != nil {
		sub.activate()
		if err := sub.flush(ctx, s.done); err != nil {
			return nil, err
		}
	}

	ok = true
	return result, nil
}

// route reads the control stream until it ends or ctx is cancelled. Stream
// termination is not an error.
func (s *session) route(ctx context.Context) error {
	for {
		data, err := s.control.Read(ctx)
		if err != nil {
			s.log.Debug().Err(err).Msg("control stream ended")
			return nil
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		id, ok := msg.CommandID()
		if !ok {
			s.log.Debug().Str("type", msg.Type).Msg("ignoring frame without command id")
			continue
		}
		s.dispatch(id, msg)
	}
}

// dispatch delivers msg to the subscription and the pending waiter
// registered under id. The subscription is fed first so a subscribe call
// observes its initial payload as already queued.
func (s *session) dispatch(id uint64, msg *protocol.Message) {
	s.mu.Lock()
	sub := s.subs[id]
	reply, waiting := s.pending[id]
	if waiting {
		delete(s.pending, id)
	}
	s.mu.Unlock()

	if sub != nil {
		sub.deliver(msg.Payload)
	}
	if waiting {
		reply <- msg
	}
}
