package remote

import (
	"context"
	"encoding/json"
	"sync"
)

// delivery is one queued handler invocation, or a flush marker when ack is
// set.
type delivery struct {
	payload json.RawMessage
	ack     chan struct{}
}

// subscription runs its handler on a dedicated goroutine in arrival order.
// The queue is unbounded so the router never blocks on a slow handler.
// Deliveries are held until the initial response has been validated.
type subscription struct {
	id      uint64
	handler func(json.RawMessage)

	mu     sync.Mutex
	queue  []delivery
	wake   chan struct{}
	active chan struct{}
	quit   chan struct{}
	once   sync.Once
	armed  sync.Once
	exited chan struct{}
}

func newSubscription(id uint64, handler func(json.RawMessage)) *subscription {
	sub := &subscription{
		id:      id,
		handler: handler,
		wake:    make(chan struct{}, 1),
		active:  make(chan struct{}),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	go sub.run()
	return sub
}

func (sub *subscription) enqueue(d delivery) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, d)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscription) deliver(payload json.RawMessage) {
	sub.enqueue(delivery{payload: payload})
}

// flush waits until every delivery queued before it has been handled.
func (sub *subscription) flush(ctx context.Context, sessionDone <-chan struct{}) error {
	ack := make(chan struct{})
	sub.enqueue(delivery{ack: ack})

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-sessionDone:
		return ErrNotConnected
	case <-sub.exited:
		return ErrNotConnected
	}
}

// activate releases held deliveries to the handler.
func (sub *subscription) activate() {
	sub.armed.Do(func() { close(sub.active) })
}

// stop ends the worker. Queued deliveries are dropped.
func (sub *subscription) stop() {
	sub.once.Do(func() { close(sub.quit) })
}

func (sub *subscription) stopped() bool {
	select {
	case <-sub.quit:
		return true
	default:
		return false
	}
}

func (sub *subscription) run() {
	defer close(sub.exited)

	select {
	case <-sub.quit:
		return
	case <-sub.active:
	}

	for {
		select {
		case <-sub.quit:
			return
		case <-sub.wake:
		}

		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			d := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			if sub.stopped() {
				return
			}
			if d.ack != nil {
				close(d.ack)
				continue
			}
			sub.handler(d.payload)
		}
	}
}
