package relay

import (
	"context"
	"sync"
	"time"

	"github.com/crosslane/relayd/pkg/util"
)

// DefaultCallTimeout bounds how long the relayer waits for a counterparty to
// answer a relayer-issued request. A non-responding maker must never stall a
// taker indefinitely.
const DefaultCallTimeout = 30 * time.Second

type waiter struct {
	verb Verb
	ch   chan *Envelope
}

// Correlator implements one-shot request/response matching over channels that
// otherwise only expose an inbound stream. A waiter is keyed by (session,
// orderId); the session's dispatch loop offers every inbound envelope here
// first, and an envelope carrying the expected "<verb>Response" field for a
// registered order id resolves the waiter and is consumed.
//
// Only one outstanding call per (session, orderId) is allowed; a second
// concurrent call would risk response misattribution and is rejected.
type Correlator struct {
	clock   util.Clock
	timeout time.Duration

	mu      sync.Mutex
	waiters map[*Session]map[string]*waiter
}

func NewCorrelator(clock util.Clock, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Correlator{
		clock:   clock,
		timeout: timeout,
		waiters: make(map[*Session]map[string]*waiter),
	}
}

// Call writes req on the session and blocks until a matching response
// envelope arrives, the timeout elapses, ctx is cancelled, or the session
// closes. req must carry the "<verb>Request" field for verb.
func (c *Correlator) Call(ctx context.Context, sess *Session, orderID string, verb Verb, req *Envelope) (*Envelope, error) {
	w := &waiter{verb: verb, ch: make(chan *Envelope, 1)}

	c.mu.Lock()
	byOrder, ok := c.waiters[sess]
	if !ok {
		byOrder = make(map[string]*waiter)
		c.waiters[sess] = byOrder
	}
	if _, ok := byOrder[orderID]; ok {
		c.mu.Unlock()
		return nil, ErrRequestPending
	}
	byOrder[orderID] = w
	c.mu.Unlock()

	defer c.remove(sess, orderID, w)

	if err := sess.Write(req); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-w.ch:
		if !ok {
			return nil, ErrChannelClosed
		}
		return resp, nil
	case <-c.clock.After(c.timeout):
		return nil, ErrAwaitTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Offer hands an inbound envelope to any waiter registered on the session.
// Returns true if a waiter consumed it; a consumed envelope must not also be
// dispatched as a new inbound request.
func (c *Correlator) Offer(sess *Session, env *Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.waiters[sess][env.OrderID]
	if !ok || !env.HasResponse(w.verb) {
		return false
	}
	delete(c.waiters[sess], env.OrderID)
	w.ch <- env
	return true
}

// Abandon wakes every waiter on a closed session with a channel-closed error.
func (c *Correlator) Abandon(sess *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, w := range c.waiters[sess] {
		close(w.ch)
	}
	delete(c.waiters, sess)
}

func (c *Correlator) remove(sess *Session, orderID string, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.waiters[sess][orderID]; ok && cur == w {
		delete(c.waiters[sess], orderID)
	}
}
