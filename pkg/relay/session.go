package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/crosslane/relayd/pkg/order"
)

// Conn is the transport beneath a duplex envelope channel. Implementations
// must allow WriteEnvelope from multiple goroutines being serialized by the
// session, and Close must unblock any pending reads in the owning read loop.
type Conn interface {
	WriteEnvelope(env *Envelope) error
	Close() error
}

// Session is one live duplex channel with a maker or taker. The transport's
// read loop feeds inbound envelopes to Handle in arrival order; writes from
// handler responses and correlator calls are serialized here.
type Session struct {
	role   Role
	conn   Conn
	engine *Engine

	writeMu sync.Mutex

	mu      sync.Mutex
	orderID string // pinned by the first envelope on the channel
	closed  bool
}

func (e *Engine) NewSession(role Role, conn Conn) *Session {
	return &Session{role: role, conn: conn, engine: e}
}

func (s *Session) Role() Role { return s.role }

// Write sends an envelope on the channel.
func (s *Session) Write(env *Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteEnvelope(env)
}

// Close releases everything the session holds: registry slots, pending
// correlator waiters, and the underlying transport. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.engine.registry.Release(s)
	s.engine.corr.Abandon(s)
	s.conn.Close()
}

// pin records the channel's order id on first use and rejects envelopes that
// switch ids mid-channel.
func (s *Session) pin(orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orderID != "" && s.orderID != orderID {
		return fmt.Errorf("inconsistent order ids on channel: %s then %s", s.orderID, orderID)
	}
	s.orderID = orderID
	return nil
}

// Handle processes one inbound envelope. A malformed envelope fails that
// request but leaves the channel open. Every envelope is first offered to the
// correlator; only unconsumed envelopes are dispatched as new requests.
func (s *Session) Handle(ctx context.Context, env *Envelope) error {
	log := s.engine.log

	if env.OrderID == "" {
		log.Warnw("envelope_missing_order_id", "role", s.role)
		return fmt.Errorf("message arrived with no order id")
	}
	if err := s.pin(env.OrderID); err != nil {
		log.Warnw("envelope_order_id_mismatch", "role", s.role, "order_id", env.OrderID)
		return err
	}

	// First inbound message bearing this order id claims the channel for the
	// session's role. An occupied slot stays with its original channel.
	s.engine.registry.Register(s.role, env.OrderID, s)

	if s.engine.corr.Offer(s, env) {
		return nil
	}

	if !env.HasAnyRequest() {
		if !env.HasAnyResponse() {
			log.Warnw("envelope_without_payload", "order_id", env.OrderID)
		}
		// An unmatched response has no waiter left; nothing to do.
		return nil
	}

	s.dispatch(ctx, env)
	return nil
}

// dispatch routes each request field present to its engine handler and writes
// the response envelope back on the originating channel.
func (s *Session) dispatch(ctx context.Context, env *Envelope) {
	orderID := env.OrderID

	if env.PlaceOrderRequest != nil {
		status, resp, err := s.engine.PlaceOrder(ctx, s, orderID, env.PlaceOrderRequest)
		s.respond(orderID, VerbPlaceOrder, status, resp, err)
	}
	if env.CancelOrderRequest != nil {
		status, resp, err := s.engine.CancelOrder(ctx, orderID)
		s.respond(orderID, VerbCancelOrder, status, resp, err)
	}
	if env.CompleteOrderRequest != nil {
		status, resp, err := s.engine.CompleteOrder(ctx, orderID, env.CompleteOrderRequest)
		s.respond(orderID, VerbCompleteOrder, status, resp, err)
	}
	if env.FillOrderRequest != nil {
		status, resp, err := s.engine.FillOrder(ctx, s, orderID, env.FillOrderRequest)
		s.respond(orderID, VerbFillOrder, status, resp, err)
	}
}

// respond writes {orderId, orderStatus, <verb>Response} for a handled
// request, or {orderId, error} when the handler failed.
func (s *Session) respond(orderID string, verb Verb, status order.Status, resp any, err error) {
	if err != nil {
		s.engine.log.Infow("request_failed",
			"order_id", orderID, "verb", string(verb), "err", err)
		if werr := s.Write(&Envelope{OrderID: orderID, Error: PublicMessage(err)}); werr != nil {
			s.engine.log.Warnw("response_write_failed", "order_id", orderID, "err", werr)
		}
		return
	}

	out := &Envelope{OrderID: orderID, OrderStatus: string(status)}
	switch verb {
	case VerbPlaceOrder:
		out.PlaceOrderResponse = resp.(*PlaceOrderResponse)
	case VerbCancelOrder:
		out.CancelOrderResponse = resp.(*CancelOrderResponse)
	case VerbCompleteOrder:
		out.CompleteOrderResponse = resp.(*CompleteOrderResponse)
	case VerbFillOrder:
		out.FillOrderResponse = resp.(*FillOrderResponse)
	}
	if werr := s.Write(out); werr != nil {
		s.engine.log.Warnw("response_write_failed", "order_id", orderID, "err", werr)
	}
}
