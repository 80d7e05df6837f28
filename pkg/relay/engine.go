package relay

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/order"
	"github.com/crosslane/relayd/pkg/store"
	"github.com/crosslane/relayd/pkg/util"
)

// HashFunc maps a swap preimage to its commitment. The swap construction is
// owned by the payment engine integration; SHA-256 is the default used by
// hash/preimage settlement on Lightning-style engines.
type HashFunc func(preimage []byte) []byte

func SHA256(preimage []byte) []byte {
	sum := sha256.Sum256(preimage)
	return sum[:]
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	CallTimeout      time.Duration // wait bound for relayer-issued requests
	SubscriberBuffer int           // event buffer per subscription
	Clock            util.Clock
	Hash             HashFunc
}

// Engine is the relayer's protocol core: it owns the order lifecycle state
// machine and is the only component that mutates order records. Channels,
// pending correlations and the event feed all hang off it.
type Engine struct {
	store    store.OrderStore
	registry *Registry
	corr     *Correlator
	bus      *Broadcaster
	hash     HashFunc
	log      *zap.SugaredLogger

	// Per-order serialization for read-validate-write against the store. Two
	// concurrent placements of the same id must not both observe "not found".
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewEngine(st store.OrderStore, log *zap.SugaredLogger, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Hash == nil {
		opts.Hash = SHA256
	}
	return &Engine{
		store:    st,
		registry: NewRegistry(),
		corr:     NewCorrelator(opts.Clock, opts.CallTimeout),
		bus:      NewBroadcaster(opts.SubscriberBuffer),
		hash:     opts.Hash,
		log:      log,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (e *Engine) Registry() *Registry { return e.registry }
func (e *Engine) Bus() *Broadcaster   { return e.bus }

// lockOrder serializes handlers touching the same order id. The map keeps one
// mutex per id seen; ids are bounded by the store's key space.
func (e *Engine) lockOrder(orderID string) func() {
	e.lockMu.Lock()
	mu, ok := e.locks[orderID]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[orderID] = mu
	}
	e.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// PlaceOrder births an order directly into PLACED. Fails with
// ErrAlreadyExists when a record for the id exists, registers the maker's
// channel, and emits order:created for the order's market.
func (e *Engine) PlaceOrder(ctx context.Context, sess *Session, orderID string, req *PlaceOrderRequest) (order.Status, *PlaceOrderResponse, error) {
	if req == nil || req.Order == nil {
		return "", nil, order.Invalidf("placeOrder requires an order payload")
	}

	o, err := order.FromWire(req.Order)
	if err != nil {
		return "", nil, err
	}
	o.OrderID = orderID
	if err := o.Validate(); err != nil {
		return "", nil, err
	}

	// Swap material and fill state only ever enter via fill/complete.
	o.Status = order.StatusPlaced
	o.FillAmount = nil
	o.SwapHash = nil
	o.SwapPreimage = nil

	unlock := e.lockOrder(orderID)
	defer unlock()

	switch _, err := e.store.Get(orderID); {
	case err == nil:
		return "", nil, ErrAlreadyExists
	case errors.Is(err, store.ErrNotFound):
		// New order, proceed.
	default:
		e.log.Errorw("order_lookup_failed", "order_id", orderID, "err", err)
		return "", nil, fmt.Errorf("lookup order %s: %w", orderID, err)
	}

	if err := e.store.Put(orderID, o); err != nil {
		e.log.Errorw("order_write_failed", "order_id", orderID, "err", err)
		return "", nil, fmt.Errorf("persist order %s: %w", orderID, err)
	}

	if sess != nil {
		e.registry.Register(RoleMaker, orderID, sess)
	}

	e.bus.Publish(Event{
		Type:        EventOrderCreated,
		OrderID:     orderID,
		Market:      o.MarketKey(),
		OrderStatus: string(order.StatusPlaced),
		Order:       order.ToSummary(o),
	})
	e.log.Infow("order_placed", "order_id", orderID, "market", o.MarketKey(), "side", o.Side)

	return order.StatusPlaced, &PlaceOrderResponse{}, nil
}

// CancelOrder moves PLACED -> CANCELLED and emits order:cancelled. Refund
// handling belongs to the workflow tier listening on the event feed.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (order.Status, *CancelOrderResponse, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	o, err := e.getWithStatus(orderID, order.StatusPlaced)
	if err != nil {
		return "", nil, err
	}

	o.Status = order.StatusCancelled
	if err := e.store.Put(orderID, o); err != nil {
		e.log.Errorw("order_write_failed", "order_id", orderID, "err", err)
		return "", nil, fmt.Errorf("persist order %s: %w", orderID, err)
	}

	e.bus.Publish(Event{
		Type:        EventOrderCancelled,
		OrderID:     orderID,
		Market:      o.MarketKey(),
		OrderStatus: string(order.StatusCancelled),
	})
	e.log.Infow("order_cancelled", "order_id", orderID)

	return order.StatusCancelled, &CancelOrderResponse{}, nil
}

// FillOrder moves PLACED -> FILLING, stores the taker's swap hash and fill
// amount, then asks the registered maker channel to execute the swap and
// waits for its answer before acknowledging the taker.
func (e *Engine) FillOrder(ctx context.Context, sess *Session, orderID string, req *FillOrderRequest) (order.Status, *FillOrderResponse, error) {
	if req == nil || req.Fill == nil {
		return "", nil, order.Invalidf("fillOrder requires a fill payload")
	}
	if len(req.Fill.SwapHash) == 0 {
		return "", nil, order.Invalidf("fill requires a swapHash")
	}
	fillAmount, ok := new(big.Int).SetString(req.Fill.FillAmount, 10)
	if !ok {
		return "", nil, order.Invalidf("fillAmount must be a base-10 integer, got %q", req.Fill.FillAmount)
	}
	if fillAmount.Sign() <= 0 {
		return "", nil, order.Invalidf("fillAmount must be greater than 0")
	}

	maker, payTo, err := e.beginFill(orderID, sess, fillAmount, req.Fill.SwapHash)
	if err != nil {
		return "", nil, err
	}

	// The await happens outside the order lock: the maker's completeOrder
	// must be able to run once this executeOrder exchange finishes.
	exec := &Envelope{
		OrderID:             orderID,
		ExecuteOrderRequest: &ExecuteOrderRequest{Fill: req.Fill},
	}
	if _, err := e.corr.Call(ctx, maker, orderID, VerbExecuteOrder, exec); err != nil {
		e.log.Warnw("execute_order_failed", "order_id", orderID, "err", err)
		return "", nil, err
	}

	return order.StatusFilling, &FillOrderResponse{PayTo: payTo}, nil
}

// beginFill is the locked half of FillOrder: validate against current state
// and persist the FILLING transition.
func (e *Engine) beginFill(orderID string, sess *Session, fillAmount *big.Int, swapHash []byte) (*Session, string, error) {
	unlock := e.lockOrder(orderID)
	defer unlock()

	o, err := e.store.Get(orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", &NoOrderError{OrderID: orderID}
		}
		e.log.Errorw("order_lookup_failed", "order_id", orderID, "err", err)
		return nil, "", fmt.Errorf("lookup order %s: %w", orderID, err)
	}

	// The amount bound is checked before status so an oversized fill is always
	// a validation failure, whatever state the order is in.
	if fillAmount.Cmp(o.BaseAmount) > 0 {
		return nil, "", order.Invalidf("fillAmount %s exceeds order baseAmount %s",
			fillAmount.Text(10), o.BaseAmount.Text(10))
	}
	if o.Status != order.StatusPlaced {
		return nil, "", ErrInvalidState
	}

	maker, ok := e.registry.Lookup(RoleMaker, orderID)
	if !ok {
		return nil, "", ErrNoCounterparty
	}

	o.Status = order.StatusFilling
	o.FillAmount = fillAmount
	o.SwapHash = append([]byte(nil), swapHash...)
	if err := e.store.Put(orderID, o); err != nil {
		e.log.Errorw("order_write_failed", "order_id", orderID, "err", err)
		return nil, "", fmt.Errorf("persist order %s: %w", orderID, err)
	}

	if sess != nil {
		e.registry.Register(RoleTaker, orderID, sess)
	}

	e.bus.Publish(Event{
		Type:        EventOrderFilling,
		OrderID:     orderID,
		Market:      o.MarketKey(),
		OrderStatus: string(order.StatusFilling),
		FillAmount:  fillAmount.Text(10),
	})
	e.log.Infow("order_filling", "order_id", orderID, "fill_amount", fillAmount.Text(10))

	return maker, o.PayTo, nil
}

// CompleteOrder moves FILLING -> FILLED once the supplied preimage opens the
// stored swap hash, and emits order:filled with the fill amount.
func (e *Engine) CompleteOrder(ctx context.Context, orderID string, req *CompleteOrderRequest) (order.Status, *CompleteOrderResponse, error) {
	if req == nil || len(req.SwapPreimage) == 0 {
		return "", nil, order.Invalidf("completeOrder requires a swapPreimage")
	}

	unlock := e.lockOrder(orderID)
	defer unlock()

	o, err := e.getWithStatus(orderID, order.StatusFilling)
	if err != nil {
		return "", nil, err
	}

	if !bytes.Equal(e.hash(req.SwapPreimage), o.SwapHash) {
		return "", nil, ErrInvalidPreimage
	}

	o.SwapPreimage = append([]byte(nil), req.SwapPreimage...)
	o.Status = order.StatusFilled
	if err := e.store.Put(orderID, o); err != nil {
		e.log.Errorw("order_write_failed", "order_id", orderID, "err", err)
		return "", nil, fmt.Errorf("persist order %s: %w", orderID, err)
	}

	fillAmount := ""
	if o.FillAmount != nil {
		fillAmount = o.FillAmount.Text(10)
	}
	e.bus.Publish(Event{
		Type:        EventOrderFilled,
		OrderID:     orderID,
		Market:      o.MarketKey(),
		OrderStatus: string(order.StatusFilled),
		FillAmount:  fillAmount,
	})
	e.log.Infow("order_filled", "order_id", orderID, "fill_amount", fillAmount)

	return order.StatusFilled, &CompleteOrderResponse{}, nil
}

// getWithStatus loads an order and checks it is in the expected state. Must
// be called with the order's lock held.
func (e *Engine) getWithStatus(orderID string, want order.Status) (*order.Order, error) {
	o, err := e.store.Get(orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NoOrderError{OrderID: orderID}
		}
		e.log.Errorw("order_lookup_failed", "order_id", orderID, "err", err)
		return nil, fmt.Errorf("lookup order %s: %w", orderID, err)
	}
	if o.Status != want {
		return nil, ErrInvalidState
	}
	return o, nil
}

// OrderUpdate is one row of a GetOrders snapshot or subscription feed.
type OrderUpdate struct {
	OrderID     string         `json:"orderId"`
	OrderStatus string         `json:"orderStatus"`
	Order       *order.Summary `json:"order,omitempty"`
}

// ListOrders scans the store for active orders on a market. The first record
// encountered per order id wins, guarding against duplicate-key artifacts in
// the scan. Both PLACED and FILLING orders report PLACED, preserving the
// snapshot wire contract.
func (e *Engine) ListOrders(marketKey string) ([]OrderUpdate, error) {
	var updates []OrderUpdate
	seen := make(map[string]struct{})

	err := e.store.Scan(func(orderID string, o *order.Order) bool {
		if _, dup := seen[orderID]; dup {
			return true
		}
		seen[orderID] = struct{}{}

		if o.MarketKey() != marketKey {
			return true
		}
		if o.Status != order.StatusPlaced && o.Status != order.StatusFilling {
			return true
		}

		updates = append(updates, OrderUpdate{
			OrderID:     orderID,
			OrderStatus: string(order.StatusPlaced),
			Order:       order.ToSummary(o),
		})
		return true
	})
	if err != nil {
		e.log.Errorw("order_scan_failed", "market", marketKey, "err", err)
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	return updates, nil
}
