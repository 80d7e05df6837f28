package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/order"
	"github.com/crosslane/relayd/pkg/store"
	"github.com/crosslane/relayd/pkg/util"
)

// memStore keeps orders in a map, serializing through the wire codec so tests
// observe the same snapshot behavior as the pebble store.
type memStore struct {
	mu     sync.Mutex
	orders map[string][]byte
}

var _ store.OrderStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{orders: make(map[string][]byte)}
}

func (m *memStore) Get(orderID string) (*order.Order, error) {
	m.mu.Lock()
	data, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok {
		return nil, store.ErrNotFound
	}
	o, err := order.FromDB(data)
	if err != nil {
		return nil, err
	}
	o.OrderID = orderID
	return o, nil
}

func (m *memStore) Put(orderID string, o *order.Order) error {
	data, err := order.ToDB(o)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.orders[orderID] = data
	m.mu.Unlock()
	return nil
}

func (m *memStore) Scan(fn func(orderID string, o *order.Order) bool) error {
	m.mu.Lock()
	snapshot := make(map[string][]byte, len(m.orders))
	for k, v := range m.orders {
		snapshot[k] = v
	}
	m.mu.Unlock()

	for orderID, data := range snapshot {
		o, err := order.FromDB(data)
		if err != nil {
			return err
		}
		o.OrderID = orderID
		if !fn(orderID, o) {
			break
		}
	}
	return nil
}

func (m *memStore) Close() error { return nil }

// testConn collects written envelopes on a buffered channel.
type testConn struct {
	mu     sync.Mutex
	closed bool

	out chan *Envelope
}

var _ Conn = (*testConn)(nil)

func newTestConn() *testConn {
	return &testConn{out: make(chan *Envelope, 16)}
}

func (c *testConn) WriteEnvelope(env *Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("conn closed")
	}
	c.out <- env
	return nil
}

func (c *testConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// recv pops the next envelope written to the conn, failing the test after a
// second of silence.
func (c *testConn) recv(t *testing.T) *Envelope {
	t.Helper()
	select {
	case env := <-c.out:
		return env
	case <-time.After(time.Second):
		t.Fatalf("no envelope written within 1s")
		return nil
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	return NewEngine(newMemStore(), zap.NewNop().Sugar(), opts)
}

func newManualEngine(t *testing.T) (*Engine, *util.ManualClock) {
	t.Helper()
	clock := util.NewManualClock()
	return newTestEngine(t, Options{Clock: clock}), clock
}
