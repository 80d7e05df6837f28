package store

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/crosslane/relayd/pkg/order"
)

// ErrNotFound is returned by Get when no record exists for the key. Callers
// must distinguish it from I/O failure.
var ErrNotFound = errors.New("order not found")

// OrderStore is durable key-value persistence of order records keyed by
// order id. There are no multi-key transactions; read-validate-write
// sequences are the caller's responsibility.
type OrderStore interface {
	Get(orderID string) (*order.Order, error)
	Put(orderID string, o *order.Order) error
	// Scan visits every stored order in key order. Returning false from fn
	// stops the scan. The sequence is a lazy, non-transactional snapshot.
	Scan(fn func(orderID string, o *order.Order) bool) error
	Close() error
}

// PebbleStore persists orders in a pebble database, one JSON document per
// order under an "o:" key prefix.
type PebbleStore struct {
	db *pebble.DB
}

var _ OrderStore = (*PebbleStore)(nil)

func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open order store: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: o:<orderId>
func kOrder(orderID string) []byte { return append([]byte("o:"), orderID...) }

func (s *PebbleStore) Get(orderID string) (*order.Order, error) {
	val, closer, err := s.db.Get(kOrder(orderID))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	defer closer.Close()

	o, err := order.FromDB(val)
	if err != nil {
		return nil, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	o.OrderID = orderID
	return o, nil
}

func (s *PebbleStore) Put(orderID string, o *order.Order) error {
	val, err := order.ToDB(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", orderID, err)
	}
	if err := s.db.Set(kOrder(orderID), val, pebble.Sync); err != nil {
		return fmt.Errorf("put order %s: %w", orderID, err)
	}
	return nil
}

func (s *PebbleStore) Scan(fn func(orderID string, o *order.Order) bool) error {
	prefix := []byte("o:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("scan orders: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		orderID := string(iter.Key()[len(prefix):])
		o, err := order.FromDB(iter.Value())
		if err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		o.OrderID = orderID
		if !fn(orderID, o) {
			break
		}
	}
	return iter.Error()
}

func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
