package workflow

import (
	"context"
	"errors"

	"github.com/crosslane/relayd/pkg/relay"
)

// RunRefundSettler consumes the relayer event feed and pays out stored refund
// invoices whenever an order this ledger tracks is cancelled. Runs until ctx
// is cancelled.
func (w *Workflows) RunRefundSettler(ctx context.Context, bus *relay.Broadcaster) {
	sub := bus.Subscribe(relay.AllMarkets)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			if ev.Type != relay.EventOrderCancelled {
				continue
			}
			if err := w.CancelOrder(ctx, ev.OrderID); err != nil {
				var pe *PublicError
				if errors.As(err, &pe) {
					// Not an order in this ledger, or already settled.
					continue
				}
				w.log.Warnw("refund_settlement_failed", "order_id", ev.OrderID, "err", err)
			}
		}
	}
}
