// Package firehose publishes every order lifecycle event to a Kafka topic,
// keyed by order id, for downstream market-data consumers.
package firehose

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/crosslane/relayd/pkg/relay"
)

type Publisher struct {
	writer *kafka.Writer
	bus    *relay.Broadcaster
	log    *zap.SugaredLogger
}

func NewPublisher(brokers []string, topic string, bus *relay.Broadcaster, log *zap.SugaredLogger) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		bus: bus,
		log: log,
	}
}

// Run consumes the all-markets feed until ctx is cancelled. Events the feed
// dropped for backpressure are simply absent here too; the firehose offers no
// replay.
func (p *Publisher) Run(ctx context.Context) {
	sub := p.bus.Subscribe(relay.AllMarkets)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.C:
			if err := p.publish(ctx, ev); err != nil {
				p.log.Warnw("firehose_publish_failed",
					"order_id", ev.OrderID, "event", string(ev.Type), "err", err)
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev relay.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: value,
	})
}

func (p *Publisher) Close() error { return p.writer.Close() }
