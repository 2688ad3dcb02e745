package intake

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"beacon/internal/event"
)

// Poller is the franz-go client surface the consumer needs; *kgo.Client
// satisfies it.
type Poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
}

// Consumer feeds events from the Kafka topic into the intake service with
// the same semantics as the HTTP surface. Offsets are committed by the
// consumer group after poll, so delivery into the engine is at-least-once;
// record creation downstream is idempotent.
type Consumer struct {
	poller  Poller
	service *Service
	logger  *slog.Logger
}

func NewConsumer(poller Poller, service *Service, logger *slog.Logger) *Consumer {
	return &Consumer{
		poller:  poller,
		service: service,
		logger:  logger,
	}
}

// Run polls until the context is cancelled. A malformed or invalid record is
// logged and skipped; one producer's bad payload must not wedge the topic.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.poller.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.ErrorContext(ctx, "kafka fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})
		fetches.EachRecord(func(record *kgo.Record) {
			c.consume(ctx, record)
		})
	}
}

func (c *Consumer) consume(ctx context.Context, record *kgo.Record) {
	var e event.Event
	if err := json.Unmarshal(record.Value, &e); err != nil {
		c.logger.WarnContext(ctx, "skipping undecodable event record",
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
			"error", err,
		)
		return
	}

	if _, err := c.service.Submit(ctx, e, "kafka"); err != nil {
		c.logger.WarnContext(ctx, "skipping rejected event record",
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
			"correlation_id", e.CorrelationID,
			"error", err,
		)
	}
}
