package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/seed-price-scraper/internal/database"
	"github.com/redis/go-redis/v9"
)

// OutboxWriter is satisfied by *database.OutboxRepository.
type OutboxWriter interface {
	Insert(ctx context.Context, event *database.OutboxEvent) error
}

// OutboxNotifier stores price_alert events in the transactional outbox; the
// relay delivers them to the notification stream.
type OutboxNotifier struct {
	outbox OutboxWriter
	stream string
	logger *slog.Logger
}

func NewOutboxNotifier(outbox OutboxWriter, stream string, logger *slog.Logger) *OutboxNotifier {
	if stream == "" {
		stream = database.DefaultNotificationStream
	}
	return &OutboxNotifier{
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "outbox_notifier"),
	}
}

func (n *OutboxNotifier) PublishPriceAlert(ctx context.Context, event *PriceAlertEvent) error {
	event.prepare(time.Now())

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: AggregatePriceAlert,
		AggregateID:   event.AlertID.String(),
		EventType:     event.EventType,
		Payload:       data,
		TargetStream:  n.stream,
	}

	if err := n.outbox.Insert(ctx, outboxEvent); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	n.logger.Info("event published to outbox",
		"type", event.EventType,
		"event_id", event.EventID,
		"alert_id", event.AlertID,
		"outbox_id", outboxEvent.ID)

	return nil
}

// StreamNotifier writes price_alert events straight to a Redis stream,
// without the outbox's delivery guarantees.
type StreamNotifier struct {
	redis  database.RedisClient
	stream string
	maxLen int64
	logger *slog.Logger
}

func NewStreamNotifier(client database.RedisClient, stream string, maxLen int64, logger *slog.Logger) *StreamNotifier {
	if stream == "" {
		stream = database.DefaultNotificationStream
	}
	return &StreamNotifier{
		redis:  client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "stream_notifier"),
	}
}

func (n *StreamNotifier) PublishPriceAlert(ctx context.Context, event *PriceAlertEvent) error {
	event.prepare(time.Now())

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"data":         string(data),
			"type":         event.EventType,
			"event_id":     event.EventID,
			"aggregate_id": event.AlertID.String(),
		},
	}
	if n.maxLen > 0 {
		args.MaxLen = n.maxLen
		args.Approx = true
	}

	id, err := n.redis.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	n.logger.Info("event published to stream",
		"stream", n.stream,
		"stream_id", id,
		"event_id", event.EventID,
		"alert_id", event.AlertID)

	return nil
}

// LogNotifier only logs events. It backs local runs without Redis.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

func (n *LogNotifier) PublishPriceAlert(_ context.Context, event *PriceAlertEvent) error {
	event.prepare(time.Now())

	n.logger.Info("price alert",
		"event_id", event.EventID,
		"alert_id", event.AlertID,
		"user_id", event.UserID,
		"seed", event.SeedSlug,
		"reason", event.Reason,
		"target_price", event.TargetPrice,
		"current_price", event.CurrentPrice,
		"currency", event.Currency,
		"seedbank", event.SeedbankSlug)

	return nil
}
