package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// PubSubClient is the part of *redis.Client the realtime publisher needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisRealtimePublisher struct {
	redis   PubSubClient
	channel string
	logger  *slog.Logger
}

func NewRedisRealtimePublisher(client PubSubClient, channel string, logger *slog.Logger) *RedisRealtimePublisher {
	if channel == "" {
		channel = PriceUpdatedChannel
	}
	return &RedisRealtimePublisher{
		redis:   client,
		channel: channel,
		logger:  logger.With("component", "realtime_publisher"),
	}
}

func (p *RedisRealtimePublisher) PublishPriceUpdated(ctx context.Context, event *PriceUpdatedEvent) error {
	event.prepare(time.Now())

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	receivers, err := p.redis.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}

	p.logger.Debug("price update published",
		"channel", p.channel,
		"receivers", receivers,
		"seed", event.SeedSlug,
		"seedbank", event.SeedbankSlug,
		"price", event.Price)

	return nil
}

// NopRealtimePublisher drops every message.
type NopRealtimePublisher struct{}

func (NopRealtimePublisher) PublishPriceUpdated(context.Context, *PriceUpdatedEvent) error {
	return nil
}
