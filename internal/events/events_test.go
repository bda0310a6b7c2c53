package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/maltedev/seed-price-scraper/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockOutbox struct {
	mock.Mock
}

func (m *mockOutbox) Insert(ctx context.Context, event *database.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockRedis struct {
	mock.Mock
}

func (m *mockRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func (m *mockRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	args := m.Called(ctx, channel, message)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

func sampleAlert() *PriceAlertEvent {
	return &PriceAlertEvent{
		AlertID:      uuid.New(),
		UserID:       "user-1",
		SeedID:       uuid.New(),
		SeedSlug:     "amnesia-haze",
		TargetPrice:  30,
		CurrentPrice: 28,
		Currency:     "EUR",
		Seedbank:     "Zamnesia",
		SeedbankSlug: "zamnesia",
		URL:          "https://www.zamnesia.com/de/amnesia-haze",
		Reason:       ReasonTargetPrice,
	}
}

func TestOutboxNotifier_PublishPriceAlert(t *testing.T) {
	ctx := context.Background()

	t.Run("stores event for the relay", func(t *testing.T) {
		outbox := new(mockOutbox)
		notifier := NewOutboxNotifier(outbox, "", slog.Default())
		event := sampleAlert()

		outbox.On("Insert", ctx, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			var payload PriceAlertEvent
			if err := json.Unmarshal(e.Payload, &payload); err != nil {
				return false
			}
			return e.AggregateType == AggregatePriceAlert &&
				e.AggregateID == event.AlertID.String() &&
				e.EventType == EventTypePriceAlert &&
				e.TargetStream == database.DefaultNotificationStream &&
				payload.CurrentPrice == 28 &&
				payload.Source == eventSource
		})).Return(nil)

		require.NoError(t, notifier.PublishPriceAlert(ctx, event))
		assert.NotEmpty(t, event.EventID)
		assert.False(t, event.Timestamp.IsZero())
		outbox.AssertExpectations(t)
	})

	t.Run("insert failure is returned", func(t *testing.T) {
		outbox := new(mockOutbox)
		notifier := NewOutboxNotifier(outbox, "stream:alerts", slog.Default())
		outbox.On("Insert", ctx, mock.Anything).Return(errors.New("db down"))

		assert.Error(t, notifier.PublishPriceAlert(ctx, sampleAlert()))
	})
}

func TestStreamNotifier_PublishPriceAlert(t *testing.T) {
	ctx := context.Background()

	t.Run("writes to the configured stream", func(t *testing.T) {
		client := new(mockRedis)
		notifier := NewStreamNotifier(client, "stream:alerts", 500, slog.Default())
		event := sampleAlert()

		client.On("XAdd", ctx, mock.MatchedBy(func(a *redis.XAddArgs) bool {
			return a.Stream == "stream:alerts" &&
				a.Values.(map[string]any)["type"] == EventTypePriceAlert &&
				a.Values.(map[string]any)["aggregate_id"] == event.AlertID.String() &&
				a.MaxLen == 500 && a.Approx
		})).Return(nil)

		require.NoError(t, notifier.PublishPriceAlert(ctx, event))
		client.AssertExpectations(t)
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		client := new(mockRedis)
		notifier := NewStreamNotifier(client, "", 0, slog.Default())
		client.On("XAdd", ctx, mock.Anything).Return(errors.New("connection refused"))

		assert.ErrorContains(t, notifier.PublishPriceAlert(ctx, sampleAlert()), "connection refused")
	})
}

func TestLogNotifier_PublishPriceAlert(t *testing.T) {
	var buf bytes.Buffer
	notifier := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, notifier.PublishPriceAlert(context.Background(), sampleAlert()))

	assert.Contains(t, buf.String(), `"msg":"price alert"`)
	assert.Contains(t, buf.String(), `"seed":"amnesia-haze"`)
	assert.Contains(t, buf.String(), `"reason":"target_price"`)
}

func TestRedisRealtimePublisher_PublishPriceUpdated(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes json on the channel", func(t *testing.T) {
		client := new(mockRedis)
		publisher := NewRedisRealtimePublisher(client, "", slog.Default())

		client.On("Publish", ctx, PriceUpdatedChannel, mock.MatchedBy(func(msg any) bool {
			data, ok := msg.([]byte)
			if !ok {
				return false
			}
			var event PriceUpdatedEvent
			if err := json.Unmarshal(data, &event); err != nil {
				return false
			}
			return event.SeedSlug == "og-kush" && event.Price == 24.5 && event.EventType == EventTypePriceUpdated
		})).Return(nil)

		err := publisher.PublishPriceUpdated(ctx, &PriceUpdatedEvent{
			SeedSlug: "og-kush", SeedbankSlug: "sensi-seeds", Price: 24.5, Currency: "EUR",
		})
		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("redis failure is returned", func(t *testing.T) {
		client := new(mockRedis)
		publisher := NewRedisRealtimePublisher(client, "prices", slog.Default())
		client.On("Publish", ctx, "prices", mock.Anything).Return(errors.New("closed"))

		assert.Error(t, publisher.PublishPriceUpdated(ctx, &PriceUpdatedEvent{}))
	})

	t.Run("nop publisher", func(t *testing.T) {
		assert.NoError(t, NopRealtimePublisher{}.PublishPriceUpdated(ctx, &PriceUpdatedEvent{}))
	})
}
