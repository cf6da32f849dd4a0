package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	"github.com/trialworks/eligibility-etl/internal/domain/repositories"
	redisclient "github.com/trialworks/eligibility-etl/internal/infrastructure/clients/redis"
)

// RedisEventBus publishes transfer lifecycle events over Redis Pub/Sub so
// downstream consumers (dashboards, alerting) can watch run outcomes.
type RedisEventBus struct {
	client  *redisclient.Client
	channel string
}

var _ repositories.TransferEventBus = (*RedisEventBus)(nil)

// NewRedisEventBus creates a new Redis-based transfer event bus.
func NewRedisEventBus(client *redisclient.Client, channel string) *RedisEventBus {
	return &RedisEventBus{client: client, channel: channel}
}

// Publish publishes a run summary event.
func (b *RedisEventBus) Publish(ctx context.Context, event *entities.TransferEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer event: %w", err)
	}

	if err := b.client.Client().Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish transfer event: %w", err)
	}

	log.Debug().Str("channel", b.channel).Str("event_id", event.ID).
		Str("event_type", string(event.EventType)).Msg("Published transfer event")
	return nil
}

// Subscribe delivers transfer events published on the bus's channel until
// ctx is cancelled. Used by operational tooling watching run outcomes.
func (b *RedisEventBus) Subscribe(ctx context.Context) (<-chan *entities.TransferEvent, error) {
	pubsub := b.client.Client().Subscribe(ctx, b.channel)

	// Confirm the subscription before handing back the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	eventChan := make(chan *entities.TransferEvent, 16)
	go func() {
		defer close(eventChan)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event entities.TransferEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Warn().Err(err).Str("channel", b.channel).Msg("Dropping malformed transfer event")
					continue
				}
				select {
				case eventChan <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}
