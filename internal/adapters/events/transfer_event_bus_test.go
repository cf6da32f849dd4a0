package events

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialworks/eligibility-etl/internal/domain/entities"
	redisclient "github.com/trialworks/eligibility-etl/internal/infrastructure/clients/redis"
	"github.com/trialworks/eligibility-etl/pkg/config"
)

func setupBus(t *testing.T) (*miniredis.Miniredis, *RedisEventBus) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	client, err := redisclient.NewClient(&config.RedisConfig{Host: mr.Host(), Port: port})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisEventBus(client, "transfer.runs")
}

func waitForEvent(t *testing.T, events <-chan *entities.TransferEvent) *entities.TransferEvent {
	t.Helper()
	select {
	case event := <-events:
		require.NotNil(t, event)
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for transfer event")
		return nil
	}
}

func TestRedisEventBus_PublishSubscribeRoundTrip(t *testing.T) {
	_, bus := setupBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	summary := entities.NewTransferSummary()
	summary.Total = 3
	summary.Written = 2
	summary.Skipped = 1
	require.NoError(t, bus.Publish(ctx, entities.NewTransferEvent(entities.TransferEventRunCompleted, summary)))

	got := waitForEvent(t, events)
	assert.Equal(t, entities.TransferEventRunCompleted, got.EventType)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary.RunID, got.Summary.RunID)
	assert.Equal(t, 3, got.Summary.Total)
	assert.Equal(t, 2, got.Summary.Written)
	assert.Equal(t, 1, got.Summary.Skipped)
}

func TestRedisEventBus_SubscribeDropsMalformedPayload(t *testing.T) {
	mr, bus := setupBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	// A garbage payload must be dropped without killing the subscription.
	mr.Publish("transfer.runs", "{not json")

	summary := entities.NewTransferSummary()
	summary.Aborted = true
	summary.AbortedStudyID = "NCT00000001"
	require.NoError(t, bus.Publish(ctx, entities.NewTransferEvent(entities.TransferEventRunAborted, summary)))

	got := waitForEvent(t, events)
	assert.Equal(t, entities.TransferEventRunAborted, got.EventType)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "NCT00000001", got.Summary.AbortedStudyID)
}

func TestRedisEventBus_SubscribeClosesOnCancel(t *testing.T) {
	_, bus := setupBus(t)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-events:
		assert.False(t, ok, "event channel should be closed after cancel")
	case <-time.After(3 * time.Second):
		t.Fatal("event channel was not closed after cancel")
	}
}
