package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/models"
)

func setupAlertRepo(t *testing.T) (*redis.Client, *AlertRepository) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewAlertRepository(client, "health:alerts", "alerts", zap.NewNop())
	return client, repo
}

func testAlert() *models.AlertEvent {
	return &models.AlertEvent{
		AlertID:        "alert-1",
		SubjectID:      "s1",
		Timestamp:      1767970800,
		TriggeredRules: []string{"High heart rate: 130"},
		Source: models.TelemetryEvent{
			SubjectID: "s1",
			HeartRate: 130,
			Timestamp: 1767970800,
		},
	}
}

func TestAppend_WritesDurableLogEntry(t *testing.T) {
	client, repo := setupAlertRepo(t)
	ctx := context.Background()

	id, err := repo.Append(ctx, testAlert())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "health:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "s1", msgs[0].Values["subject_id"])

	var stored models.AlertEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["info"].(string)), &stored))
	assert.Equal(t, []string{"High heart rate: 130"}, stored.TriggeredRules)
}

func TestPublish_DeliversToLiveSubscriber(t *testing.T) {
	client, repo := setupAlertRepo(t)
	ctx := context.Background()

	pubsub := client.Subscribe(ctx, "alerts")
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx) // wait for the subscription to be active
	require.NoError(t, err)

	require.NoError(t, repo.Publish(ctx, testAlert()))

	select {
	case msg := <-pubsub.Channel():
		var got models.AlertEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "s1", got.SubjectID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected alert broadcast was not delivered")
	}
}

func TestReadAlertsAfter_ResumesFromCursor(t *testing.T) {
	_, repo := setupAlertRepo(t)
	ctx := context.Background()

	first, err := repo.Append(ctx, testAlert())
	require.NoError(t, err)
	_, err = repo.Append(ctx, testAlert())
	require.NoError(t, err)

	msgs, err := repo.ReadAlertsAfter(ctx, first, 50*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Greater(t, msgs[0].ID, first)
}
