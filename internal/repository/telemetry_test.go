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

func setupTelemetryRepo(t *testing.T) (*miniredis.Miniredis, *redis.Client, *TelemetryRepository) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewTelemetryRepository(client, "health:events", zap.NewNop())
	return mr, client, repo
}

func testEvent(subjectID string, ts int64) *models.TelemetryEvent {
	return &models.TelemetryEvent{
		SubjectID:   subjectID,
		HeartRate:   72,
		BPSystolic:  118,
		BPDiastolic: 76,
		Temperature: 36.6,
		Timestamp:   ts,
	}
}

func TestCommitEvent_WritesAllThreeEffects(t *testing.T) {
	_, client, repo := setupTelemetryRepo(t)
	ctx := context.Background()

	ev := testEvent("s1", 1767970800)
	entryID, err := repo.CommitEvent(ctx, ev)

	require.NoError(t, err)
	assert.NotEmpty(t, entryID)

	// snapshot
	val, err := client.Get(ctx, "subject:s1:latest").Result()
	require.NoError(t, err)
	var snap models.TelemetryEvent
	require.NoError(t, json.Unmarshal([]byte(val), &snap))
	assert.Equal(t, *ev, snap)

	// log entry
	length, err := client.XLen(ctx, "health:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)

	msgs, err := client.XRange(ctx, "health:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, entryID, msgs[0].ID)
	assert.Equal(t, "s1", msgs[0].Values["subject_id"])

	// history index entry keyed by timestamp
	hist, err := client.ZRangeByScore(ctx, "subject:s1:hr:history", &redis.ZRangeBy{
		Min: "1767970800", Max: "1767970800",
	}).Result()
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestGetSnapshot_ReturnsLastCommittedEvent(t *testing.T) {
	_, _, repo := setupTelemetryRepo(t)
	ctx := context.Background()

	first := testEvent("s1", 1000)
	_, err := repo.CommitEvent(ctx, first)
	require.NoError(t, err)

	got, err := repo.GetSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, *first, *got)

	// newer commit overwrites the snapshot verbatim
	second := testEvent("s1", 2000)
	second.HeartRate = 95
	_, err = repo.CommitEvent(ctx, second)
	require.NoError(t, err)

	got, err = repo.GetSnapshot(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, *second, *got)
}

func TestGetSnapshot_Miss(t *testing.T) {
	_, _, repo := setupTelemetryRepo(t)

	_, err := repo.GetSnapshot(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestAllSnapshots_ScansEverySubject(t *testing.T) {
	_, _, repo := setupTelemetryRepo(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := repo.CommitEvent(ctx, testEvent(id, 1000))
		require.NoError(t, err)
	}

	snaps, err := repo.AllSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)
}

func TestReadEventsAfter_ReturnsEntriesInOrder(t *testing.T) {
	_, _, repo := setupTelemetryRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.CommitEvent(ctx, testEvent("s1", int64(1000+i)))
		require.NoError(t, err)
	}

	msgs, err := repo.ReadEventsAfter(ctx, "0-0", 50*time.Millisecond, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Less(t, msgs[0].ID, msgs[1].ID)
	assert.Less(t, msgs[1].ID, msgs[2].ID)

	// reading strictly after the last entry returns nothing
	more, err := repo.ReadEventsAfter(ctx, msgs[2].ID, 50*time.Millisecond, 10)
	require.NoError(t, err)
	assert.Empty(t, more)
}
