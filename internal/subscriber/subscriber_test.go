package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/11346070/HealthTrack/internal/models"
	"github.com/11346070/HealthTrack/internal/repository"
)

func alertPayload(t *testing.T, subjectID string) string {
	data, err := json.Marshal(&models.AlertEvent{
		AlertID:        "a-1",
		SubjectID:      subjectID,
		Timestamp:      1767970800,
		TriggeredRules: []string{"High heart rate: 130"},
	})
	require.NoError(t, err)
	return string(data)
}

func TestHandleMessage_ParsedAlert(t *testing.T) {
	sub := NewAlertSubscriber(nil, 10, zap.NewNop())

	sub.handleMessage(alertPayload(t, "s1"))

	recent := sub.Recent(10)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].Alert)
	assert.Equal(t, "s1", recent[0].Alert.SubjectID)
	assert.Empty(t, recent[0].Raw)
}

func TestHandleMessage_MalformedPayloadKeptAsRaw(t *testing.T) {
	sub := NewAlertSubscriber(nil, 10, zap.NewNop())

	sub.handleMessage("not json at all")

	recent := sub.Recent(10)
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].Alert)
	assert.Equal(t, "not json at all", recent[0].Raw)
}

func TestRing_CapacityEvictsOldest(t *testing.T) {
	ring := NewRing(3)

	for i := 1; i <= 4; i++ {
		ring.Push(models.RecentAlert{Raw: fmt.Sprintf("m%d", i)})
	}

	assert.Equal(t, 3, ring.Len())
	snapshot := ring.Snapshot(0)
	require.Len(t, snapshot, 3)
	// most-recent-first; the oldest original entry is gone
	assert.Equal(t, "m4", snapshot[0].Raw)
	assert.Equal(t, "m3", snapshot[1].Raw)
	assert.Equal(t, "m2", snapshot[2].Raw)
}

func TestRing_SnapshotLimit(t *testing.T) {
	ring := NewRing(10)
	for i := 1; i <= 5; i++ {
		ring.Push(models.RecentAlert{Raw: fmt.Sprintf("m%d", i)})
	}

	snapshot := ring.Snapshot(2)
	require.Len(t, snapshot, 2)
	assert.Equal(t, "m5", snapshot[0].Raw)
	assert.Equal(t, "m4", snapshot[1].Raw)
}

func TestStart_ReceivesLiveBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	alertRepo := repository.NewAlertRepository(client, "health:alerts", "alerts", zap.NewNop())

	sub := NewAlertSubscriber(alertRepo, 10, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = sub.Start(ctx)
		close(done)
	}()

	// wait for the subscription to be live, then publish
	require.Eventually(t, func() bool {
		n, err := client.Publish(ctx, "alerts", alertPayload(t, "s2")).Result()
		return err == nil && n > 0
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		recent := sub.Recent(10)
		return len(recent) >= 1 && recent[0].Alert != nil && recent[0].Alert.SubjectID == "s2"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop after cancellation")
	}
}
