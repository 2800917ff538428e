package queue

import (
	"path/filepath"
	"testing"
	"time"

	"activity-agent/internal/database"
	"activity-agent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestQueue(t *testing.T) *HeartbeatQueue {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "agent.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewHeartbeatQueue(db.DB, zaptest.NewLogger(t))
}

func TestQueueEnqueueDequeue(t *testing.T) {
	q := newTestQueue(t)

	hb := models.NewWindowHeartbeat("org.gnome.Terminal", "shell", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, q.Enqueue("aw-watcher-window_host", hb, 2))

	pending, err := q.Dequeue(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	assert.Equal(t, "aw-watcher-window_host", pending[0].BucketID)
	assert.Equal(t, 2.0, pending[0].Pulsetime)
	assert.Equal(t, "org.gnome.Terminal", pending[0].Heartbeat.Data["app"])
	assert.Equal(t, "shell", pending[0].Heartbeat.Data["title"])
	assert.True(t, pending[0].Heartbeat.Timestamp.Equal(hb.Timestamp))
}

func TestQueueDequeueOrderAndLimit(t *testing.T) {
	q := newTestQueue(t)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		hb := models.NewAFKHeartbeat(false, base.Add(time.Duration(i)*time.Second), 0)
		require.NoError(t, q.Enqueue("aw-watcher-afk_host", hb, 186))
	}

	pending, err := q.Dequeue(3)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// Oldest first
	for i := 1; i < len(pending); i++ {
		assert.True(t, pending[i].ID > pending[i-1].ID)
	}
}

func TestQueueRemoveAndRetry(t *testing.T) {
	q := newTestQueue(t)

	hb := models.NewAFKHeartbeat(true, time.Now().UTC(), 450*time.Second)
	require.NoError(t, q.Enqueue("aw-watcher-afk_host", hb, 186))
	require.NoError(t, q.Enqueue("aw-watcher-afk_host", hb, 186))

	pending, err := q.Dequeue(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, q.Remove([]int64{pending[0].ID}))
	require.NoError(t, q.IncrementRetry([]int64{pending[1].ID}))

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Empty slices are no-ops
	require.NoError(t, q.Remove(nil))
	require.NoError(t, q.IncrementRetry(nil))
}

func TestQueueCleanupSparesRecentAndFresh(t *testing.T) {
	q := newTestQueue(t)

	hb := models.NewAFKHeartbeat(false, time.Now().UTC(), 0)
	require.NoError(t, q.Enqueue("aw-watcher-afk_host", hb, 186))

	// Recent entries with few retries survive cleanup
	require.NoError(t, q.CleanupOldHeartbeats(time.Hour))

	count, err := q.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
