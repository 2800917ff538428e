package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"activity-agent/internal/models"

	"go.uber.org/zap"
)

// PendingHeartbeat is a queued heartbeat together with its delivery target
type PendingHeartbeat struct {
	ID        int64
	BucketID  string
	Heartbeat models.Heartbeat
	Pulsetime float64
}

// HeartbeatQueue persists heartbeats that could not be delivered so they can
// be retried after the collector becomes reachable again
type HeartbeatQueue struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHeartbeatQueue creates a new heartbeat queue
func NewHeartbeatQueue(db *sql.DB, logger *zap.Logger) *HeartbeatQueue {
	return &HeartbeatQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a heartbeat to the queue
func (q *HeartbeatQueue) Enqueue(bucketID string, heartbeat models.Heartbeat, pulsetime float64) error {
	data, err := json.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	_, err = q.db.Exec(`
		INSERT INTO pending_heartbeats (bucket_id, heartbeat_data, pulsetime, created_at, retry_count)
		VALUES (?, ?, ?, ?, 0)
	`, bucketID, string(data), pulsetime, time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue heartbeat: %w", err)
	}

	q.logger.Debug("Heartbeat enqueued",
		zap.String("bucket_id", bucketID),
		zap.Time("timestamp", heartbeat.Timestamp),
	)

	return nil
}

// Dequeue retrieves up to limit queued heartbeats, oldest first
func (q *HeartbeatQueue) Dequeue(limit int) ([]PendingHeartbeat, error) {
	rows, err := q.db.Query(`
		SELECT id, bucket_id, heartbeat_data, pulsetime
		FROM pending_heartbeats
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending heartbeats: %w", err)
	}
	defer rows.Close()

	var pending []PendingHeartbeat

	for rows.Next() {
		var p PendingHeartbeat
		var data string

		if err := rows.Scan(&p.ID, &p.BucketID, &data, &p.Pulsetime); err != nil {
			q.logger.Error("Failed to scan row", zap.Error(err))
			continue
		}

		if err := json.Unmarshal([]byte(data), &p.Heartbeat); err != nil {
			q.logger.Error("Failed to unmarshal heartbeat", zap.Error(err), zap.Int64("id", p.ID))
			// Remove corrupted entry
			q.db.Exec("DELETE FROM pending_heartbeats WHERE id = ?", p.ID)
			continue
		}

		pending = append(pending, p)
	}

	return pending, nil
}

// Remove removes heartbeats from the queue by their IDs
func (q *HeartbeatQueue) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "DELETE FROM pending_heartbeats WHERE id IN ("
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	result, err := q.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove heartbeats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	q.logger.Debug("Heartbeats removed from queue",
		zap.Int64("count", rowsAffected),
	)

	return nil
}

// IncrementRetry increments the retry count for heartbeats
func (q *HeartbeatQueue) IncrementRetry(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "UPDATE pending_heartbeats SET retry_count = retry_count + 1, last_attempt = ? WHERE id IN ("
	args := make([]interface{}, len(ids)+1)
	args[0] = time.Now()
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i+1] = id
	}
	query += ")"

	_, err := q.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}

	return nil
}

// PendingCount returns the number of queued heartbeats
func (q *HeartbeatQueue) PendingCount() (int, error) {
	var count int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM pending_heartbeats`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// CleanupOldHeartbeats removes heartbeats older than the specified duration
// that have repeatedly failed delivery
func (q *HeartbeatQueue) CleanupOldHeartbeats(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result, err := q.db.Exec(`
		DELETE FROM pending_heartbeats
		WHERE created_at < ? AND retry_count > 10
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old heartbeats: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		q.logger.Info("Cleaned up old heartbeats",
			zap.Int64("count", rowsAffected),
		)
	}

	return nil
}
