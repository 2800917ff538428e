package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"activity-agent/internal/models"
	"activity-agent/internal/queue"

	"go.uber.org/zap"
)

const (
	bucketTypeWindow = "currentwindow"
	bucketTypeAFK    = "afkstatus"
	clientName       = "activity-agent"

	flushBatchSize = 50
)

// ReportClient delivers heartbeats to a collector server. It is safe for
// concurrent use from multiple watcher loops: configuration is read-only
// after construction and http.Client and the sqlite queue are thread-safe.
// No ordering is guaranteed across distinct calls.
type ReportClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	queue      *queue.HeartbeatQueue

	hostname       string
	windowBucketID string
	afkBucketID    string

	// Pulsetime tells the collector how large a gap between consecutive
	// heartbeats may be merged into one event.
	windowPulsetime float64
	afkPulsetime    float64

	flushInterval time.Duration
	flushTicker   *time.Ticker
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// Options carries the reporting parameters derived from configuration
type Options struct {
	BaseURL            string
	Timeout            time.Duration
	Hostname           string
	PollIntervalWindow time.Duration
	PollIntervalIdle   time.Duration
	IdleTimeout        time.Duration
	FlushInterval      time.Duration
}

// NewReportClient creates a new report client. The queue may be nil, in which
// case undeliverable heartbeats are dropped after logging.
func NewReportClient(opts Options, hbQueue *queue.HeartbeatQueue, logger *zap.Logger) *ReportClient {
	return &ReportClient{
		baseURL: opts.BaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger:          logger,
		queue:           hbQueue,
		hostname:        opts.Hostname,
		windowBucketID:  fmt.Sprintf("aw-watcher-window_%s", opts.Hostname),
		afkBucketID:     fmt.Sprintf("aw-watcher-afk_%s", opts.Hostname),
		windowPulsetime: (opts.PollIntervalWindow + time.Second).Seconds(),
		afkPulsetime:    (opts.IdleTimeout + opts.PollIntervalIdle + time.Second).Seconds(),
		flushInterval:   opts.FlushInterval,
		stopChan:        make(chan struct{}),
	}
}

// EnsureBuckets creates the window and AFK buckets on the collector.
// Creating a bucket that already exists is not an error.
func (c *ReportClient) EnsureBuckets() error {
	buckets := []models.Bucket{
		{ID: c.windowBucketID, Type: bucketTypeWindow, Client: clientName, Hostname: c.hostname},
		{ID: c.afkBucketID, Type: bucketTypeAFK, Client: clientName, Hostname: c.hostname},
	}

	for _, bucket := range buckets {
		if err := c.createBucket(bucket); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket.ID, err)
		}
	}

	return nil
}

func (c *ReportClient) createBucket(bucket models.Bucket) error {
	jsonData, err := json.Marshal(bucket)
	if err != nil {
		return fmt.Errorf("failed to marshal bucket: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/0/buckets/%s", c.baseURL, url.PathEscape(bucket.ID))
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// 304 means the bucket already exists
	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusNotModified {
		c.logger.Info("Bucket ready",
			zap.String("bucket_id", bucket.ID),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return &BackendError{
		Message:    fmt.Sprintf("collector returned status %d: %s", resp.StatusCode, string(body)),
		StatusCode: resp.StatusCode,
	}
}

// SendActiveWindow reports the currently focused window
func (c *ReportClient) SendActiveWindow(appID, title string) error {
	heartbeat := models.NewWindowHeartbeat(appID, title, time.Now().UTC())
	return c.sendHeartbeat(c.windowBucketID, heartbeat, c.windowPulsetime)
}

// Ping reports the user's presence state at the given instant. For idle
// intervals, duration is the length of the interval closing at timestamp.
func (c *ReportClient) Ping(wasIdle bool, timestamp time.Time, duration time.Duration) error {
	heartbeat := models.NewAFKHeartbeat(wasIdle, timestamp, duration)
	return c.sendHeartbeat(c.afkBucketID, heartbeat, c.afkPulsetime)
}

func (c *ReportClient) sendHeartbeat(bucketID string, heartbeat models.Heartbeat, pulsetime float64) error {
	if err := c.postHeartbeat(bucketID, heartbeat, pulsetime); err != nil {
		c.logger.Warn("Failed to deliver heartbeat",
			zap.Error(err),
			zap.String("bucket_id", bucketID),
		)

		if c.queue != nil {
			if qErr := c.queue.Enqueue(bucketID, heartbeat, pulsetime); qErr != nil {
				c.logger.Error("Failed to enqueue heartbeat", zap.Error(qErr))
			}
		}

		return err
	}

	return nil
}

func (c *ReportClient) postHeartbeat(bucketID string, heartbeat models.Heartbeat, pulsetime float64) error {
	jsonData, err := json.Marshal(heartbeat)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/0/buckets/%s/heartbeat?pulsetime=%s",
		c.baseURL,
		url.PathEscape(bucketID),
		strconv.FormatFloat(pulsetime, 'f', -1, 64),
	)

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("Heartbeat sent",
			zap.String("bucket_id", bucketID),
			zap.Time("timestamp", heartbeat.Timestamp),
		)
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return &BackendError{
		Message:    fmt.Sprintf("collector returned status %d: %s", resp.StatusCode, string(body)),
		StatusCode: resp.StatusCode,
	}
}

// StartFlusher begins periodic redelivery of queued heartbeats
func (c *ReportClient) StartFlusher() {
	if c.queue == nil || c.flushInterval <= 0 {
		return
	}

	c.flushTicker = time.NewTicker(c.flushInterval)
	c.wg.Add(1)
	go c.flushLoop()

	c.logger.Info("Heartbeat flusher started",
		zap.Duration("flush_interval", c.flushInterval),
	)
}

// StopFlusher stops the periodic redelivery loop
func (c *ReportClient) StopFlusher() {
	if c.flushTicker == nil {
		return
	}

	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	c.wg.Wait()
	c.flushTicker.Stop()
	c.logger.Info("Heartbeat flusher stopped")
}

func (c *ReportClient) flushLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.flushTicker.C:
			if err := c.FlushQueued(); err != nil {
				c.logger.Warn("Queue flush incomplete", zap.Error(err))
			}
		case <-c.stopChan:
			return
		}
	}
}

// FlushQueued attempts to redeliver queued heartbeats, removing the ones the
// collector accepted and bumping the retry count on the rest
func (c *ReportClient) FlushQueued() error {
	if c.queue == nil {
		return nil
	}

	pending, err := c.queue.Dequeue(flushBatchSize)
	if err != nil {
		return fmt.Errorf("failed to dequeue heartbeats: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var delivered, failed []int64
	for _, p := range pending {
		if err := c.postHeartbeat(p.BucketID, p.Heartbeat, p.Pulsetime); err != nil {
			failed = append(failed, p.ID)
			continue
		}
		delivered = append(delivered, p.ID)
	}

	if err := c.queue.Remove(delivered); err != nil {
		return fmt.Errorf("failed to remove delivered heartbeats: %w", err)
	}
	if err := c.queue.IncrementRetry(failed); err != nil {
		return fmt.Errorf("failed to record retries: %w", err)
	}

	if len(delivered) > 0 {
		c.logger.Info("Redelivered queued heartbeats",
			zap.Int("delivered", len(delivered)),
			zap.Int("failed", len(failed)),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d heartbeats still undeliverable", len(failed))
	}
	return nil
}
