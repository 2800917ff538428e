package watcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordedPing struct {
	wasIdle   bool
	timestamp time.Time
	duration  time.Duration
}

type fakeReportClient struct {
	pings   []recordedPing
	windows [][2]string
	pingErr error
	sendErr error
}

func (f *fakeReportClient) SendActiveWindow(appID, title string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.windows = append(f.windows, [2]string{appID, title})
	return nil
}

func (f *fakeReportClient) Ping(wasIdle bool, timestamp time.Time, duration time.Duration) error {
	if f.pingErr != nil {
		return f.pingErr
	}
	f.pings = append(f.pings, recordedPing{wasIdle: wasIdle, timestamp: timestamp, duration: duration})
	return nil
}

type fakeIdleSource struct {
	seconds uint32
	err     error
}

func (f *fakeIdleSource) SecondsSinceLastInput() (uint32, error) {
	return f.seconds, f.err
}

func (f *fakeIdleSource) Close() error { return nil }

const testTimeout = 300 * time.Second

func TestTransitionActiveStaysActiveBelowTimeout(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sample := newIdleSample(299, now)

	isIdle, pings := transition(false, sample, testTimeout)

	assert.False(t, isIdle)
	require.Len(t, pings, 1)
	assert.False(t, pings[0].wasIdle)
	assert.Equal(t, now.Add(-299*time.Second), pings[0].timestamp)
	assert.Equal(t, time.Duration(0), pings[0].duration)
}

func TestTransitionActiveGoesIdleAtTimeout(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sample := newIdleSample(300, now)
	lastInput := now.Add(-300 * time.Second)

	isIdle, pings := transition(false, sample, testTimeout)

	assert.True(t, isIdle)
	require.Len(t, pings, 2)

	// First ping closes the active interval at the moment input stopped
	assert.False(t, pings[0].wasIdle)
	assert.Equal(t, lastInput, pings[0].timestamp)
	assert.Equal(t, time.Duration(0), pings[0].duration)

	// Second ping opens the idle interval 1ms later, carrying the idle time
	assert.False(t, pings[1].wasIdle)
	assert.Equal(t, lastInput.Add(time.Millisecond), pings[1].timestamp)
	assert.Equal(t, 300*time.Second, pings[1].duration)
}

func TestTransitionIdleReturnsToActive(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)
	sample := newIdleSample(5, now)
	lastInput := now.Add(-5 * time.Second)

	isIdle, pings := transition(true, sample, testTimeout)

	assert.False(t, isIdle)
	require.Len(t, pings, 2)

	assert.True(t, pings[0].wasIdle)
	assert.Equal(t, lastInput, pings[0].timestamp)
	assert.Equal(t, time.Duration(0), pings[0].duration)

	assert.True(t, pings[1].wasIdle)
	assert.Equal(t, lastInput.Add(time.Millisecond), pings[1].timestamp)
	assert.Equal(t, time.Duration(0), pings[1].duration)
}

func TestTransitionIdleStaysIdle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 20, 0, 0, time.UTC)
	sample := newIdleSample(450, now)

	isIdle, pings := transition(true, sample, testTimeout)

	assert.True(t, isIdle)
	require.Len(t, pings, 1)
	assert.True(t, pings[0].wasIdle)
	assert.Equal(t, now.Add(-450*time.Second), pings[0].timestamp)
	assert.Equal(t, 450*time.Second, pings[0].duration)
}

func TestTransitionNoChangeIsIdempotent(t *testing.T) {
	now := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)

	isIdle := false
	for i := 0; i < 5; i++ {
		sample := newIdleSample(10, now.Add(time.Duration(i)*5*time.Second))
		var pings []presencePing
		isIdle, pings = transition(isIdle, sample, testTimeout)

		assert.False(t, isIdle)
		require.Len(t, pings, 1)
		assert.False(t, pings[0].wasIdle)
	}

	isIdle = true
	for i := 0; i < 5; i++ {
		sample := newIdleSample(600, now.Add(time.Duration(i)*5*time.Second))
		var pings []presencePing
		isIdle, pings = transition(isIdle, sample, testTimeout)

		assert.True(t, isIdle)
		require.Len(t, pings, 1)
		assert.True(t, pings[0].wasIdle)
	}
}

func TestIdleWatcherTickFullCycle(t *testing.T) {
	source := &fakeIdleSource{seconds: 299}
	client := &fakeReportClient{}
	w := &IdleWatcher{
		source:       source,
		pollInterval: 5 * time.Second,
		timeout:      testTimeout,
		logger:       zaptest.NewLogger(t),
	}

	// Below the threshold: one active keep-alive
	isIdle, err := w.tick(false, client)
	require.NoError(t, err)
	assert.False(t, isIdle)
	require.Len(t, client.pings, 1)

	// Threshold reached: transition to idle with two pings
	source.seconds = 300
	isIdle, err = w.tick(isIdle, client)
	require.NoError(t, err)
	assert.True(t, isIdle)
	require.Len(t, client.pings, 3)
	assert.Equal(t, 300*time.Second, client.pings[2].duration)
	assert.Equal(t, time.Millisecond, client.pings[2].timestamp.Sub(client.pings[1].timestamp))

	// User returns: transition back to active with two pings
	source.seconds = 5
	isIdle, err = w.tick(isIdle, client)
	require.NoError(t, err)
	assert.False(t, isIdle)
	require.Len(t, client.pings, 5)
	assert.True(t, client.pings[3].wasIdle)
	assert.True(t, client.pings[4].wasIdle)
}

func TestIdleWatcherTickSampleErrorKeepsState(t *testing.T) {
	source := &fakeIdleSource{err: errors.New("counter gone")}
	client := &fakeReportClient{}
	w := &IdleWatcher{
		source:  source,
		timeout: testTimeout,
		logger:  zaptest.NewLogger(t),
	}

	isIdle, err := w.tick(true, client)
	assert.Error(t, err)
	assert.True(t, isIdle, "a failed sample must not change the idle state")
	assert.Empty(t, client.pings)
}

func TestIdleWatcherTickReportErrorKeepsState(t *testing.T) {
	source := &fakeIdleSource{seconds: 600}
	client := &fakeReportClient{pingErr: errors.New("collector down")}
	w := &IdleWatcher{
		source:  source,
		timeout: testTimeout,
		logger:  zaptest.NewLogger(t),
	}

	// A transition would flip the state, but the report failed
	isIdle, err := w.tick(false, client)
	assert.Error(t, err)
	assert.False(t, isIdle, "a failed report must not change the idle state")
}
