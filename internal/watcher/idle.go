package watcher

import (
	"fmt"
	"time"

	"activity-agent/internal/config"
	"activity-agent/internal/idle"

	"go.uber.org/zap"
)

// transitionOffset separates the ping that closes one presence interval from
// the ping that opens the next. The downstream collector deduplicates events
// by timestamp; without the offset it would keep only one of the two
// boundary events. The exact value is part of the collector contract.
const transitionOffset = time.Millisecond

// idleSample is one reading of the OS idle counter
type idleSample struct {
	secondsSinceInput uint32
	now               time.Time
	lastInput         time.Time
}

func newIdleSample(secondsSinceInput uint32, now time.Time) idleSample {
	return idleSample{
		secondsSinceInput: secondsSinceInput,
		now:               now,
		lastInput:         now.Add(-time.Duration(secondsSinceInput) * time.Second),
	}
}

// presencePing is one heartbeat for the presence bucket
type presencePing struct {
	wasIdle   bool
	timestamp time.Time
	duration  time.Duration
}

// transition decides the next presence state and the pings to emit for one
// poll tick. On a state change it emits two pings: one closing the previous
// interval at lastInput, one opening the new state at lastInput plus
// transitionOffset. With no change it emits a single keep-alive ping whose
// duration is the idle time so far (zero while active).
func transition(isIdle bool, sample idleSample, timeout time.Duration) (bool, []presencePing) {
	sinceInput := time.Duration(sample.secondsSinceInput) * time.Second

	switch {
	case isIdle && sinceInput < timeout:
		// User has returned
		return false, []presencePing{
			{wasIdle: true, timestamp: sample.lastInput, duration: 0},
			{wasIdle: true, timestamp: sample.lastInput.Add(transitionOffset), duration: 0},
		}
	case !isIdle && sinceInput >= timeout:
		// User has gone idle
		return true, []presencePing{
			{wasIdle: false, timestamp: sample.lastInput, duration: 0},
			{wasIdle: false, timestamp: sample.lastInput.Add(transitionOffset), duration: sinceInput},
		}
	case isIdle:
		return true, []presencePing{
			{wasIdle: true, timestamp: sample.lastInput, duration: sinceInput},
		}
	default:
		return false, []presencePing{
			{wasIdle: false, timestamp: sample.lastInput, duration: 0},
		}
	}
}

// IdleWatcher polls the OS idle counter and reports presence heartbeats,
// debouncing idle/active transitions against the configured timeout
type IdleWatcher struct {
	source       idle.Source
	pollInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger
}

// NewIdleWatcher acquires an idle counter, verified with one trial read.
// Fails fast when no counter is supported on this session.
func NewIdleWatcher(cfg *config.Config, logger *zap.Logger) (*IdleWatcher, error) {
	log := logger.Named("idle")

	source, err := idle.NewSource(log)
	if err != nil {
		return nil, err
	}

	return &IdleWatcher{
		source:       source,
		pollInterval: cfg.PollIntervalIdle(),
		timeout:      cfg.IdleTimeout(),
		logger:       log,
	}, nil
}

// Watch runs the poll loop forever, starting from the active state. Errors
// from sampling or reporting leave the state unchanged for the next tick.
func (w *IdleWatcher) Watch(client ReportClient) error {
	w.logger.Info("Starting idle watcher",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("idle_timeout", w.timeout),
	)

	isIdle := false
	for {
		next, err := w.tick(isIdle, client)
		if err != nil {
			w.logger.Error("Error on idle iteration", zap.Error(err))
		} else {
			isIdle = next
		}

		time.Sleep(w.pollInterval)
	}
}

func (w *IdleWatcher) tick(isIdle bool, client ReportClient) (bool, error) {
	seconds, err := w.source.SecondsSinceLastInput()
	if err != nil {
		return isIdle, err
	}

	sample := newIdleSample(seconds, time.Now().UTC())
	next, pings := transition(isIdle, sample, w.timeout)

	if next != isIdle {
		if next {
			w.logger.Debug("Idle again",
				zap.Uint32("seconds_since_input", seconds),
			)
		} else {
			w.logger.Debug("No longer idle")
		}
	}

	for _, p := range pings {
		if err := client.Ping(p.wasIdle, p.timestamp, p.duration); err != nil {
			return isIdle, fmt.Errorf("failed to report presence: %w", err)
		}
	}

	return next, nil
}
