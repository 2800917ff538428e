package watcher

import "time"

// ReportClient is the reporting capability both watchers drive. It must be
// safe to call concurrently from multiple watcher loops; no ordering is
// guaranteed across distinct calls.
type ReportClient interface {
	// SendActiveWindow reports the focused window's identity
	SendActiveWindow(appID, title string) error
	// Ping reports the user's presence state at the given instant
	Ping(wasIdle bool, timestamp time.Time, duration time.Duration) error
}

// Watcher is a long-lived observation loop. Watch blocks forever and returns
// only on an unrecoverable session failure, which the caller should treat as
// process-fatal.
type Watcher interface {
	Watch(client ReportClient) error
}
