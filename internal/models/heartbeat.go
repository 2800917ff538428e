package models

import "time"

// AFK status values understood by the collector
const (
	StatusAFK    = "afk"
	StatusNotAFK = "not-afk"
)

// Heartbeat is a single event sent to a collector bucket. Duration is
// serialized in seconds, matching the collector's event schema.
type Heartbeat struct {
	Timestamp time.Time              `json:"timestamp"`
	Duration  float64                `json:"duration"`
	Data      map[string]interface{} `json:"data"`
}

// NewWindowHeartbeat builds a heartbeat describing the focused window
func NewWindowHeartbeat(appID, title string, timestamp time.Time) Heartbeat {
	return Heartbeat{
		Timestamp: timestamp,
		Duration:  0,
		Data: map[string]interface{}{
			"app":   appID,
			"title": title,
		},
	}
}

// NewAFKHeartbeat builds a heartbeat describing the user's presence state
func NewAFKHeartbeat(wasIdle bool, timestamp time.Time, duration time.Duration) Heartbeat {
	status := StatusNotAFK
	if wasIdle {
		status = StatusAFK
	}
	return Heartbeat{
		Timestamp: timestamp,
		Duration:  duration.Seconds(),
		Data: map[string]interface{}{
			"status": status,
		},
	}
}

// Bucket describes a collector bucket to create at startup
type Bucket struct {
	ID       string `json:"-"`
	Type     string `json:"type"`
	Client   string `json:"client"`
	Hostname string `json:"hostname"`
}
