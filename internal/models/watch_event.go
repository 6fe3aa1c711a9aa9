package models

import "time"

// Event types recorded in the watch log.
const (
	EventArmed          = "ARMED"
	EventDisarmed       = "DISARMED"
	EventShutdown       = "SHUTDOWN"
	EventShutdownFailed = "SHUTDOWN_FAILED"
	EventPollFailed     = "POLL_FAILED"
	EventNetwork        = "NETWORK"
)

// WatchEvent is a single log entry.
type WatchEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // ARMED | DISARMED | SHUTDOWN | SHUTDOWN_FAILED | POLL_FAILED | NETWORK
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}
