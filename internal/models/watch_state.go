package models

import "time"

// Watch phases.
const (
	PhaseDisarmed      = "DISARMED"
	PhaseArmedWaiting  = "ARMED_WAITING"
	PhaseArmedChecking = "ARMED_CHECKING"
)

// Network phases reported by the connectivity monitor.
const (
	NetworkProvisioning = "PROVISIONING"
	NetworkConnected    = "CONNECTED"
	NetworkDisconnected = "DISCONNECTED"
)

// WatchState is the read-only view of the shutdown watch published by the control loop.
type WatchState struct {
	Armed         bool             `json:"armed"`
	Phase         string           `json:"phase"` // DISARMED | ARMED_WAITING | ARMED_CHECKING
	LastCheckAt   time.Time        `json:"last_check_at"`
	CheckPeriodMs int64            `json:"check_period_ms"`
	Network       string           `json:"network"`
	ArmedLED      bool             `json:"armed_led"`
	StatusLED     bool             `json:"status_led"`
	LastSnapshot  *PrinterSnapshot `json:"last_snapshot,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	Shutdowns     int              `json:"shutdowns"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
