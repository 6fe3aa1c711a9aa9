package network

import (
	"context"
	"time"

	"printer_shutdown/internal/logger"
	"printer_shutdown/internal/models"
)

const eventBuffer = 8

// Event is a connectivity phase change.
type Event struct {
	Phase string // PROVISIONING | CONNECTED | DISCONNECTED
	IP    string
	At    time.Time
}

// Sampler reports whether the host currently has a usable address, and which.
type Sampler func() (ip string, ok bool, err error)

// Monitor turns periodic samples into phase change events. It starts in
// PROVISIONING and stays there until the first successful sample.
type Monitor struct {
	sample   Sampler
	interval time.Duration
	events   chan Event
	log      *logger.Logger
	now      func() time.Time

	phase string
	ip    string
}

func NewMonitor(sample Sampler, interval time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		sample:   sample,
		interval: interval,
		events:   make(chan Event, eventBuffer),
		log:      log,
		now:      time.Now,
		phase:    models.NetworkProvisioning,
	}
}

// Events is drained by the control loop at the start of each tick.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Run samples immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m.log != nil {
		m.log.Infow("network_provisioning", "interval", m.interval)
	}
	m.Check()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check takes one sample and emits an event if the phase changed.
func (m *Monitor) Check() {
	ip, ok, err := m.sample()
	if err != nil && m.log != nil {
		m.log.Debugw("network_sample_failed", "error", err)
	}

	next := m.phase
	switch {
	case ok:
		next = models.NetworkConnected
	case m.phase == models.NetworkConnected:
		next = models.NetworkDisconnected
	}

	if next == m.phase && (next != models.NetworkConnected || ip == m.ip) {
		return
	}
	m.phase, m.ip = next, ip

	if m.log != nil {
		switch next {
		case models.NetworkConnected:
			m.log.Infow("network_connected", "ip", ip)
		case models.NetworkDisconnected:
			m.log.Warnw("network_disconnected")
		}
	}
	m.emit(Event{Phase: next, IP: ip, At: m.now()})
}

// emit never blocks the probing goroutine. When the buffer is full the
// oldest event is dropped, since only the latest phase matters.
func (m *Monitor) emit(ev Event) {
	for {
		select {
		case m.events <- ev:
			return
		default:
		}
		select {
		case dropped := <-m.events:
			if m.log != nil {
				m.log.Debugw("network_event_dropped", "phase", dropped.Phase)
			}
		default:
		}
	}
}
