package service

import (
	"time"

	"printer_shutdown/internal/models"
)

// Shutdown thresholds. Comparisons are exact, without hysteresis.
const (
	idleFractionPrinted = 0.0
	maxBedTempC         = 50.0
)

// ShutdownWatch is the arm flag plus the polling gate. Only the control loop touches it.
type ShutdownWatch struct {
	Armed       bool
	LastCheck   time.Time
	CheckPeriod time.Duration
}

// Due reports whether a poll may start: strictly more than CheckPeriod since
// the end of the previous attempt.
func (w ShutdownWatch) Due(now time.Time) bool {
	return w.Armed && now.Sub(w.LastCheck) > w.CheckPeriod
}

// ShouldShutdown is the idle, no job, cooled bed predicate.
func ShouldShutdown(s models.PrinterSnapshot) bool {
	return s.Status == models.PrinterIdle &&
		s.FractionPrinted == idleFractionPrinted &&
		s.BedTempC < maxBedTempC
}
