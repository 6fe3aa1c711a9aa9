package models

import "time"

// Printer status codes as reported by RepRapFirmware in rr_status?type=3.
const (
	PrinterIdle       = "I"
	PrinterPrinting   = "P"
	PrinterPaused     = "A"
	PrinterPausing    = "D"
	PrinterResuming   = "R"
	PrinterBusy       = "B"
	PrinterSimulating = "M"
	PrinterHalted     = "H"
	PrinterOff        = "O"
)

// Coarse printer activity derived from the status code.
const (
	KindIdle     = "idle"
	KindPrinting = "printing"
	KindPaused   = "paused"
	KindOther    = "other"
)

// PrinterSnapshot is one parsed result of a status poll.
type PrinterSnapshot struct {
	Status          string    `json:"status"`           // single-letter firmware code, "" when absent
	FractionPrinted float64   `json:"fraction_printed"` // 0 when absent or not a number
	BedTempC        float64   `json:"bed_temp_c"`       // temps.bed.current, °C
	FetchedAt       time.Time `json:"fetched_at"`
}

// Kind maps the firmware code onto idle/printing/paused/other.
func (s PrinterSnapshot) Kind() string {
	switch s.Status {
	case PrinterIdle:
		return KindIdle
	case PrinterPrinting, PrinterResuming, PrinterSimulating:
		return KindPrinting
	case PrinterPaused, PrinterPausing:
		return KindPaused
	default:
		return KindOther
	}
}

// PrinterStatus is the last observed snapshot as kept in storage.
type PrinterStatus struct {
	ID         int             `json:"id"`
	Snapshot   PrinterSnapshot `json:"snapshot"`
	Kind       string          `json:"kind"`
	ObservedAt time.Time       `json:"observed_at"`
}
