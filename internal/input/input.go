package input

import (
	"time"

	"printer_shutdown/internal/logger"
)

// Source reads the raw button level.
type Source interface {
	ButtonPressed() (bool, error)
}

// PressEvent is a debounced button press.
type PressEvent struct {
	At time.Time
}

// Input is the debounced button consumed by the control loop.
type Input struct {
	src    Source
	deb    *Debouncer
	log    *logger.Logger
	failed bool
}

func New(src Source, window time.Duration, log *logger.Logger) *Input {
	return &Input{src: src, deb: NewDebouncer(window), log: log}
}

// Poll samples the button once. A failing read is logged once per failure
// streak and counts as "no press".
func (in *Input) Poll(now time.Time) (PressEvent, bool) {
	raw, err := in.src.ButtonPressed()
	if err != nil {
		if !in.failed && in.log != nil {
			in.log.Warnw("button_read_failed", "error", err)
		}
		in.failed = true
		return PressEvent{}, false
	}
	if in.failed && in.log != nil {
		in.log.Infow("button_read_recovered")
	}
	in.failed = false

	if in.deb.Update(now, raw) {
		return PressEvent{At: now}, true
	}
	return PressEvent{}, false
}
