package input

import "time"

// Debouncer turns a noisy raw level into clean press edges. A level change
// must hold for the whole window before it is accepted.
type Debouncer struct {
	window    time.Duration
	stable    bool
	candidate bool
	changedAt time.Time
	primed    bool
}

func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Update feeds one raw sample. It reports true exactly once per accepted
// released→pressed transition.
func (d *Debouncer) Update(now time.Time, raw bool) bool {
	if !d.primed {
		// The first sample only establishes the idle level, so a button held
		// during boot does not toggle the watch.
		d.primed = true
		d.stable, d.candidate, d.changedAt = raw, raw, now
		return false
	}

	if raw != d.candidate {
		d.candidate = raw
		d.changedAt = now
	}
	if d.candidate == d.stable || now.Sub(d.changedAt) < d.window {
		return false
	}

	d.stable = d.candidate
	return d.stable
}

// Pressed reports the current debounced level.
func (d *Debouncer) Pressed() bool {
	return d.stable
}
