package hardware

// Panel is the physical front of the device: one push button and two LEDs.
// Levels are logical: true means pressed / lit regardless of wiring polarity.
type Panel interface {
	ButtonPressed() (bool, error)
	SetArmedLED(on bool) error
	SetStatusLED(on bool) error
	Close() error
}
