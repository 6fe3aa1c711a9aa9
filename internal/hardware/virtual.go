package hardware

import (
	"errors"
	"sync"
)

var ErrPanelClosed = errors.New("panel closed")

// VirtualPanel is an in-memory panel for hosts without GPIO and for tests.
type VirtualPanel struct {
	mu        sync.Mutex
	pressed   bool
	readErr   error
	armedLED  bool
	statusLED bool
	closed    bool
}

func NewVirtualPanel() *VirtualPanel {
	return &VirtualPanel{}
}

// SetButton sets the raw button level seen by the next ButtonPressed call.
func (v *VirtualPanel) SetButton(pressed bool) {
	v.mu.Lock()
	v.pressed = pressed
	v.mu.Unlock()
}

// FailReads makes ButtonPressed return err until called again with nil.
func (v *VirtualPanel) FailReads(err error) {
	v.mu.Lock()
	v.readErr = err
	v.mu.Unlock()
}

func (v *VirtualPanel) ButtonPressed() (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false, ErrPanelClosed
	}
	if v.readErr != nil {
		return false, v.readErr
	}
	return v.pressed, nil
}

func (v *VirtualPanel) SetArmedLED(on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrPanelClosed
	}
	v.armedLED = on
	return nil
}

func (v *VirtualPanel) SetStatusLED(on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrPanelClosed
	}
	v.statusLED = on
	return nil
}

// LEDs reports the current armed and status LED levels.
func (v *VirtualPanel) LEDs() (armed, status bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armedLED, v.statusLED
}

func (v *VirtualPanel) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.armedLED, v.statusLED = false, false
	return nil
}
