package hardware

import (
	"errors"
	"fmt"
	"sync"

	gpiod "github.com/warthog618/go-gpiocdev"
)

type GPIOConfig struct {
	Chip            string
	ButtonPin       int
	ButtonActiveLow bool
	ArmedLEDPin     int
	StatusLEDPin    int
}

// GPIOPanel drives the panel through the Linux GPIO character device.
type GPIOPanel struct {
	mu        sync.Mutex
	chip      *gpiod.Chip
	button    *gpiod.Line
	armedLED  *gpiod.Line
	statusLED *gpiod.Line
}

// OpenGPIOPanel requests the button line as a pulled-up input and both LED
// lines as outputs, initially off. Any partially requested lines are
// released on failure.
func OpenGPIOPanel(cfg GPIOConfig) (*GPIOPanel, error) {
	chip, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer("printer-shutdown"))
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", cfg.Chip, err)
	}
	p := &GPIOPanel{chip: chip}

	buttonOpts := []gpiod.LineReqOption{gpiod.AsInput, gpiod.WithPullUp}
	if cfg.ButtonActiveLow {
		buttonOpts = append(buttonOpts, gpiod.AsActiveLow)
	}
	if p.button, err = chip.RequestLine(cfg.ButtonPin, buttonOpts...); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("request button pin %d: %w", cfg.ButtonPin, err)
	}
	if p.armedLED, err = chip.RequestLine(cfg.ArmedLEDPin, gpiod.AsOutput(0)); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("request armed led pin %d: %w", cfg.ArmedLEDPin, err)
	}
	if p.statusLED, err = chip.RequestLine(cfg.StatusLEDPin, gpiod.AsOutput(0)); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("request status led pin %d: %w", cfg.StatusLEDPin, err)
	}
	return p, nil
}

func (p *GPIOPanel) ButtonPressed() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.button == nil {
		return false, errors.New("button line not requested")
	}
	v, err := p.button.Value()
	if err != nil {
		return false, fmt.Errorf("read button: %w", err)
	}
	return v == 1, nil
}

func (p *GPIOPanel) SetArmedLED(on bool) error {
	return p.set(p.armedLED, "armed led", on)
}

func (p *GPIOPanel) SetStatusLED(on bool) error {
	return p.set(p.statusLED, "status led", on)
}

func (p *GPIOPanel) set(line *gpiod.Line, name string, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if line == nil {
		return fmt.Errorf("%s line not requested", name)
	}
	if err := line.SetValue(level(on)); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// Close turns both LEDs off and releases every line and the chip.
func (p *GPIOPanel) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, line := range []*gpiod.Line{p.armedLED, p.statusLED} {
		if line != nil {
			_ = line.SetValue(0)
		}
	}
	for name, line := range map[string]*gpiod.Line{
		"button":     p.button,
		"armed led":  p.armedLED,
		"status led": p.statusLED,
	} {
		if line == nil {
			continue
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s line: %w", name, err))
		}
	}
	p.button, p.armedLED, p.statusLED = nil, nil, nil

	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		p.chip = nil
	}
	return errors.Join(errs...)
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}
