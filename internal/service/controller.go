package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"printer_shutdown/internal/gateway"
	"printer_shutdown/internal/input"
	"printer_shutdown/internal/logger"
	"printer_shutdown/internal/models"
	"printer_shutdown/internal/network"
	"printer_shutdown/internal/repository"
)

// StatusFetcher is the printer status poller.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (models.PrinterSnapshot, error)
}

// PowerSwitcher is the smart plug client.
type PowerSwitcher interface {
	PowerOff(ctx context.Context) error
}

// PressSource yields debounced button presses.
type PressSource interface {
	Poll(now time.Time) (input.PressEvent, bool)
}

// Indicators are the two panel LEDs.
type Indicators interface {
	SetArmedLED(on bool) error
	SetStatusLED(on bool) error
}

type ControllerConfig struct {
	CheckPeriod time.Duration
	BlinkPeriod time.Duration
}

// Controller owns the shutdown watch and runs the control loop. All state
// below mu is written only from Tick; other goroutines talk to it through
// Submit and read it through State.
type Controller struct {
	input      PressSource
	poller     StatusFetcher
	power      PowerSwitcher
	leds       Indicators
	statusRepo repository.StatusRepo
	eventRepo  repository.EventRepo
	log        *logger.Logger
	clock      func() time.Time

	commands  chan Command
	netEvents <-chan network.Event

	watch       ShutdownWatch
	blinkPeriod time.Duration
	started     time.Time
	netPhase    string
	armedLED    bool
	statusLED   bool
	lastSnap    *models.PrinterSnapshot
	lastErr     string
	shutdowns   int
	ledFailing  bool

	mu    sync.RWMutex
	state models.WatchState
}

type ControllerDeps struct {
	Input      PressSource
	Poller     StatusFetcher
	Power      PowerSwitcher
	LEDs       Indicators
	StatusRepo repository.StatusRepo
	EventRepo  repository.EventRepo
	NetEvents  <-chan network.Event
	Log        *logger.Logger
	Clock      func() time.Time
}

// NewController builds a disarmed controller whose polling gate starts at
// construction time.
func NewController(cfg ControllerConfig, deps ControllerDeps) *Controller {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	blink := cfg.BlinkPeriod
	if blink <= 0 {
		blink = 500 * time.Millisecond
	}
	now := clock()

	c := &Controller{
		input:       deps.Input,
		poller:      deps.Poller,
		power:       deps.Power,
		leds:        deps.LEDs,
		statusRepo:  deps.StatusRepo,
		eventRepo:   deps.EventRepo,
		log:         deps.Log,
		clock:       clock,
		commands:    make(chan Command, commandBuffer),
		netEvents:   deps.NetEvents,
		watch:       ShutdownWatch{LastCheck: now, CheckPeriod: cfg.CheckPeriod},
		blinkPeriod: blink,
		started:     now,
		netPhase:    models.NetworkProvisioning,
	}
	c.publish(models.PhaseDisarmed, now)
	return c
}

// Submit queues a command for the next tick without blocking. Kind aliases
// (on, off, lowercase) are normalized before queuing.
func (c *Controller) Submit(cmd Command) error {
	kind, err := ParseCommandKind(cmd.Kind)
	if err != nil {
		return err
	}
	cmd.Kind = kind
	select {
	case c.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// State returns the last published snapshot of the watch.
func (c *Controller) State() models.WatchState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := c.state
	if st.LastSnapshot != nil {
		snap := *st.LastSnapshot
		st.LastSnapshot = &snap
	}
	return st
}

// Run ticks at the given interval until ctx is canceled.
func (c *Controller) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()

	c.info("controller_started", "tick", tick, "check_period", c.watch.CheckPeriod)
	for {
		select {
		case <-ctx.Done():
			c.info("controller_stopped")
			return
		case <-t.C:
			c.Tick(ctx, c.clock())
		}
	}
}

// Tick runs one loop iteration: input, queued commands, connectivity, LEDs,
// then at most one poll and power-off attempt.
func (c *Controller) Tick(ctx context.Context, now time.Time) {
	if c.input != nil {
		if ev, ok := c.input.Poll(now); ok {
			c.setArmed(ctx, !c.watch.Armed, SourceButton, ev.At)
		}
	}
	c.drainCommands(ctx, now)
	c.drainNetwork(ctx)
	c.driveLEDs(now)

	if !c.watch.Due(now) || c.netPhase == models.NetworkDisconnected {
		c.publish(c.phase(), now)
		return
	}

	c.publish(models.PhaseArmedChecking, now)
	c.check(ctx)
	c.watch.LastCheck = c.clock()
	c.driveLEDs(c.watch.LastCheck)
	c.publish(c.phase(), c.watch.LastCheck)
}

func (c *Controller) check(ctx context.Context) {
	snap, err := c.poller.FetchStatus(ctx)
	if err != nil {
		c.lastErr = err.Error()
		c.logPollError("poll_failed", err)
		c.record(ctx, models.EventPollFailed, "printer status poll failed", map[string]any{
			"kind":  gateway.KindOf(err),
			"error": err.Error(),
		})
		return
	}

	c.lastErr = ""
	c.lastSnap = &snap
	c.info("printer_status", "status", snap.Status, "fraction_printed", snap.FractionPrinted, "bed_temp_c", snap.BedTempC)
	c.saveStatus(ctx, snap)

	if !ShouldShutdown(snap) {
		return
	}

	c.info("shutdown_triggered", "bed_temp_c", snap.BedTempC)
	if err := c.power.PowerOff(ctx); err != nil {
		c.lastErr = err.Error()
		c.logPollError("shutdown_failed", err)
		c.record(ctx, models.EventShutdownFailed, "power-off request failed, staying armed", map[string]any{
			"kind":  gateway.KindOf(err),
			"error": err.Error(),
		})
		return
	}

	c.shutdowns++
	c.watch.Armed = false
	c.info("printer_powered_off", "shutdowns", c.shutdowns)
	c.record(ctx, models.EventShutdown, "printer powered off", map[string]any{
		"status":           snap.Status,
		"fraction_printed": snap.FractionPrinted,
		"bed_temp_c":       snap.BedTempC,
	})
}

func (c *Controller) setArmed(ctx context.Context, armed bool, source string, at time.Time) {
	if armed == c.watch.Armed {
		return
	}
	c.watch.Armed = armed

	typ, desc, msg := models.EventDisarmed, "shutdown watch disarmed", "watch_disarmed"
	if armed {
		typ, desc, msg = models.EventArmed, "shutdown watch armed", "watch_armed"
	}
	c.info(msg, "source", source)
	c.recordAt(ctx, at, typ, desc, map[string]any{"source": source})
}

func (c *Controller) drainCommands(ctx context.Context, now time.Time) {
	for {
		select {
		case cmd := <-c.commands:
			c.setArmed(ctx, cmd.apply(c.watch.Armed), cmd.Source, now)
		default:
			return
		}
	}
}

func (c *Controller) drainNetwork(ctx context.Context) {
	if c.netEvents == nil {
		return
	}
	for {
		select {
		case ev, ok := <-c.netEvents:
			if !ok {
				c.netEvents = nil
				return
			}
			if ev.Phase == c.netPhase && ev.Phase != models.NetworkConnected {
				continue
			}
			c.netPhase = ev.Phase
			meta := map[string]any{"phase": ev.Phase}
			if ev.IP != "" {
				meta["ip"] = ev.IP
			}
			c.recordAt(ctx, ev.At, models.EventNetwork, "network "+ev.Phase, meta)
		default:
			return
		}
	}
}

// driveLEDs mirrors armed on the armed LED and the network phase on the
// status LED: solid while provisioning, blinking while disconnected, off
// once connected.
func (c *Controller) driveLEDs(now time.Time) {
	c.armedLED = c.watch.Armed

	switch c.netPhase {
	case models.NetworkProvisioning:
		c.statusLED = true
	case models.NetworkDisconnected:
		c.statusLED = (now.Sub(c.started)/c.blinkPeriod)%2 == 0
	default:
		c.statusLED = false
	}

	if c.leds == nil {
		return
	}
	err := errors.Join(c.leds.SetArmedLED(c.armedLED), c.leds.SetStatusLED(c.statusLED))
	switch {
	case err != nil && !c.ledFailing:
		c.ledFailing = true
		c.warn("led_write_failed", "error", err)
	case err == nil && c.ledFailing:
		c.ledFailing = false
		c.info("led_write_recovered")
	}
}

func (c *Controller) phase() string {
	if c.watch.Armed {
		return models.PhaseArmedWaiting
	}
	return models.PhaseDisarmed
}

func (c *Controller) publish(phase string, now time.Time) {
	st := models.WatchState{
		Armed:         c.watch.Armed,
		Phase:         phase,
		LastCheckAt:   c.watch.LastCheck.UTC(),
		CheckPeriodMs: c.watch.CheckPeriod.Milliseconds(),
		Network:       c.netPhase,
		ArmedLED:      c.armedLED,
		StatusLED:     c.statusLED,
		LastError:     c.lastErr,
		Shutdowns:     c.shutdowns,
		UpdatedAt:     now.UTC(),
	}
	if c.lastSnap != nil {
		snap := *c.lastSnap
		st.LastSnapshot = &snap
	}

	c.mu.Lock()
	c.state = st
	c.mu.Unlock()
}

func (c *Controller) saveStatus(ctx context.Context, snap models.PrinterSnapshot) {
	if c.statusRepo == nil {
		return
	}
	err := c.statusRepo.Save(ctx, models.PrinterStatus{
		ID:         1,
		Snapshot:   snap,
		Kind:       snap.Kind(),
		ObservedAt: snap.FetchedAt,
	})
	if err != nil {
		c.warn("status_save_failed", "error", err)
	}
}

func (c *Controller) record(ctx context.Context, typ, desc string, meta map[string]any) {
	c.recordAt(ctx, c.clock(), typ, desc, meta)
}

func (c *Controller) recordAt(ctx context.Context, at time.Time, typ, desc string, meta map[string]any) {
	if c.eventRepo == nil {
		return
	}
	err := c.eventRepo.Append(ctx, models.WatchEvent{
		OccurredAt:  at.UTC(),
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	})
	if err != nil {
		c.warn("event_append_failed", "type", typ, "error", err)
	}
}

func (c *Controller) logPollError(event string, err error) {
	if c.log == nil {
		return
	}
	var pe *gateway.PollError
	if errors.As(err, &pe) && pe.Kind == gateway.KindStatus {
		c.log.Warnw(event, "url", pe.URL, "status_code", pe.StatusCode)
		return
	}
	c.log.Errorw(event, "kind", gateway.KindOf(err), "error", err)
}

func (c *Controller) info(msg string, kv ...any) {
	if c.log != nil {
		c.log.Infow(msg, kv...)
	}
}

func (c *Controller) warn(msg string, kv ...any) {
	if c.log != nil {
		c.log.Warnw(msg, kv...)
	}
}
