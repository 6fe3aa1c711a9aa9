package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"printer_shutdown/internal/gateway"
	"printer_shutdown/internal/input"
	"printer_shutdown/internal/models"
	"printer_shutdown/internal/network"
)

const testPeriod = 5 * time.Second

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type pollResult struct {
	snap models.PrinterSnapshot
	err  error
}

// fakePoller returns results in order, repeating the last one. Each call
// advances the clock by latency to model a blocking request.
type fakePoller struct {
	clock   *manualClock
	latency time.Duration
	results []pollResult
	starts  []time.Time
	ends    []time.Time
}

func (p *fakePoller) FetchStatus(ctx context.Context) (models.PrinterSnapshot, error) {
	p.starts = append(p.starts, p.clock.Now())
	p.clock.Advance(p.latency)
	p.ends = append(p.ends, p.clock.Now())

	i := len(p.starts) - 1
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	return p.results[i].snap, p.results[i].err
}

type fakePower struct {
	errs  []error
	calls int
}

func (p *fakePower) PowerOff(ctx context.Context) error {
	p.calls++
	if len(p.errs) == 0 {
		return nil
	}
	i := p.calls - 1
	if i >= len(p.errs) {
		i = len(p.errs) - 1
	}
	return p.errs[i]
}

type fakeButton struct {
	pending int
}

func (b *fakeButton) Poll(now time.Time) (input.PressEvent, bool) {
	if b.pending == 0 {
		return input.PressEvent{}, false
	}
	b.pending--
	return input.PressEvent{At: now}, true
}

type fakeLEDs struct {
	armed, status bool
	err           error
}

func (l *fakeLEDs) SetArmedLED(on bool) error  { l.armed = on; return l.err }
func (l *fakeLEDs) SetStatusLED(on bool) error { l.status = on; return l.err }

type fakeStatusRepo struct {
	saved   []models.PrinterStatus
	loaded  models.PrinterStatus
	loadErr error
	saveErr error
}

func (r *fakeStatusRepo) Save(ctx context.Context, s models.PrinterStatus) error {
	r.saved = append(r.saved, s)
	return r.saveErr
}

func (r *fakeStatusRepo) Load(ctx context.Context) (models.PrinterStatus, error) {
	return r.loaded, r.loadErr
}

type localEventRepo struct {
	appendErr error
	events    []models.WatchEvent
	listErr   error
	lastLimit int
}

func (f *localEventRepo) Append(ctx context.Context, e models.WatchEvent) error {
	f.events = append(f.events, e)
	return f.appendErr
}

func (f *localEventRepo) List(ctx context.Context, from, to time.Time, typ string, limit int) ([]models.WatchEvent, error) {
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.WatchEvent
	for _, e := range f.events {
		if (!from.IsZero() && e.OccurredAt.Before(from)) || (!to.IsZero() && e.OccurredAt.After(to)) {
			continue
		}
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *localEventRepo) types() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	clock  *manualClock
	poller *fakePoller
	power  *fakePower
	button *fakeButton
	leds   *fakeLEDs
	status *fakeStatusRepo
	events *localEventRepo
	net    chan network.Event
	ctrl   *Controller
}

func newHarness(t *testing.T, results ...pollResult) *harness {
	t.Helper()
	h := &harness{
		clock:  &manualClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)},
		power:  &fakePower{},
		button: &fakeButton{},
		leds:   &fakeLEDs{},
		status: &fakeStatusRepo{},
		events: &localEventRepo{},
		net:    make(chan network.Event, 8),
	}
	h.poller = &fakePoller{clock: h.clock, latency: 200 * time.Millisecond, results: results}
	h.ctrl = NewController(ControllerConfig{CheckPeriod: testPeriod, BlinkPeriod: 500 * time.Millisecond}, ControllerDeps{
		Input:      h.button,
		Poller:     h.poller,
		Power:      h.power,
		LEDs:       h.leds,
		StatusRepo: h.status,
		EventRepo:  h.events,
		NetEvents:  h.net,
		Clock:      h.clock.Now,
	})
	return h
}

// step advances the clock and runs one tick.
func (h *harness) step(d time.Duration) {
	h.clock.Advance(d)
	h.ctrl.Tick(context.Background(), h.clock.Now())
}

// run ticks every 10ms for the given duration.
func (h *harness) run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += 10 * time.Millisecond {
		h.step(10 * time.Millisecond)
	}
}

func (h *harness) arm(t *testing.T) {
	t.Helper()
	h.button.pending = 1
	h.step(10 * time.Millisecond)
	if !h.ctrl.State().Armed {
		t.Fatal("press did not arm the watch")
	}
}

var idleCool = models.PrinterSnapshot{Status: "I", FractionPrinted: 0, BedTempC: 49.9}

func TestShouldShutdown(t *testing.T) {
	tests := []struct {
		name string
		snap models.PrinterSnapshot
		want bool
	}{
		{name: "idle cooled", snap: idleCool, want: true},
		{name: "cold bed", snap: models.PrinterSnapshot{Status: "I", BedTempC: 21}, want: true},
		{name: "bed exactly 50", snap: models.PrinterSnapshot{Status: "I", BedTempC: 50}},
		{name: "bed hot", snap: models.PrinterSnapshot{Status: "I", BedTempC: 60}},
		{name: "job fraction left over", snap: models.PrinterSnapshot{Status: "I", FractionPrinted: 0.001, BedTempC: 20}},
		{name: "printing", snap: models.PrinterSnapshot{Status: "P", BedTempC: 20}},
		{name: "paused", snap: models.PrinterSnapshot{Status: "A", BedTempC: 20}},
		{name: "missing status", snap: models.PrinterSnapshot{BedTempC: 20}},
		{name: "lowercase idle", snap: models.PrinterSnapshot{Status: "i", BedTempC: 20}},
		{name: "simulating hot", snap: models.PrinterSnapshot{Status: "M", FractionPrinted: 0.45, BedTempC: 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldShutdown(tt.snap); got != tt.want {
				t.Fatalf("ShouldShutdown(%+v) = %v, want %v", tt.snap, got, tt.want)
			}
		})
	}
}

func TestController_StartsDisarmedAndNeverPolls(t *testing.T) {
	h := newHarness(t, pollResult{snap: idleCool})

	st := h.ctrl.State()
	if st.Armed || st.Phase != models.PhaseDisarmed {
		t.Fatalf("initial state = %+v", st)
	}
	h.run(30 * time.Second)
	if len(h.poller.starts) != 0 || h.power.calls != 0 {
		t.Fatalf("disarmed controller polled %d times, powered off %d times", len(h.poller.starts), h.power.calls)
	}
}

func TestController_IdleCooledShutsDownOnce(t *testing.T) {
	h := newHarness(t, pollResult{snap: idleCool})
	h.arm(t)

	h.run(20 * time.Second)

	if h.power.calls != 1 {
		t.Fatalf("power-off calls = %d, want 1", h.power.calls)
	}
	st := h.ctrl.State()
	if st.Armed || st.Phase != models.PhaseDisarmed || st.ArmedLED {
		t.Fatalf("state after shutdown = %+v", st)
	}
	if st.Shutdowns != 1 {
		t.Fatalf("shutdowns = %d", st.Shutdowns)
	}
	if len(h.poller.starts) != 1 {
		t.Fatalf("polls after shutdown = %d, want 1", len(h.poller.starts))
	}
	if got := h.events.types(); len(got) != 2 || got[0] != models.EventArmed || got[1] != models.EventShutdown {
		t.Fatalf("events = %v", got)
	}
}

func TestController_PowerOffFailureStaysArmed(t *testing.T) {
	plugErr := &gateway.PollError{Op: "power off", Kind: gateway.KindStatus, StatusCode: http.StatusInternalServerError}
	h := newHarness(t, pollResult{snap: idleCool})
	h.power.errs = []error{plugErr, plugErr, nil}
	h.arm(t)

	h.run(testPeriod + time.Second)
	if h.power.calls != 1 || !h.ctrl.State().Armed {
		t.Fatalf("after first failure: calls=%d armed=%v", h.power.calls, h.ctrl.State().Armed)
	}
	if h.ctrl.State().LastError == "" {
		t.Fatal("last error not published")
	}

	// No backoff: the very next eligible window retries.
	h.run(testPeriod + time.Second)
	if h.power.calls != 2 || !h.ctrl.State().Armed {
		t.Fatalf("after second failure: calls=%d armed=%v", h.power.calls, h.ctrl.State().Armed)
	}

	h.run(testPeriod + time.Second)
	if h.power.calls != 3 || h.ctrl.State().Armed {
		t.Fatalf("after success: calls=%d armed=%v", h.power.calls, h.ctrl.State().Armed)
	}

	var failed int
	for _, typ := range h.events.types() {
		if typ == models.EventShutdownFailed {
			failed++
		}
	}
	if failed != 2 {
		t.Fatalf("SHUTDOWN_FAILED events = %d, want 2", failed)
	}
}

func TestController_NonMatchingSnapshotsNeverPowerOff(t *testing.T) {
	snaps := []models.PrinterSnapshot{
		{Status: "P", FractionPrinted: 12, BedTempC: 60},
		{Status: "I", FractionPrinted: 0, BedTempC: 50},
		{Status: "I", FractionPrinted: 100, BedTempC: 25},
		{Status: "A", FractionPrinted: 0, BedTempC: 25},
		{Status: "", FractionPrinted: 0, BedTempC: 0},
	}
	var results []pollResult
	for _, s := range snaps {
		results = append(results, pollResult{snap: s})
	}
	h := newHarness(t, results...)
	h.arm(t)

	h.run(time.Duration(len(snaps)+1) * (testPeriod + time.Second))

	if len(h.poller.starts) < len(snaps) {
		t.Fatalf("polls = %d, want >= %d", len(h.poller.starts), len(snaps))
	}
	if h.power.calls != 0 {
		t.Fatalf("power-off calls = %d, want 0", h.power.calls)
	}
	if !h.ctrl.State().Armed {
		t.Fatal("watch disarmed without a shutdown")
	}
}

func TestController_SimulatingHotResetsGate(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "M", FractionPrinted: 0.45, BedTempC: 60}})
	h.arm(t)

	before := h.ctrl.State().LastCheckAt
	h.run(testPeriod + 100*time.Millisecond)

	st := h.ctrl.State()
	if h.power.calls != 0 || !st.Armed {
		t.Fatalf("calls=%d armed=%v", h.power.calls, st.Armed)
	}
	if len(h.poller.ends) != 1 {
		t.Fatalf("polls = %d, want 1", len(h.poller.ends))
	}
	if !st.LastCheckAt.Equal(h.poller.ends[0]) || !st.LastCheckAt.After(before) {
		t.Fatalf("last check = %v, want end of attempt %v", st.LastCheckAt, h.poller.ends[0])
	}
	if st.Phase != models.PhaseArmedWaiting {
		t.Fatalf("phase = %s", st.Phase)
	}
	if st.LastSnapshot == nil || st.LastSnapshot.Status != "M" {
		t.Fatalf("last snapshot = %+v", st.LastSnapshot)
	}
	if len(h.status.saved) != 1 || h.status.saved[0].Kind != models.KindPrinting {
		t.Fatalf("saved status = %+v", h.status.saved)
	}
}

func TestController_PollsSpacedUnderFailures(t *testing.T) {
	timeout := &gateway.PollError{Op: "fetch status", Kind: gateway.KindTimeout, Err: context.DeadlineExceeded}
	h := newHarness(t, pollResult{err: timeout})
	h.poller.latency = 5 * time.Second // each attempt burns the whole timeout
	h.arm(t)

	h.run(time.Minute)

	if len(h.poller.starts) < 3 {
		t.Fatalf("polls = %d, want several", len(h.poller.starts))
	}
	for i := 1; i < len(h.poller.starts); i++ {
		gap := h.poller.starts[i].Sub(h.poller.ends[i-1])
		if gap <= testPeriod {
			t.Fatalf("poll %d started %v after previous attempt ended, want > %v", i, gap, testPeriod)
		}
	}
	st := h.ctrl.State()
	if !st.Armed || st.LastError == "" {
		t.Fatalf("state = %+v", st)
	}
	if len(h.status.saved) != 0 {
		t.Fatal("failed polls must not overwrite the last observed status")
	}
	if h.events.types()[1] != models.EventPollFailed {
		t.Fatalf("events = %v", h.events.types())
	}
}

func TestController_GateIsStrict(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "P"}})
	// Arm at t0 without moving the clock so the gate is exactly the period.
	h.button.pending = 1
	h.ctrl.Tick(context.Background(), h.clock.Now())

	h.step(testPeriod)
	if len(h.poller.starts) != 0 {
		t.Fatal("polled at exactly check_period")
	}
	h.step(time.Millisecond)
	if len(h.poller.starts) != 1 {
		t.Fatalf("polls = %d, want 1", len(h.poller.starts))
	}
}

func TestController_TwoPressesRestoreState(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "P"}})

	for i, want := range []bool{true, false, true, false} {
		h.button.pending = 1
		h.step(10 * time.Millisecond)
		st := h.ctrl.State()
		if st.Armed != want || h.leds.armed != want || st.ArmedLED != want {
			t.Fatalf("press %d: armed=%v led=%v published led=%v, want %v", i+1, st.Armed, h.leds.armed, st.ArmedLED, want)
		}
	}
	if got := h.events.types(); len(got) != 4 || got[0] != models.EventArmed || got[3] != models.EventDisarmed {
		t.Fatalf("events = %v", got)
	}
}

func TestController_Commands(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "P"}})

	steps := []struct {
		kind string
		want bool
	}{
		{CommandArm, true},
		{CommandArm, true},
		{CommandToggle, false},
		{CommandDisarm, false},
		{CommandToggle, true},
	}
	for _, s := range steps {
		if err := h.ctrl.Submit(Command{Kind: s.kind, Source: SourceAPI}); err != nil {
			t.Fatalf("Submit(%s): %v", s.kind, err)
		}
		h.step(10 * time.Millisecond)
		if got := h.ctrl.State().Armed; got != s.want {
			t.Fatalf("after %s armed = %v, want %v", s.kind, got, s.want)
		}
	}
	// Redundant ARM/DISARM produce no events.
	if got := len(h.events.events); got != 3 {
		t.Fatalf("events = %v", h.events.types())
	}
	if src := h.events.events[0].Metadata.(map[string]any)["source"]; src != SourceAPI {
		t.Fatalf("source = %v", src)
	}
}

func TestController_SubmitNormalizesAliases(t *testing.T) {
	tests := []struct {
		kind      string
		wantArmed bool
	}{
		{kind: "on", wantArmed: true},
		{kind: "arm", wantArmed: true},
		{kind: " toggle ", wantArmed: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			h := newHarness(t, pollResult{})
			if err := h.ctrl.Submit(Command{Kind: tt.kind, Source: SourceAPI}); err != nil {
				t.Fatalf("Submit(%q): %v", tt.kind, err)
			}
			h.step(10 * time.Millisecond)
			if got := h.ctrl.State().Armed; got != tt.wantArmed {
				t.Fatalf("armed = %v after %q, want %v", got, tt.kind, tt.wantArmed)
			}

			if err := h.ctrl.Submit(Command{Kind: "off", Source: SourceAPI}); err != nil {
				t.Fatalf("Submit(off): %v", err)
			}
			h.step(10 * time.Millisecond)
			if h.ctrl.State().Armed {
				t.Fatal("off must disarm")
			}
		})
	}
}

func TestController_SubmitValidation(t *testing.T) {
	h := newHarness(t, pollResult{})

	if err := h.ctrl.Submit(Command{Kind: "REBOOT"}); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("err = %v", err)
	}
	for i := 0; i < commandBuffer; i++ {
		if err := h.ctrl.Submit(Command{Kind: CommandToggle}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := h.ctrl.Submit(Command{Kind: CommandToggle}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	h.step(10 * time.Millisecond)
	if h.ctrl.State().Armed {
		t.Fatal("an even number of toggles must leave the watch disarmed")
	}
}

func TestController_DisconnectSuspendsPollingKeepsArmed(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "P"}})
	h.net <- network.Event{Phase: models.NetworkConnected, IP: "192.168.100.20", At: h.clock.Now()}
	h.arm(t)

	h.net <- network.Event{Phase: models.NetworkDisconnected, At: h.clock.Now()}
	h.run(3 * testPeriod)

	st := h.ctrl.State()
	if len(h.poller.starts) != 0 {
		t.Fatalf("polled %d times while disconnected", len(h.poller.starts))
	}
	if !st.Armed || st.Network != models.NetworkDisconnected {
		t.Fatalf("state = %+v", st)
	}

	// Gate already elapsed: the first tick after reconnect polls.
	h.net <- network.Event{Phase: models.NetworkConnected, IP: "192.168.100.20", At: h.clock.Now()}
	h.step(10 * time.Millisecond)
	if len(h.poller.starts) != 1 {
		t.Fatalf("polls after reconnect = %d, want 1", len(h.poller.starts))
	}
}

func TestController_StatusLED(t *testing.T) {
	h := newHarness(t, pollResult{})

	h.step(10 * time.Millisecond)
	if !h.leds.status {
		t.Fatal("status LED must be solid while provisioning")
	}

	h.net <- network.Event{Phase: models.NetworkConnected, IP: "10.0.0.5"}
	h.step(10 * time.Millisecond)
	if h.leds.status {
		t.Fatal("status LED must be off when connected")
	}

	h.net <- network.Event{Phase: models.NetworkDisconnected}
	seen := map[bool]bool{}
	for i := 0; i < 20; i++ {
		h.step(100 * time.Millisecond)
		seen[h.leds.status] = true
	}
	if !seen[true] || !seen[false] {
		t.Fatal("status LED must blink while disconnected")
	}

	var netEvents int
	for _, typ := range h.events.types() {
		if typ == models.EventNetwork {
			netEvents++
		}
	}
	if netEvents != 2 {
		t.Fatalf("NETWORK events = %d, want 2", netEvents)
	}
}

func TestController_RepoAndLEDErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t, pollResult{snap: idleCool})
	h.events.appendErr = errors.New("disk full")
	h.status.saveErr = errors.New("disk full")
	h.leds.err = errors.New("line busy")
	h.arm(t)

	h.run(testPeriod + time.Second)
	if h.power.calls != 1 || h.ctrl.State().Armed {
		t.Fatalf("calls=%d armed=%v", h.power.calls, h.ctrl.State().Armed)
	}
}

func TestController_StateIsACopy(t *testing.T) {
	h := newHarness(t, pollResult{snap: models.PrinterSnapshot{Status: "P", BedTempC: 60}})
	h.arm(t)
	h.run(testPeriod + time.Second)

	st := h.ctrl.State()
	if st.LastSnapshot == nil {
		t.Fatal("no snapshot published")
	}
	st.LastSnapshot.Status = "X"
	if h.ctrl.State().LastSnapshot.Status != "P" {
		t.Fatal("State leaked internal snapshot")
	}
}

func TestController_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, pollResult{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx, time.Millisecond)
		close(done)
	}()
	if err := h.ctrl.Submit(Command{Kind: CommandArm, Source: SourceAPI}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.After(time.Second)
	for !h.ctrl.State().Armed {
		select {
		case <-deadline:
			t.Fatal("Run never applied the queued command")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
