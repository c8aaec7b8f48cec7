package gpioin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/morroware/djpower-dmx/internal/config"
	"github.com/morroware/djpower-dmx/internal/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(config.LogConf{Level: "error"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	return log
}

type fakeLine struct {
	mu     sync.Mutex
	level  bool
	err    error
	closed bool
}

func (l *fakeLine) Read() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	return l.level, nil
}

func (l *fakeLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLine) set(level bool, err error) {
	l.mu.Lock()
	l.level = level
	l.err = err
	l.mu.Unlock()
}

func (l *fakeLine) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type triggerCounter struct {
	mu    sync.Mutex
	count int
}

func (c *triggerCounter) fire() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *triggerCounter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle waits for a few poll cycles so the monitor observes the
// current line level.
func settle() { time.Sleep(20 * time.Millisecond) }

type monitorHarness struct {
	monitor  *Monitor
	line     *fakeLine
	clock    *fakeClock
	triggers *triggerCounter
	opens    *triggerCounter
	stop     func()
}

func newHarness(t *testing.T) *monitorHarness {
	t.Helper()
	h := &monitorHarness{
		line:     &fakeLine{level: true}, // pull-up idle: high
		clock:    &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
		triggers: &triggerCounter{},
		opens:    &triggerCounter{},
	}
	open := func(pin string) (Line, error) {
		h.opens.fire()
		return h.line, nil
	}
	h.monitor = New(testLogger(t), "GPIO17", 300*time.Millisecond, open, h.triggers.fire)
	h.monitor.poll = time.Millisecond
	h.monitor.now = h.clock.Now

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); h.monitor.Run(ctx) }()
	h.stop = func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("monitor did not stop")
		}
	}
	return h
}

// closure simulates a full contact press: line low, a few polls, line
// high again.
func (h *monitorHarness) closure() {
	h.line.set(false, nil)
	settle()
	h.line.set(true, nil)
	settle()
}

func TestClosureFiresTrigger(t *testing.T) {
	h := newHarness(t)
	defer h.stop()

	settle() // observe idle-high first
	h.closure()

	eventually(t, "one trigger", func() bool { return h.triggers.value() == 1 })
	if st := h.monitor.Status(); !st.Available {
		t.Errorf("status = %+v, want available", st)
	}
}

// TestDebounceSuppressesBounce: two closures inside the debounce window
// yield one trigger; a third outside the window fires again.
func TestDebounceSuppressesBounce(t *testing.T) {
	h := newHarness(t)
	defer h.stop()

	settle()
	h.closure()
	eventually(t, "first trigger", func() bool { return h.triggers.value() == 1 })

	h.clock.Advance(100 * time.Millisecond) // still inside 300ms window
	h.closure()
	settle()
	if got := h.triggers.value(); got != 1 {
		t.Fatalf("triggers = %d after bounce, want 1", got)
	}

	h.clock.Advance(400 * time.Millisecond) // outside the window
	h.closure()
	eventually(t, "second trigger", func() bool { return h.triggers.value() == 2 })
}

// TestHoldingClosedFiresOnce: only the edge triggers, not the level.
func TestHoldingClosedFiresOnce(t *testing.T) {
	h := newHarness(t)
	defer h.stop()

	settle()
	h.line.set(false, nil)
	time.Sleep(50 * time.Millisecond)

	if got := h.triggers.value(); got != 1 {
		t.Errorf("triggers = %d while held closed, want 1", got)
	}
	if st := h.monitor.Status(); st.State != StateClosed {
		t.Errorf("state = %q, want closed", st.State)
	}
}

// TestReadErrorsReinitializeLine: three consecutive read failures tear
// the line down and re-acquire it; triggering works again afterwards.
func TestReadErrorsReinitializeLine(t *testing.T) {
	h := newHarness(t)
	defer h.stop()

	settle()
	h.line.set(true, errors.New("read failed"))

	eventually(t, "line teardown", func() bool { return h.line.isClosed() })
	h.line.set(true, nil)
	eventually(t, "line re-acquired", func() bool { return h.opens.value() >= 2 })

	settle()
	h.closure()
	eventually(t, "trigger after reinit", func() bool { return h.triggers.value() >= 1 })
}

// TestUnavailablePlatformIsPermanent: no GPIO at all degrades to a
// permanent unavailable status instead of failing the process.
func TestUnavailablePlatformIsPermanent(t *testing.T) {
	open := func(pin string) (Line, error) {
		return nil, ErrUnavailable
	}
	m := New(testLogger(t), "GPIO17", 300*time.Millisecond, open, func() {})
	m.poll = time.Millisecond

	done := make(chan struct{})
	go func() { defer close(done); m.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor kept running on an unavailable platform")
	}

	st := m.Status()
	if st.Available || st.State != StateUnavailable {
		t.Errorf("status = %+v, want unavailable", st)
	}
}
