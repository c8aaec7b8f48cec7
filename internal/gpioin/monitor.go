// Package gpioin watches the contact-closure input and fires the
// trigger on a debounced closure edge. The line is active-low: pulled
// high by the internal pull-up, pulled low when the contact closes.
package gpioin

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/morroware/djpower-dmx/internal/logger"
)

const (
	defaultPoll = 50 * time.Millisecond
	// maxReadFailures read errors in a row tear the line down and
	// re-acquire it from scratch.
	maxReadFailures = 3
	// reinitDelay spaces out re-acquisition attempts when the line
	// cannot be opened.
	reinitDelay = 5 * time.Second
)

// ErrUnavailable marks a platform without the GPIO line at all. The
// monitor reports unavailable permanently and the process keeps running
// on the API path alone.
var ErrUnavailable = errors.New("gpio unavailable")

// Line is one acquired digital input.
type Line interface {
	// Read reports the current level, true meaning high (contact open).
	Read() (bool, error)
	Close() error
}

// Opener acquires the named line. The monitor calls it again after a
// teardown, so implementations must be reusable.
type Opener func(pin string) (Line, error)

// Input-line states exposed through Status.
const (
	StateOpen        = "open"
	StateClosed      = "closed"
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

type Status struct {
	Available bool
	State     string
}

// Monitor polls the contact line and calls fire on accepted closures.
type Monitor struct {
	log      logger.Logger
	pin      string
	open     Opener
	fire     func()
	debounce time.Duration
	poll     time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state string
}

func New(log logger.Logger, pin string, debounce time.Duration, open Opener, fire func()) *Monitor {
	return &Monitor{
		log:      log,
		pin:      pin,
		open:     open,
		fire:     fire,
		debounce: debounce,
		poll:     defaultPoll,
		now:      time.Now,
		state:    StateUnknown,
	}
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Available: m.state != StateUnavailable, State: m.state}
}

func (m *Monitor) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Run watches the line until ctx is cancelled. The loop is a small
// state machine: reading while the line is healthy, retrying a bounded
// number of reads, then tearing down and re-initializing the line.
func (m *Monitor) Run(ctx context.Context) {
	log := m.log.With(logger.Fields{"module": "gpio"})

	var line Line
	defer func() {
		if line != nil {
			line.Close()
		}
	}()

	failures := 0
	var lastLevel bool
	haveLast := false
	var lastTrigger time.Time

	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()

	for {
		if line == nil {
			l, err := m.open(m.pin)
			if err != nil {
				if errors.Is(err, ErrUnavailable) {
					m.setState(StateUnavailable)
					log.Warnf("gpio not available, trigger input disabled: %v", err)
					return
				}
				m.setState(StateUnknown)
				log.Warnf("gpio init failed: %v (retrying in %v)", err, reinitDelay)
				if !wait(ctx, reinitDelay) {
					return
				}
				continue
			}
			line = l
			failures = 0
			haveLast = false
			log.Infof("monitoring %s with pull-up", m.pin)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		level, err := line.Read()
		if err != nil {
			failures++
			log.Warnf("gpio read error (%d/%d): %v", failures, maxReadFailures, err)
			if failures >= maxReadFailures {
				log.Error("too many gpio read errors, re-initializing line")
				line.Close()
				line = nil
				m.setState(StateUnknown)
			}
			continue
		}
		failures = 0

		if level {
			m.setState(StateOpen)
		} else {
			m.setState(StateClosed)
		}

		// Falling edge = contact closure. Accept it only outside the
		// debounce window of the previous accepted edge.
		if haveLast && lastLevel && !level {
			now := m.now()
			if lastTrigger.IsZero() || now.Sub(lastTrigger) >= m.debounce {
				lastTrigger = now
				log.Info("contact closure detected")
				m.fire()
			}
		}
		lastLevel = level
		haveLast = true
	}
}

func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
