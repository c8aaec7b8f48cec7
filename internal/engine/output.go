package engine

import (
	"context"
	"sync"
	"time"

	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/logger"
	"github.com/morroware/djpower-dmx/internal/transport"
)

// Reconnect policy: after maxSendFailures consecutive send errors the
// transport is discarded and reopened with doubling backoff.
const (
	maxSendFailures = 3
	backoffStart    = time.Second
	backoffCeiling  = 10 * time.Second
)

// LinkStatus is the transport health published for status reporting.
type LinkStatus struct {
	Connected bool
	LastError string
	Running   bool
}

// FrameSource yields the current wire frame. The output loop does not
// care why the frame changed, only that it sends the latest one.
type FrameSource func() [dmx.FrameBytes]byte

// Opener creates a fresh transport. The loop owns the handle it gets
// back; nothing else in the process touches the serial link.
type Opener func() (transport.Transport, error)

// OutputLoop streams the channel frame to the fixture at a fixed rate
// and recovers the transport on failure. It never stops on its own;
// only context cancellation ends it.
type OutputLoop struct {
	log    logger.Logger
	source FrameSource
	open   Opener

	interval   time.Duration
	backoffMin time.Duration
	backoffMax time.Duration

	mu        sync.Mutex
	connected bool
	lastError string
	running   bool
}

// NewOutputLoop builds the loop for the given refresh rate in Hz.
func NewOutputLoop(log logger.Logger, source FrameSource, open Opener, refreshRate int) *OutputLoop {
	return &OutputLoop{
		log:        log,
		source:     source,
		open:       open,
		interval:   time.Second / time.Duration(refreshRate),
		backoffMin: backoffStart,
		backoffMax: backoffCeiling,
	}
}

// Status returns the current link health.
func (o *OutputLoop) Status() LinkStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return LinkStatus{Connected: o.connected, LastError: o.lastError, Running: o.running}
}

func (o *OutputLoop) setLink(connected bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = connected
	if err != nil {
		o.lastError = err.Error()
	} else if connected {
		o.lastError = ""
	}
}

func (o *OutputLoop) setRunning(running bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = running
}

// Run sends frames until ctx is cancelled. Transport errors are handled
// entirely here: they surface only through Status, never to callers of
// the controller.
func (o *OutputLoop) Run(ctx context.Context) {
	log := o.log.With(logger.Fields{"module": "output"})
	log.Infof("dmx output started (%v per frame)", o.interval)

	o.setRunning(true)
	defer o.setRunning(false)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	var tr transport.Transport
	defer func() {
		if tr != nil {
			tr.Close()
		}
	}()

	failures := 0
	backoff := o.backoffMin

	for {
		if tr == nil {
			t, err := o.open()
			if err != nil {
				o.setLink(false, err)
				log.Warnf("dmx adapter unavailable: %v (retrying in %v)", err, backoff)
				if !sleepCtx(ctx, backoff) {
					return
				}
				backoff = min(backoff*2, o.backoffMax)
				continue
			}
			tr = t
			failures = 0
			backoff = o.backoffMin
			o.setLink(true, nil)
			log.Info("dmx adapter connected")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := o.source()
		if err := tr.Send(frame[:]); err != nil {
			failures++
			log.Warnf("dmx send error (%d/%d): %v", failures, maxSendFailures, err)
			if failures >= maxSendFailures {
				o.setLink(false, err)
				tr.Close()
				tr = nil
				backoff = o.backoffMin
				log.Error("too many consecutive dmx failures, reopening adapter")
			}
			continue
		}
		o.setLink(true, nil)
		failures = 0
	}
}

// sleepCtx waits for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
