// Package engine owns the live DMX state: the channel frame, the scene
// presets and the trigger countdown, plus the output loop that streams
// the frame to the fixture. All mutations are serialized by one mutex so
// a scene apply and its trigger-state change are observed atomically.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/morroware/djpower-dmx/internal/config"
	"github.com/morroware/djpower-dmx/internal/dmx"
	"github.com/morroware/djpower-dmx/internal/logger"
)

// Active-scene labels beyond the four lettered slots.
const (
	// ActiveCustom marks state reached through single-channel writes,
	// not attributable to any preset.
	ActiveCustom = "custom"
	// ActiveNone marks the post-blackout state. Distinct from scene A
	// even when the channel values coincide, so the operator UI can
	// tell "blacked out" from "idle scene selected".
	ActiveNone = "none"
)

// evalInterval is how often the armed deadline is re-evaluated. The
// deadline is a value checked here, never a one-shot timer, so
// re-triggering and manual selection replace it without cancel races.
const evalInterval = 100 * time.Millisecond

// Saver persists scene presets and trigger timing. Failures are logged
// and swallowed: losing durability must never block live control.
type Saver interface {
	Save(scenes map[dmx.SceneID]dmx.Scene, duration time.Duration) error
}

// TriggerStatus is the controller's slice of the status document.
type TriggerStatus struct {
	ActiveScene      string
	Armed            bool
	RemainingSeconds float64
	DurationSeconds  float64
	Channels         [dmx.FixtureChannels]byte
	SceneNames       map[dmx.SceneID]string
}

// Controller is the scene/trigger state machine. It is the only writer
// of the channel frame; the output loop and API read snapshots.
type Controller struct {
	log   logger.Logger
	saver Saver

	mu       sync.Mutex
	frame    *dmx.Frame
	scenes   map[dmx.SceneID]dmx.Scene
	active   string
	armed    bool
	deadline time.Time
	prior    string // active scene when the countdown was armed
	duration time.Duration

	now func() time.Time
}

// NewController builds the controller from loaded presets and applies
// the idle scene so the first frame ever sent is already valid.
func NewController(log logger.Logger, scenes map[dmx.SceneID]dmx.Scene, duration time.Duration, saver Saver) *Controller {
	c := &Controller{
		log:      log,
		saver:    saver,
		frame:    dmx.NewFrame(),
		scenes:   scenes,
		duration: duration,
		now:      time.Now,
	}
	c.frame.Apply(c.scenes[dmx.SceneA])
	c.active = string(dmx.SceneA)
	return c
}

// Run evaluates the armed deadline until the context is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(evalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(c.now())
		}
	}
}

// Tick reverts to the idle scene once an armed deadline has elapsed.
func (c *Controller) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed || now.Before(c.deadline) {
		return
	}
	c.frame.Apply(c.scenes[dmx.SceneA])
	c.armed = false
	c.active = string(dmx.SceneA)
	c.log.With(logger.Fields{"module": "engine"}).Infof("trigger expired, reverted to scene a (was %s)", c.prior)
}

// SelectScene applies a preset and cancels any pending countdown. A
// manual selection always wins over an armed auto-revert.
func (c *Controller) SelectScene(id dmx.SceneID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	scene, ok := c.scenes[id]
	if !ok {
		return fmt.Errorf("%w: %q", dmx.ErrUnknownScene, id)
	}
	c.armed = false
	c.frame.Apply(scene)
	c.active = string(id)
	c.log.With(logger.Fields{"module": "engine"}).Infof("applied scene %s (%s)", id, scene.Name)
	return nil
}

// FireTrigger applies the triggered scene and arms the countdown. Firing
// while already armed restarts the full duration; it does not stack.
func (c *Controller) FireTrigger() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		c.prior = c.active
	}
	c.frame.Apply(c.scenes[dmx.SceneB])
	c.armed = true
	c.deadline = c.now().Add(c.duration)
	c.active = string(dmx.SceneB)
	c.log.With(logger.Fields{"module": "engine"}).Infof("trigger fired, scene b for %s", c.duration)
}

// SetChannel writes one channel directly. The result is no longer any
// preset, so the active label becomes "custom"; an armed countdown is
// left running.
func (c *Controller) SetChannel(channel, value int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.frame.Set(channel, value); err != nil {
		return err
	}
	c.active = ActiveCustom
	return nil
}

// Blackout zeros the fixture (safety channel kept valid), cancels any
// countdown without passing through scene A, and labels the state
// "none".
func (c *Controller) Blackout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frame.Blackout()
	c.armed = false
	c.active = ActiveNone
	c.log.With(logger.Fields{"module": "engine"}).Warn("blackout: all channels zeroed, safety channel held valid")
}

// SaveScene snapshots the current fixture channels into the named slot
// and persists. The in-memory effect always succeeds; a persistence
// failure is logged only.
func (c *Controller) SaveScene(id dmx.SceneID) error {
	c.mu.Lock()
	scene, ok := c.scenes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", dmx.ErrUnknownScene, id)
	}
	scene.Channels = c.frame.Fixture()
	scene.Sanitize()
	c.scenes[id] = scene
	scenes, duration := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(scenes, duration)
	return nil
}

// UpdateScene replaces a slot's contents from external input. Values are
// validated like single-channel writes; the slot is re-applied to the
// frame when it is the active scene.
func (c *Controller) UpdateScene(id dmx.SceneID, name string, channels map[int]int) error {
	var next [dmx.FixtureChannels]byte
	for ch, value := range channels {
		if ch < 1 || ch > dmx.FixtureChannels {
			return fmt.Errorf("%w: channel %d", dmx.ErrOutOfRange, ch)
		}
		if value < 0 || value > 255 {
			return fmt.Errorf("%w: value %d", dmx.ErrOutOfRange, value)
		}
		if ch == dmx.SafetyChannel && (value < dmx.SafetyMin || value > dmx.SafetyMax) {
			return fmt.Errorf("%w: got %d", dmx.ErrSafetyViolation, value)
		}
		next[ch-1] = byte(value)
	}

	c.mu.Lock()
	scene, ok := c.scenes[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", dmx.ErrUnknownScene, id)
	}
	if name != "" {
		scene.Name = name
	}
	scene.Channels = next
	scene.Sanitize()
	c.scenes[id] = scene
	if c.active == string(id) {
		c.frame.Apply(scene)
	}
	scenes, duration := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(scenes, duration)
	return nil
}

// Duration returns the configured trigger hold time.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// SetDuration updates the trigger hold time within bounds and persists.
func (c *Controller) SetDuration(seconds float64) error {
	if seconds != seconds || seconds < config.MinTriggerSeconds || seconds > config.MaxTriggerSeconds {
		return fmt.Errorf("%w: duration %.2fs", dmx.ErrOutOfRange, seconds)
	}
	c.mu.Lock()
	c.duration = time.Duration(seconds * float64(time.Second))
	scenes, duration := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(scenes, duration)
	return nil
}

// Scenes returns a copy of the preset slots.
func (c *Controller) Scenes() map[dmx.SceneID]dmx.Scene {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[dmx.SceneID]dmx.Scene, len(c.scenes))
	for id, s := range c.scenes {
		out[id] = s
	}
	return out
}

// Snapshot returns a copy of the wire frame for the output loop.
func (c *Controller) Snapshot() [dmx.FrameBytes]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame.Bytes()
}

// Status reports the controller state at read time.
func (c *Controller) Status() TriggerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := TriggerStatus{
		ActiveScene:     c.active,
		Armed:           c.armed,
		DurationSeconds: c.duration.Seconds(),
		Channels:        c.frame.Fixture(),
		SceneNames:      make(map[dmx.SceneID]string, len(c.scenes)),
	}
	for id, s := range c.scenes {
		st.SceneNames[id] = s.Name
	}
	if c.armed {
		if remaining := c.deadline.Sub(c.now()).Seconds(); remaining > 0 {
			st.RemainingSeconds = remaining
		}
	}
	return st
}

// snapshotLocked copies the persistence payload; callers hold the lock
// and write the copy after releasing it.
func (c *Controller) snapshotLocked() (map[dmx.SceneID]dmx.Scene, time.Duration) {
	scenes := make(map[dmx.SceneID]dmx.Scene, len(c.scenes))
	for id, s := range c.scenes {
		scenes[id] = s
	}
	return scenes, c.duration
}

func (c *Controller) persist(scenes map[dmx.SceneID]dmx.Scene, duration time.Duration) {
	if c.saver == nil {
		return
	}
	if err := c.saver.Save(scenes, duration); err != nil {
		c.log.With(logger.Fields{"module": "engine"}).Warnf("persist failed (state kept in memory): %v", err)
	}
}
