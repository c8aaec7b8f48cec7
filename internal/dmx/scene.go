package dmx

import "fmt"

// SceneID names one of the four fixed preset slots.
type SceneID string

const (
	SceneA SceneID = "a"
	SceneB SceneID = "b"
	SceneC SceneID = "c"
	SceneD SceneID = "d"
)

// SceneIDs lists the slots in display order.
var SceneIDs = []SceneID{SceneA, SceneB, SceneC, SceneD}

// ParseSceneID validates a scene name from an external caller.
func ParseSceneID(s string) (SceneID, error) {
	switch SceneID(s) {
	case SceneA, SceneB, SceneC, SceneD:
		return SceneID(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScene, s)
}

// Scene is a named preset: values for the 16 fixture channels, index 0
// holding channel 1. Slot identities are fixed; contents are data.
type Scene struct {
	Name     string
	Channels [FixtureChannels]byte
}

// Sanitize clamps the scene into the shape the interlock requires: an
// out-of-range safety value becomes SafetyDefault. Used on every path
// that accepts scene contents from outside (persistence, API).
func (s *Scene) Sanitize() {
	v := s.Channels[SafetyChannel-1]
	if v < SafetyMin || v > SafetyMax {
		s.Channels[SafetyChannel-1] = SafetyDefault
	}
}

// DJPOWER H-IP20V 16-channel map:
//
//	ch1 fog, ch2 unused, ch3-6 outer RGBA, ch7-10 inner RGBA,
//	ch11-12 mix color, ch13 auto color, ch14 strobe, ch15 dimmer,
//	ch16 safety interlock.
//
// DefaultScenes returns the factory presets. Scene A is the idle state,
// Scene B the triggered state; C and D are operator-editable extras.
func DefaultScenes() map[SceneID]Scene {
	return map[SceneID]Scene{
		SceneA: {
			Name: "All OFF (Default)",
			Channels: [FixtureChannels]byte{
				0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, SafetyDefault,
			},
		},
		SceneB: {
			Name: "Fog ON (Triggered)",
			Channels: [FixtureChannels]byte{
				255, 0, 255, 255, 255, 0, 255, 255, 255, 0, 0, 0, 0, 0, 255, SafetyDefault,
			},
		},
		SceneC: {
			Name: "Custom Scene 1",
			Channels: [FixtureChannels]byte{
				255, 0, 0, 0, 255, 0, 0, 0, 255, 0, 0, 0, 0, 50, 200, SafetyDefault,
			},
		},
		SceneD: {
			Name: "Custom Scene 2",
			Channels: [FixtureChannels]byte{
				200, 0, 255, 0, 0, 200, 255, 0, 0, 200, 0, 0, 100, 0, 255, SafetyDefault,
			},
		},
	}
}
