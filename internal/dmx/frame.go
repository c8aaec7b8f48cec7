package dmx

import (
	"errors"
	"fmt"
)

const (
	// NumChannels is the size of a full DMX512 universe.
	NumChannels = 512

	// FixtureChannels is the span used by the DJPOWER H-IP20V in
	// 16-channel mode. Channels above this stay zero.
	FixtureChannels = 16

	// SafetyChannel gates whether the fixture honors any other channel.
	// The fixture treats 0-49 and 201-255 as invalid and ignores the
	// rest of the frame while the value is outside [50,200].
	SafetyChannel = 16

	SafetyMin     = 50
	SafetyMax     = 200
	SafetyDefault = 100

	// FrameBytes is the on-wire frame size: start code plus channels.
	FrameBytes = NumChannels + 1
)

var (
	ErrOutOfRange      = errors.New("out of range")
	ErrSafetyViolation = errors.New("safety channel must be between 50 and 200")
	ErrUnknownScene    = errors.New("unknown scene")
)

// Frame is the live DMX universe. Byte 0 is the start code (always zero),
// bytes 1..512 are channel values, 1-indexed by DMX convention.
//
// Frame is pure data; callers are responsible for serializing access.
type Frame struct {
	data [FrameBytes]byte
}

// NewFrame returns a frame with all channels at zero and the safety
// channel at its default valid value.
func NewFrame() *Frame {
	f := &Frame{}
	f.data[SafetyChannel] = SafetyDefault
	return f
}

// Set writes a single channel value after validation.
func (f *Frame) Set(channel, value int) error {
	if channel < 1 || channel > NumChannels {
		return fmt.Errorf("%w: channel %d", ErrOutOfRange, channel)
	}
	if value < 0 || value > 255 {
		return fmt.Errorf("%w: value %d", ErrOutOfRange, value)
	}
	if channel == SafetyChannel && (value < SafetyMin || value > SafetyMax) {
		return fmt.Errorf("%w: got %d", ErrSafetyViolation, value)
	}
	f.data[channel] = byte(value)
	return nil
}

// Get returns the value of a channel, or zero for channels outside the
// universe.
func (f *Frame) Get(channel int) byte {
	if channel < 1 || channel > NumChannels {
		return 0
	}
	return f.data[channel]
}

// Apply replaces channels 1..FixtureChannels with the scene contents.
// An invalid stored safety value is corrected to SafetyDefault rather
// than rejected, so corrupted presets can never disable the interlock.
func (f *Frame) Apply(s Scene) {
	for ch := 1; ch <= FixtureChannels; ch++ {
		f.data[ch] = s.Channels[ch-1]
	}
	if v := f.data[SafetyChannel]; v < SafetyMin || v > SafetyMax {
		f.data[SafetyChannel] = SafetyDefault
	}
}

// Blackout zeros every channel except the safety channel, which is forced
// to SafetyDefault so the fixture stays DMX-responsive, not merely dark.
func (f *Frame) Blackout() {
	for ch := 1; ch <= NumChannels; ch++ {
		f.data[ch] = 0
	}
	f.data[SafetyChannel] = SafetyDefault
}

// Bytes returns a copy of the wire frame (start code + 512 channels).
func (f *Frame) Bytes() [FrameBytes]byte {
	return f.data
}

// Fixture returns a copy of the fixture channel span (channels 1..16).
func (f *Frame) Fixture() [FixtureChannels]byte {
	var out [FixtureChannels]byte
	copy(out[:], f.data[1:FixtureChannels+1])
	return out
}
