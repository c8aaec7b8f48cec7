// Package transport drives the ENTTEC Open DMX USB adapter: a plain FTDI
// bridge with no on-board frame engine, so the host generates the DMX
// break and mark-after-break around every frame write.
package transport

import "errors"

var (
	ErrDeviceNotFound   = errors.New("dmx adapter not found")
	ErrPermissionDenied = errors.New("dmx adapter permission denied")
	ErrBusy             = errors.New("dmx adapter busy")
	ErrIO               = errors.New("dmx write failed")
)

// Transport sends full DMX frames to the fixture. Implementations do not
// retry: the output loop owns failure policy and may discard a failed
// transport and open a new one.
type Transport interface {
	// Send writes one wire frame (start code + 512 channels) with the
	// adapter's break/mark timing.
	Send(frame []byte) error
	// Close releases the device. Idempotent.
	Close() error
}
