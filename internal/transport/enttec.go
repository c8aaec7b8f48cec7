package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// FTDI FT232 IDs used by the ENTTEC Open DMX USB.
const (
	ftdiVID = "0403"
	ftdiPID = "6001"
)

const (
	// DMX512: break of at least 88us, then a short mark before the
	// start code. The OS rounds both up; fixtures tolerate that.
	breakTime     = time.Millisecond
	markAfterTime = 10 * time.Microsecond
)

// dmxMode is the DMX512 line discipline: 250kbaud 8N2.
var dmxMode = &serial.Mode{
	BaudRate: 250000,
	DataBits: 8,
	Parity:   serial.NoParity,
	StopBits: serial.TwoStopBits,
}

type enttec struct {
	port   serial.Port
	closed bool
}

// Open opens the adapter at the given device path. The address "auto"
// (or "") scans for the first FTDI adapter on the host.
func Open(address string) (Transport, error) {
	if address == "" || address == "auto" {
		found, err := detect()
		if err != nil {
			return nil, err
		}
		address = found
	}

	port, err := serial.Open(address, dmxMode)
	if err != nil {
		return nil, mapPortError(address, err)
	}
	return &enttec{port: port}, nil
}

// detect returns the device path of the first FTDI USB serial adapter.
func detect() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("%w: enumerating ports: %v", ErrDeviceNotFound, err)
	}
	for _, p := range ports {
		if p.IsUSB && strings.EqualFold(p.VID, ftdiVID) && strings.EqualFold(p.PID, ftdiPID) {
			return p.Name, nil
		}
	}
	// Fall back to any USB serial port before giving up.
	for _, p := range ports {
		if p.IsUSB {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("%w: no usb serial adapter present", ErrDeviceNotFound)
}

func (e *enttec) Send(frame []byte) error {
	if err := e.port.Break(breakTime); err != nil {
		return fmt.Errorf("%w: break: %v", ErrIO, err)
	}
	time.Sleep(markAfterTime)
	if _, err := e.port.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	return nil
}

func (e *enttec) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	return e.port.Close()
}

func mapPortError(address string, err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortNotFound:
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, address)
		case serial.PermissionDenied:
			return fmt.Errorf("%w: %s", ErrPermissionDenied, address)
		case serial.PortBusy:
			return fmt.Errorf("%w: %s", ErrBusy, address)
		}
	}
	return fmt.Errorf("open %s: %w", address, err)
}
