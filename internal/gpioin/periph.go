package gpioin

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var (
	hostOnce sync.Once
	hostErr  error
)

// OpenPin acquires a named GPIO line (e.g. "GPIO17") as a pull-up input
// through periph.io. A host without the driver stack or the named line
// yields ErrUnavailable; a failed request on a present line is a plain
// error and will be retried by the monitor.
func OpenPin(name string) (Line, error) {
	hostOnce.Do(func() {
		_, hostErr = host.Init()
	})
	if hostErr != nil {
		return nil, fmt.Errorf("%w: periph host init: %v", ErrUnavailable, hostErr)
	}

	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no line named %q", ErrUnavailable, name)
	}
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	return &periphLine{pin: pin}, nil
}

type periphLine struct {
	pin gpio.PinIO
}

func (l *periphLine) Read() (bool, error) {
	return l.pin.Read() == gpio.High, nil
}

func (l *periphLine) Close() error {
	return l.pin.Halt()
}
