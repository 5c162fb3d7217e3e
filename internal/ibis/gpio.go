package ibis

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

/*
Example GPIO pinmap:

	0: {chip: gpiochip0, offset: 28}
	1: {chip: gpiochip0, offset: 29}
	2: {chip: gpiochip0, offset: 31}
	3: {chip: gpiochip0, offset: 30}

(Display address -> GPIO line.)
*/

// ErrGPIOUnsupported is returned by StopIndicatorDriver.Set when no GPIO
// line is configured for an address, or when the driver wasn't able to
// open the chardev at all (a non-embedded host, most commonly).
var ErrGPIOUnsupported = errors.New("ibis: stop indicator GPIO unsupported for this address")

// GPIOPin names one GPIO character device line.
type GPIOPin struct {
	Chip   string `yaml:"chip"`
	Offset int    `yaml:"offset"`
}

// StopIndicatorDriver drives one GPIO output per display address. It is
// optional: on a host with no GPIO chardev, or for an address with no
// configured pin, Set returns ErrGPIOUnsupported and the controller keeps
// the logical state without physically actuating anything.
type StopIndicatorDriver struct {
	mu    sync.Mutex
	pins  map[int]GPIOPin
	lines map[int]*gpiocdev.Line
}

// NewStopIndicatorDriver returns a driver for the given address->pin map.
// No GPIO lines are requested until Set is first called for an address,
// so construction never fails even on a host without GPIO support.
func NewStopIndicatorDriver(pins map[int]GPIOPin) *StopIndicatorDriver {
	return &StopIndicatorDriver{
		pins:  pins,
		lines: make(map[int]*gpiocdev.Line),
	}
}

// Set drives the GPIO line for address high (true) or low (false).
func (d *StopIndicatorDriver) Set(address int, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pin, ok := d.pins[address]
	if !ok {
		return ErrGPIOUnsupported
	}

	line, ok := d.lines[address]
	if !ok {
		initial := 0
		if value {
			initial = 1
		}
		requested, err := gpiocdev.RequestLine(pin.Chip, pin.Offset, gpiocdev.AsOutput(initial))
		if err != nil {
			return fmt.Errorf("%w: %s", ErrGPIOUnsupported, err)
		}
		d.lines[address] = requested
		return nil
	}

	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("ibis: set GPIO line for address %d: %w", address, err)
	}
	return nil
}

// Close releases every GPIO line this driver has requested.
func (d *StopIndicatorDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var firstErr error
	for a, line := range d.lines {
		if err := line.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.lines, a)
	}
	return firstErr
}
