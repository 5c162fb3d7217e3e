package ibis

import "fmt"

// Transport is what a Controller needs in order to drive physical
// output: push a line of text to an address and optionally drive its
// stop indicator. Master is the production implementation; tests
// substitute a fake that records calls instead of touching hardware.
type Transport interface {
	SendText(address int, text []byte) error
	SetStopIndicator(address int, value bool) error
	Close() error
}

// Master ties the encoder stack together: it's the thing a display
// address actually gets sent bytes through. Grounded on
// original_source/ibis/ibis_protocol.py's IBISMaster, which bundles the
// serial device and the optional GPIO pin map behind one object.
type Master struct {
	Serial *SerialLink
	GPIO   *StopIndicatorDriver
}

// NewMaster wires a serial link and an optional stop-indicator driver
// (nil is fine; SetStopIndicator then always reports ErrGPIOUnsupported).
func NewMaster(serial *SerialLink, gpio *StopIndicatorDriver) *Master {
	return &Master{Serial: serial, GPIO: gpio}
}

// SendText uppercases, pads, and pushes text (already transliterated and
// truncated by the caller) to address as a "next stop" (zI) telegram. An
// empty string sends a blank line.
func (m *Master) SendText(address int, text []byte) error {
	telegram, err := EncodeNextStopShort(text)
	if err != nil {
		return fmt.Errorf("ibis: encode text for address %d: %w", address, err)
	}
	return m.Serial.SendTelegram(address, telegram)
}

// SetStopIndicator drives the stop-indicator GPIO for address, if one is
// configured. ErrGPIOUnsupported is expected and not fatal: the caller
// still records the logical state.
func (m *Master) SetStopIndicator(address int, value bool) error {
	if m.GPIO == nil {
		return ErrGPIOUnsupported
	}
	return m.GPIO.Set(address, value)
}

// Close releases the serial port and any requested GPIO lines.
func (m *Master) Close() error {
	var firstErr error
	if m.GPIO != nil {
		if err := m.GPIO.Close(); err != nil {
			firstErr = err
		}
	}
	if err := m.Serial.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
