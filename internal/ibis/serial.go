package ibis

import (
	"fmt"
	"time"

	serial "github.com/daedaluz/goserial"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Interface to the serial port the displays are wired to,
 *		hiding the termios plumbing needed for the IBIS link:
 *		1200 bps, 7 data bits, even parity, 2 stop bits, plus
 *		RTS/DTR as a 2-bit address selector for an external
 *		demultiplexer.
 *
 *------------------------------------------------------------------*/

// bitsPerCharacter is the number of bit-times allowed per transmitted
// byte when pacing writes: the 7E2 frame (1 start + 7 data + 1 parity +
// 2 stop) is 11 bits, and one more bit-time is added as margin. Pacing is
// the link's only form of flow control.
const bitsPerCharacter = 12

// SerialLink drives the shared serial bus: address multiplexing via
// RTS/DTR, then a paced raw write of one telegram.
type SerialLink struct {
	port *serial.Port
	baud int
}

// OpenSerialLink opens device at 1200/7E2 and returns a link ready to
// send telegrams. baud is configurable for bench testing against faster
// simulators; 0 selects the default 1200.
func OpenSerialLink(device string, baud int) (*SerialLink, error) {
	port, err := serial.Open(device, nil)
	if err != nil {
		return nil, fmt.Errorf("ibis: open serial port %s: %w", device, err)
	}

	attrs, err := port.GetAttr()
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("ibis: read termios for %s: %w", device, err)
	}

	attrs.MakeRaw()
	attrs.Cflag &^= serial.CSIZE | serial.PARODD
	attrs.Cflag |= serial.CS7 | serial.PARENB | serial.CSTOPB

	if baud == 0 {
		baud = 1200
	}
	speed, err := baudToCFlag(baud)
	if err != nil {
		port.Close()
		return nil, err
	}
	attrs.SetSpeed(speed)

	if err := port.SetAttr(serial.TCSANOW, attrs); err != nil {
		port.Close()
		return nil, fmt.Errorf("ibis: configure termios for %s: %w", device, err)
	}

	return &SerialLink{port: port, baud: baud}, nil
}

func baudToCFlag(baud int) (serial.CFlag, error) {
	switch baud {
	case 1200:
		return serial.B1200, nil
	case 2400:
		return serial.B2400, nil
	case 4800:
		return serial.B4800, nil
	case 9600:
		return serial.B9600, nil
	case 19200:
		return serial.B19200, nil
	default:
		return 0, fmt.Errorf("ibis: unsupported baud rate %d", baud)
	}
}

// addressModemLines maps a display address to the (DTR, RTS) pair an
// external 2-bit demultiplexer expects, per the serial line spec:
// 0 -> (0,0), 1 -> (0,1), 2 -> (1,0), 3 -> (1,1).
func addressModemLines(address int) (serial.ModemLine, error) {
	switch address {
	case 0:
		return 0, nil
	case 1:
		return serial.TIOCM_RTS, nil
	case 2:
		return serial.TIOCM_DTR, nil
	case 3:
		return serial.TIOCM_DTR | serial.TIOCM_RTS, nil
	default:
		return 0, fmt.Errorf("ibis: invalid display address %d", address)
	}
}

// SendTelegram selects address on the multiplexer, writes telegram, and
// sleeps long enough for the device to have drained it before returning.
// This sleep is the only form of flow control the link has.
func (s *SerialLink) SendTelegram(address int, telegram []byte) error {
	want, err := addressModemLines(address)
	if err != nil {
		return err
	}

	const settable = serial.TIOCM_DTR | serial.TIOCM_RTS
	if err := s.port.DisableModemLines(settable &^ want); err != nil {
		return fmt.Errorf("ibis: clear modem lines for address %d: %w", address, err)
	}
	if want != 0 {
		if err := s.port.EnableModemLines(want); err != nil {
			return fmt.Errorf("ibis: set modem lines for address %d: %w", address, err)
		}
	}

	n, err := s.port.Write(telegram)
	if err != nil {
		return fmt.Errorf("ibis: write telegram to address %d: %w", address, err)
	}

	time.Sleep(time.Duration(float64(n) * bitsPerCharacter / float64(s.baud) * float64(time.Second)))
	return nil
}

// Close releases the underlying file descriptor.
func (s *SerialLink) Close() error {
	return s.port.Close()
}
