package ibis

import (
	"encoding/json"
	"fmt"
	"io"
)

/*
Datagram framing, grounded on original_source/ibis/ibis_utils.py's
_receive_datagram/_send_datagram: every message is a fixed 4-ASCII-digit
decimal length prefix followed by that many bytes of UTF-8 JSON.
*/

// MaxDatagramBody is the largest JSON body the 4-digit length prefix can
// express (9999 bytes). spec.md leaves it an open question whether
// larger bodies should extend the prefix or be rejected; this
// implementation rejects them explicitly rather than silently truncating.
const MaxDatagramBody = 9999

// ErrDatagramTooLarge is returned by WriteDatagram when the encoded body
// would not fit in the 4-digit length prefix.
var ErrDatagramTooLarge = fmt.Errorf("ibis: datagram body exceeds %d bytes", MaxDatagramBody)

// ErrInvalidDatagram is returned by ReadDatagram on any framing or
// decode failure: a bad length prefix, a short read, or invalid JSON.
var ErrInvalidDatagram = fmt.Errorf("ibis: invalid datagram")

// ReadDatagram reads one length-prefixed JSON datagram from r and
// unmarshals it into v.
func ReadDatagram(r io.Reader, v any) error {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return ErrInvalidDatagram
	}

	length := 0
	for _, d := range lengthBuf {
		if d < '0' || d > '9' {
			return ErrInvalidDatagram
		}
		length = length*10 + int(d-'0')
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return ErrInvalidDatagram
	}

	if err := json.Unmarshal(body, v); err != nil {
		return ErrInvalidDatagram
	}
	return nil
}

// WriteDatagram marshals v to JSON and writes it to w as a length-prefixed
// datagram: exactly 4 + len(body) bytes.
func WriteDatagram(w io.Writer, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ibis: encode datagram: %w", err)
	}
	if len(body) > MaxDatagramBody {
		return ErrDatagramTooLarge
	}

	datagram := fmt.Sprintf("%04d%s", len(body), body)
	_, err = io.WriteString(w, datagram)
	return err
}
