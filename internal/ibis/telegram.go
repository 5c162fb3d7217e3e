package ibis

import (
	"bytes"
	"fmt"
)

/*
Telegram encoding, grounded on original_source/ibis/ibis_protocol.py's
send_* helpers. Every command is prefix + payload, terminated with CR,
then a single XOR checksum byte seeded with 0x7F. Only EncodeNextStopShort
(zI) is exercised by the controller (spec.md §4.2); the rest of the legacy
command set is kept as part of the encoder so callers that need the older
displays still have it available.
*/

// appendChecksum appends CR and then a single byte equal to the XOR of
// every preceding byte (including CR), seeded with 0x7F.
//
// Checksum invariant: XOR-ing every byte of the returned telegram
// (payload, CR, and the checksum byte itself) together always yields
// 0x7F, regardless of payload.
func appendChecksum(payload []byte) []byte {
	telegram := append(append([]byte{}, payload...), '\r')
	var check byte = 0x7F
	for _, b := range telegram {
		check ^= b
	}
	return append(telegram, check)
}

// VerifyChecksum reports whether telegram ends in a CR followed by a
// valid checksum byte.
func VerifyChecksum(telegram []byte) bool {
	if len(telegram) < 2 || telegram[len(telegram)-2] != '\r' {
		return false
	}
	var check byte = 0x7F
	for _, b := range telegram {
		check ^= b
	}
	return check == 0x7F
}

func padToBlocks(data []byte, blockSize int) (padded []byte, blocks int) {
	blocks = (len(data) + blockSize - 1) / blockSize
	if blocks == 0 {
		blocks = 0
	}
	padLen := blocks*blockSize - len(data)
	padded = append(append([]byte{}, data...), bytes.Repeat([]byte{' '}, padLen)...)
	return padded, blocks
}

// EncodeNextStopShort builds the "zI" next-stop telegram: payload is
// transliterated, uppercased text padded with spaces to a multiple of 4
// bytes, prefixed with the block count as a single ASCII digit.
func EncodeNextStopShort(text []byte) ([]byte, error) {
	upper := bytes.ToUpper(text)
	padded, blocks := padToBlocks(upper, 4)
	if blocks > 9 {
		return nil, fmt.Errorf("ibis: next-stop text too long for a single block-count digit (%d blocks)", blocks)
	}
	payload := append([]byte{'z', 'I', '0' + byte(blocks)}, padded...)
	return appendChecksum(payload), nil
}

// EncodeLineNumber builds the "l<nnn>" line-number telegram.
func EncodeLineNumber(lineNumber int) ([]byte, error) {
	if lineNumber < 0 || lineNumber > 999 {
		return nil, fmt.Errorf("ibis: line number %d out of range", lineNumber)
	}
	payload := []byte(fmt.Sprintf("l%03d", lineNumber))
	return appendChecksum(payload), nil
}

// EncodeSpecialCharacter builds the "lE<nn>" special-character telegram.
func EncodeSpecialCharacter(code int) ([]byte, error) {
	if code < 0 || code > 99 {
		return nil, fmt.Errorf("ibis: special character code %d out of range", code)
	}
	payload := []byte(fmt.Sprintf("lE%02d", code))
	return appendChecksum(payload), nil
}

// EncodeTargetNumber builds the "z<nnn>" target-number telegram.
func EncodeTargetNumber(targetNumber int) ([]byte, error) {
	if targetNumber < 0 || targetNumber > 999 {
		return nil, fmt.Errorf("ibis: target number %d out of range", targetNumber)
	}
	payload := []byte(fmt.Sprintf("z%03d", targetNumber))
	return appendChecksum(payload), nil
}

// EncodeTime builds the "u<hhmm>" time-of-day telegram.
func EncodeTime(hours, minutes int) ([]byte, error) {
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return nil, fmt.Errorf("ibis: time %02d:%02d out of range", hours, minutes)
	}
	payload := []byte(fmt.Sprintf("u%02d%02d", hours, minutes))
	return appendChecksum(payload), nil
}

// EncodeDate builds the "d<ddmmyyyy>" date telegram.
func EncodeDate(day, month, year int) ([]byte, error) {
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return nil, fmt.Errorf("ibis: date %02d-%02d-%d out of range", day, month, year)
	}
	payload := []byte(fmt.Sprintf("d%02d%02d%d", day, month, year))
	return appendChecksum(payload), nil
}

// EncodeTargetText builds the legacy "zA<n><text>" form: text padded to a
// multiple of 16 bytes.
func EncodeTargetText(text []byte) ([]byte, error) {
	upper := bytes.ToUpper(text)
	padded, blocks := padToBlocks(upper, 16)
	if blocks > 9 {
		return nil, fmt.Errorf("ibis: target text too long for a single block-count digit (%d blocks)", blocks)
	}
	payload := append([]byte{'z', 'A', '0' + byte(blocks)}, padded...)
	return appendChecksum(payload), nil
}

// EncodeTargetTextWithID builds the "aA<id><n><text>" form used by some
// variants, also padded to 16-byte blocks.
func EncodeTargetTextWithID(id int, text []byte) ([]byte, error) {
	if id < 0 || id > 9 {
		return nil, fmt.Errorf("ibis: target text id %d out of range", id)
	}
	upper := bytes.ToUpper(text)
	padded, blocks := padToBlocks(upper, 16)
	if blocks > 9 {
		return nil, fmt.Errorf("ibis: target text too long for a single block-count digit (%d blocks)", blocks)
	}
	payload := append([]byte{'a', 'A', '0' + byte(id), '0' + byte(blocks)}, padded...)
	return appendChecksum(payload), nil
}
