package ibis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeNextStopShort(t *testing.T) {
	tests := []struct {
		name    string
		text    []byte
		wantErr bool
	}{
		{"short text", []byte("bus"), false},
		{"exact block", []byte("abcd"), false},
		{"empty blanks the line", []byte(""), false},
		{"max length", []byte(make([]byte, 36)), false},
		{"too long", []byte(make([]byte, 37)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			telegram, err := EncodeNextStopShort(tt.text)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, VerifyChecksum(telegram))
			assert.Equal(t, byte('z'), telegram[0])
			assert.Equal(t, byte('I'), telegram[1])
		})
	}
}

func TestEncodeNextStopShortUppercasesAndPads(t *testing.T) {
	telegram, err := EncodeNextStopShort([]byte("bus"))
	require.NoError(t, err)
	// z I <blocks digit> <4-byte padded payload> CR checksum
	assert.Equal(t, []byte("BUS "), telegram[3:7])
	assert.Equal(t, byte('1'), telegram[2])
}

func TestChecksumInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOf(rapid.ByteRange(0x20, 0x7e)).Draw(t, "payload")
		telegram := appendChecksum(payload)
		assert.True(t, VerifyChecksum(telegram))

		var check byte = 0x7f
		for _, b := range telegram {
			check ^= b
		}
		assert.Equal(t, byte(0x7f), check)
	})
}

func TestVerifyChecksumRejectsCorruption(t *testing.T) {
	telegram, err := EncodeNextStopShort([]byte("abcd"))
	require.NoError(t, err)
	assert.True(t, VerifyChecksum(telegram))

	corrupted := append([]byte{}, telegram...)
	corrupted[0] ^= 0x01
	assert.False(t, VerifyChecksum(corrupted))
}

func TestEncodeLineNumber(t *testing.T) {
	telegram, err := EncodeLineNumber(42)
	require.NoError(t, err)
	assert.True(t, VerifyChecksum(telegram))
	assert.Equal(t, []byte("l042"), telegram[:4])

	_, err = EncodeLineNumber(1000)
	assert.Error(t, err)
}

func TestEncodeTargetTextBlockPadding(t *testing.T) {
	telegram, err := EncodeTargetText([]byte("hello"))
	require.NoError(t, err)
	assert.True(t, VerifyChecksum(telegram))
	assert.Equal(t, []byte("zA1"), telegram[:3])
	assert.Equal(t, []byte("HELLO           "), telegram[3:19])
}

func TestEncodeTime(t *testing.T) {
	telegram, err := EncodeTime(23, 59)
	require.NoError(t, err)
	assert.Equal(t, []byte("u2359"), telegram[:5])

	_, err = EncodeTime(24, 0)
	assert.Error(t, err)
}

func TestEncodeDate(t *testing.T) {
	telegram, err := EncodeDate(1, 1, 2026)
	require.NoError(t, err)
	assert.Equal(t, []byte("d01012026"), telegram[:9])

	_, err = EncodeDate(32, 1, 2026)
	assert.Error(t, err)
}
