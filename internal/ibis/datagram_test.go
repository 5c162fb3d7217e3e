package ibis

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type sampleDatagram struct {
	Foo string `json:"foo"`
	Bar int    `json:"bar"`
}

func TestDatagramRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := sampleDatagram{Foo: "hello", Bar: 42}
	require.NoError(t, WriteDatagram(&buf, in))

	assert.Regexp(t, `^\d{4}`, buf.String())

	var out sampleDatagram
	require.NoError(t, ReadDatagram(&buf, &out))
	assert.Equal(t, in, out)
}

func TestWriteDatagramTooLarge(t *testing.T) {
	big := sampleDatagram{Foo: strings.Repeat("x", MaxDatagramBody)}
	var buf bytes.Buffer
	err := WriteDatagram(&buf, big)
	assert.ErrorIs(t, err, ErrDatagramTooLarge)
}

func TestReadDatagramBadLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("abcd{}")
	var out sampleDatagram
	err := ReadDatagram(&buf, &out)
	assert.ErrorIs(t, err, ErrInvalidDatagram)
}

func TestReadDatagramShortBody(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("0010{}")
	var out sampleDatagram
	err := ReadDatagram(&buf, &out)
	assert.ErrorIs(t, err, ErrInvalidDatagram)
}

func TestReadDatagramInvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	body := "not json"
	buf.WriteString("0008" + body)
	var out sampleDatagram
	err := ReadDatagram(&buf, &out)
	assert.ErrorIs(t, err, ErrInvalidDatagram)
}

func TestDatagramRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := sampleDatagram{
			Foo: rapid.StringN(0, 200, 200).Draw(t, "foo"),
			Bar: rapid.Int().Draw(t, "bar"),
		}
		var buf bytes.Buffer
		if err := WriteDatagram(&buf, in); err != nil {
			t.Skip("encoded body exceeds datagram limit")
		}
		var out sampleDatagram
		require.NoError(t, ReadDatagram(&buf, &out))
		assert.Equal(t, in, out)
	})
}
