package ibis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMakeContentHelpers(t *testing.T) {
	text := MakeText("hello")
	assert.Equal(t, ContentText, text.Type)
	assert.Equal(t, "hello", text.Text)

	clock := MakeTime("%H:%M")
	assert.Equal(t, ContentTime, clock.Type)
	assert.Equal(t, "%H:%M", clock.Format)

	seq := MakeSequence(5, DisplayContent{Type: ContentText, Text: "a"}, DisplayContent{Type: ContentText, Text: "b"})
	assert.Equal(t, ContentSequence, seq.Type)
	assert.Equal(t, 5.0, seq.Interval)
	assert.Len(t, seq.Messages, 2)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("localhost:4242")
	assert.Equal(t, "localhost:4242", c.Address)
	assert.Equal(t, DefaultClientTimeout, c.Timeout)
}
