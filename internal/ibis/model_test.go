package ibis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisplayContentValidate(t *testing.T) {
	tests := []struct {
		name    string
		content DisplayContent
		wantErr bool
	}{
		{"text always valid", DisplayContent{Type: ContentText, Text: "x"}, false},
		{"time always valid", DisplayContent{Type: ContentTime, Format: "%H:%M"}, false},
		{"empty sequence invalid", DisplayContent{Type: ContentSequence}, true},
		{
			"sequence of text and time valid",
			DisplayContent{Type: ContentSequence, Messages: []DisplayContent{
				{Type: ContentText, Text: "a"},
				{Type: ContentTime, Format: "%H:%M"},
			}},
			false,
		},
		{
			"nested sequence invalid",
			DisplayContent{Type: ContentSequence, Messages: []DisplayContent{
				{Type: ContentSequence, Messages: []DisplayContent{{Type: ContentText, Text: "a"}}},
			}},
			true,
		},
		{"unknown type invalid", DisplayContent{Type: "bogus"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.content.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisplayContentCloneIsIndependent(t *testing.T) {
	original := MakeSequence(5, DisplayContent{Type: ContentText, Text: "a"})
	clone := original.Clone()

	clone.Messages[0].Text = "mutated"
	assert.Equal(t, "a", original.Messages[0].Text)
}

func TestValidAddress(t *testing.T) {
	assert.True(t, ValidAddress(0))
	assert.True(t, ValidAddress(3))
	assert.False(t, ValidAddress(4))
	assert.False(t, ValidAddress(-1))
	assert.False(t, ValidAddress(Broadcast))
}
