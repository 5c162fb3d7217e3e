// Package ibis implements a broker for VDV-300/IBIS passenger information
// displays: wire protocol encoding, priority arbitration across concurrent
// clients, and a length-prefixed JSON control protocol.
package ibis

import (
	"fmt"
)

// Broadcast is the sentinel address meaning "all four displays". It is
// never a key in the per-address maps; callers expand it before touching
// buffer, enabled, or stop-indicator state.
const Broadcast = -1

// NumDisplays is the number of physical display addresses, 0..3.
const NumDisplays = 4

// ValidAddress reports whether a is a real display address (0..3).
func ValidAddress(a int) bool {
	return a >= 0 && a < NumDisplays
}

// ContentType names the variant of a DisplayContent.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentTime     ContentType = "time"
	ContentSequence ContentType = "sequence"
)

// DisplayContent is the tagged union described in the data model: a static
// line, a strftime-rendered clock, or a cyclic sequence of the first two.
// It is represented as a flat struct rather than an interface hierarchy so
// it round-trips through JSON without a custom (Un)marshaler; Validate
// enforces the invariants a constructed interface type would get for free.
type DisplayContent struct {
	Type ContentType `json:"type"`

	// Text holds the literal line for Type == ContentText.
	Text string `json:"text,omitempty"`

	// Format holds the strftime pattern for Type == ContentTime.
	Format string `json:"format,omitempty"`

	// Messages holds the inner Text/Time items for Type == ContentSequence.
	Messages []DisplayContent `json:"messages,omitempty"`

	// Interval is the default per-item duration in seconds, used by a
	// Sequence for any inner message that doesn't set its own Duration.
	Interval float64 `json:"interval,omitempty"`

	// Duration overrides Interval for one item inside a Sequence's
	// Messages. Zero means "use the sequence's Interval".
	Duration float64 `json:"duration,omitempty"`
}

// Validate checks the structural invariants from the data model: a
// Sequence is non-empty and contains only Text or Time items, never a
// nested Sequence.
func (c *DisplayContent) Validate() error {
	switch c.Type {
	case ContentText, ContentTime:
		return nil
	case ContentSequence:
		if len(c.Messages) == 0 {
			return fmt.Errorf("ibis: sequence must have at least one message")
		}
		for i := range c.Messages {
			switch c.Messages[i].Type {
			case ContentText, ContentTime:
				// ok
			default:
				return fmt.Errorf("ibis: sequence message %d has invalid type %q", i, c.Messages[i].Type)
			}
		}
		return nil
	default:
		return fmt.Errorf("ibis: unknown content type %q", c.Type)
	}
}

// BufferEntry is the per-address arbitration and sequencing state. There
// is always exactly one entry per address 0..3; an empty entry has
// Priority -1, Content nil, and Owner nil.
type BufferEntry struct {
	Content  *DisplayContent `json:"content"`
	Priority int             `json:"priority"`
	Owner    *string         `json:"owner"`

	// Cursor is the current position inside a Sequence; -1 means
	// "advance to index 0 on the next tick".
	Cursor int `json:"cursor"`

	// LastRefresh and LastUpdate are monotonic-clock seconds, not wall
	// clock time, and are not meaningful across a process restart; they
	// are reset to zero whenever a new message is stored.
	LastRefresh float64 `json:"last_refresh"`
	LastUpdate  float64 `json:"last_update"`
}

// Clone returns a deep copy of c, so a stored DisplayContent never
// aliases the caller's value.
func (c *DisplayContent) Clone() *DisplayContent {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Messages != nil {
		clone.Messages = make([]DisplayContent, len(c.Messages))
		copy(clone.Messages, c.Messages)
	}
	return &clone
}

func emptyBufferEntry() *BufferEntry {
	return &BufferEntry{
		Content:  nil,
		Priority: -1,
		Owner:    nil,
		Cursor:   -1,
	}
}

// Snapshot is the full persisted/queryable state. Map keys are the
// integer display addresses 0..3; encoding/json marshals and unmarshals
// integer map keys as decimal-string JSON object keys automatically, so
// this is the one place that conversion needs to be thought about at all.
type Snapshot struct {
	Buffer         map[int]BufferEntry `json:"buffer"`
	CurrentText    map[int]*string     `json:"current_text"`
	Enabled        map[int]bool        `json:"enabled"`
	StopIndicators map[int]bool        `json:"stop_indicators"`
}
