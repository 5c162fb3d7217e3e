package ibis

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// maxLineBytes is the display line length limit: 36 bytes, post-
// transliteration. spec.md leaves the truncation point (before or after
// transliteration, runes or bytes) an open question; this implementation
// truncates transliterated bytes, since that's what actually has to fit
// in the wire telegram's block structure.
const maxLineBytes = 36

// DefaultRefreshTimeout is how long an unchanged line is left on the
// display before it's repainted anyway, guarding against a display that
// missed or garbled the original telegram.
const DefaultRefreshTimeout = 120 * time.Second

// Clock returns monotonic seconds. Controller.now defaults to one backed
// by time.Now, but tests substitute a fake clock to drive the refresh
// and sequence-advance logic deterministically.
type Clock func() float64

// Controller is the per-process IBIS state machine: arbitrated message
// buffer, enabled flags, stop indicators, and the currently-painted text
// per address, all behind one mutex that also serializes access to the
// serial port via Master. Grounded on original_source/ibis/ibis_server.py's
// IBISServer, which keeps exactly this state under one lock for the same
// reason: the serial link can only address one display at a time anyway.
type Controller struct {
	mu     sync.Mutex
	master Transport
	logger *log.Logger

	buffer         map[int]*BufferEntry
	enabled        map[int]bool
	stopIndicators map[int]bool
	currentText    map[int]*string

	refreshTimeout time.Duration
	persistPath    string
	now            Clock
	start          time.Time
}

// NewController builds a Controller with all four addresses enabled, no
// stop indicators, and an empty buffer. persistPath == "" disables
// persistence entirely.
func NewController(master Transport, logger *log.Logger, refreshTimeout time.Duration, persistPath string) *Controller {
	if refreshTimeout <= 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	c := &Controller{
		master:         master,
		logger:         logger,
		buffer:         make(map[int]*BufferEntry, NumDisplays),
		enabled:        make(map[int]bool, NumDisplays),
		stopIndicators: make(map[int]bool, NumDisplays),
		currentText:    make(map[int]*string, NumDisplays),
		refreshTimeout: refreshTimeout,
		persistPath:    persistPath,
		start:          time.Now(),
	}
	c.now = func() float64 { return time.Since(c.start).Seconds() }
	for address := 0; address < NumDisplays; address++ {
		c.buffer[address] = emptyBufferEntry()
		c.enabled[address] = true
		c.stopIndicators[address] = false
		c.currentText[address] = nil
	}
	return c
}

// SetClock overrides the monotonic clock, for tests only.
func (c *Controller) SetClock(clock Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = clock
}

// SetMessage stores content for address at priority on behalf of client,
// subject to arbitration: a lower-priority submission from a different
// client than the current owner is rejected. It reports whether the
// message was accepted.
func (c *Controller) SetMessage(address int, content *DisplayContent, priority int, client string) (bool, error) {
	if !ValidAddress(address) {
		return false, fmt.Errorf("ibis: invalid address %d", address)
	}
	if content == nil {
		return false, fmt.Errorf("ibis: message is required")
	}
	if err := content.Validate(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setMessageLocked(address, content, priority, client), nil
}

func (c *Controller) setMessageLocked(address int, content *DisplayContent, priority int, client string) bool {
	entry := c.buffer[address]
	if priority < entry.Priority && (entry.Owner == nil || client != *entry.Owner) {
		c.logger.Info("message rejected",
			"address", address, "client", client, "priority", priority,
			"current_priority", entry.Priority, "owner", ownerString(entry.Owner))
		return false
	}

	stored := content.Clone()
	FilterContent(stored)

	owner := client
	entry.Content = stored
	entry.Priority = priority
	entry.Owner = &owner
	entry.Cursor = -1
	entry.LastRefresh = 0
	entry.LastUpdate = 0

	c.logger.Info("message set", "address", address, "client", client, "priority", priority, "type", stored.Type)
	c.persistLocked()
	return true
}

// SetEnabled enables or disables address, or all four if address is
// Broadcast. Disabling an address immediately pushes a blank line to it.
func (c *Controller) SetEnabled(address int, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if address == Broadcast {
		for a := 0; a < NumDisplays; a++ {
			c.setEnabledLocked(a, value)
		}
		return nil
	}
	if !ValidAddress(address) {
		return fmt.Errorf("ibis: invalid address %d", address)
	}
	c.setEnabledLocked(address, value)
	return nil
}

func (c *Controller) setEnabledLocked(address int, value bool) {
	c.enabled[address] = value
	if !value {
		c.pushTextLocked(address, "")
	}
	c.logger.Info("enabled changed", "address", address, "value", value)
	c.persistLocked()
}

// GetEnabled reports whether address is enabled, or whether all four
// displays are enabled if address is Broadcast.
func (c *Controller) GetEnabled(address int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if address == Broadcast {
		for a := 0; a < NumDisplays; a++ {
			if !c.enabled[a] {
				return false, nil
			}
		}
		return true, nil
	}
	if !ValidAddress(address) {
		return false, fmt.Errorf("ibis: invalid address %d", address)
	}
	return c.enabled[address], nil
}

// SetStopIndicator drives the stop-indicator GPIO (if any) and records
// the logical state regardless of whether GPIO is configured.
func (c *Controller) SetStopIndicator(address int, value bool) error {
	if !ValidAddress(address) {
		return fmt.Errorf("ibis: invalid address %d", address)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStopIndicatorLocked(address, value)
	return nil
}

func (c *Controller) setStopIndicatorLocked(address int, value bool) {
	if err := c.master.SetStopIndicator(address, value); err != nil && !errors.Is(err, ErrGPIOUnsupported) {
		c.logger.Error("gpio write failed", "address", address, "err", err)
	}
	c.stopIndicators[address] = value
	c.logger.Info("stop indicator changed", "address", address, "value", value)
	c.persistLocked()
}

// GetStopIndicator reports the logical stop-indicator state for address.
func (c *Controller) GetStopIndicator(address int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ValidAddress(address) {
		return false, fmt.Errorf("ibis: invalid address %d", address)
	}
	return c.stopIndicators[address], nil
}

// Tick drives one refresh pass across all four addresses: repaints a
// line that has gone stale, advances a sequence whose current item has
// run its duration, or re-renders a Time line whose formatted text has
// changed since last tick. It's meant to be called roughly every 100ms
// by the server's refresh loop.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for address := 0; address < NumDisplays; address++ {
		if !c.enabled[address] {
			continue
		}
		c.sendMessageLocked(address, c.buffer[address].Content)
	}
}

// sendMessageLocked is the core state machine from the controller's
// operating model: it decides, for one address's current content, what
// (if anything) needs to go out over the wire right now. Recurses one
// level to resolve the active item of a Sequence.
func (c *Controller) sendMessageLocked(address int, content *DisplayContent) {
	entry := c.buffer[address]
	now := c.now()

	if content == nil {
		if c.currentText[address] != nil {
			c.pushTextLocked(address, "")
			entry.LastUpdate = now
		}
		return
	}

	switch content.Type {
	case ContentText:
		c.sendTextLocked(address, entry, content.Text, now)

	case ContentTime:
		rendered, err := strftime.Format(content.Format, time.Now())
		if err != nil {
			c.logger.Error("time format failed", "address", address, "format", content.Format, "err", err)
			rendered = content.Format
		}
		c.sendTextLocked(address, entry, rendered, now)

	case ContentSequence:
		c.sendSequenceLocked(address, entry, content, now)
	}
}

func (c *Controller) sendTextLocked(address int, entry *BufferEntry, text string, now float64) {
	// Compare against the form pushTextLocked stores (truncated, then
	// reverse-transliterated), so an unchanged line is not repainted
	// every tick.
	line := Transliterate(text)
	if len(line) > maxLineBytes {
		line = line[:maxLineBytes]
	}
	painted := ReverseTransliterate(line)
	cur := c.currentText[address]
	if cur == nil || *cur != painted {
		c.pushTextLocked(address, text)
		entry.LastRefresh = now
		entry.LastUpdate = now
		return
	}
	if entry.LastRefresh+c.refreshTimeout.Seconds() <= now {
		c.pushTextLocked(address, *cur)
		entry.LastRefresh = now
	}
}

func (c *Controller) sendSequenceLocked(address int, entry *BufferEntry, content *DisplayContent, now float64) {
	n := len(content.Messages)

	var itemDuration float64
	if entry.Cursor >= 0 && entry.Cursor < n {
		itemDuration = content.Messages[entry.Cursor].Duration
		if itemDuration == 0 {
			itemDuration = content.Interval
		}
	}

	if entry.Cursor < 0 || entry.LastUpdate+itemDuration <= now {
		next := entry.Cursor + 1
		if entry.Cursor < 0 || next >= n {
			next = 0
		}
		entry.Cursor = next
		entry.LastUpdate = now
		c.sendMessageLocked(address, &content.Messages[next])
		return
	}

	if cur := c.currentText[address]; cur != nil && entry.LastRefresh+c.refreshTimeout.Seconds() <= now {
		c.pushTextLocked(address, *cur)
		entry.LastRefresh = now
	}
}

// pushTextLocked transliterates and truncates text to the wire line
// limit, records the canonical (reverse-transliterated) form as the
// currently-painted text, and writes it out. An empty string blanks the
// address.
func (c *Controller) pushTextLocked(address int, text string) {
	transliterated := Transliterate(text)
	if len(transliterated) > maxLineBytes {
		transliterated = transliterated[:maxLineBytes]
	}

	canonical := ReverseTransliterate(transliterated)
	if canonical == "" {
		c.currentText[address] = nil
	} else {
		c.currentText[address] = &canonical
	}

	c.logger.Debug("sending line", "address", address, "text", string(transliterated))
	if err := c.master.SendText(address, transliterated); err != nil {
		c.logger.Error("serial write failed", "address", address, "err", err)
	}
}

// Query answers one of the read-only query kinds: current_text, buffer,
// enabled, stop_indicators, or all.
func (c *Controller) Query(kind string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch kind {
	case "current_text":
		return c.copyCurrentTextLocked(), nil
	case "buffer":
		return c.copyBufferLocked(), nil
	case "enabled":
		return c.copyBoolMapLocked(c.enabled), nil
	case "stop_indicators":
		return c.copyBoolMapLocked(c.stopIndicators), nil
	case "all":
		return map[string]any{
			"buffer":          c.copyBufferLocked(),
			"current_text":    c.copyCurrentTextLocked(),
			"enabled":         c.copyBoolMapLocked(c.enabled),
			"stop_indicators": c.copyBoolMapLocked(c.stopIndicators),
		}, nil
	default:
		return nil, fmt.Errorf("ibis: unknown query %q", kind)
	}
}

func (c *Controller) copyBufferLocked() map[int]BufferEntry {
	out := make(map[int]BufferEntry, NumDisplays)
	for address, entry := range c.buffer {
		out[address] = *entry
	}
	return out
}

func (c *Controller) copyCurrentTextLocked() map[int]*string {
	out := make(map[int]*string, NumDisplays)
	for address, text := range c.currentText {
		out[address] = text
	}
	return out
}

func (c *Controller) copyBoolMapLocked(m map[int]bool) map[int]bool {
	out := make(map[int]bool, len(m))
	for address, value := range m {
		out[address] = value
	}
	return out
}

// Snapshot captures the full persistable/queryable state under lock.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Buffer:         c.copyBufferLocked(),
		CurrentText:    c.copyCurrentTextLocked(),
		Enabled:        c.copyBoolMapLocked(c.enabled),
		StopIndicators: c.copyBoolMapLocked(c.stopIndicators),
	}
}

// LoadSnapshot restores state saved by a previous process, in the order
// buffer, then stop indicators, then enabled flags, so that a disabled
// address's restore doesn't get clobbered by a later message restore.
// An address with no stored content is left at its empty default: it is
// not resubmitted through arbitration.
func (c *Controller) LoadSnapshot(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for address := 0; address < NumDisplays; address++ {
		entry, ok := snap.Buffer[address]
		if !ok || entry.Content == nil {
			continue
		}
		client := ""
		if entry.Owner != nil {
			client = *entry.Owner
		}
		c.setMessageLocked(address, entry.Content, entry.Priority, client)
	}
	for address := 0; address < NumDisplays; address++ {
		if value, ok := snap.StopIndicators[address]; ok {
			c.setStopIndicatorLocked(address, value)
		}
	}
	for address := 0; address < NumDisplays; address++ {
		if value, ok := snap.Enabled[address]; ok {
			c.setEnabledLocked(address, value)
		}
	}
}

func (c *Controller) persistLocked() {
	if c.persistPath == "" {
		return
	}
	snap := Snapshot{
		Buffer:         c.copyBufferLocked(),
		CurrentText:    c.copyCurrentTextLocked(),
		Enabled:        c.copyBoolMapLocked(c.enabled),
		StopIndicators: c.copyBoolMapLocked(c.stopIndicators),
	}
	if err := SaveSnapshot(c.persistPath, snap); err != nil {
		c.logger.Error("persistence write failed", "path", c.persistPath, "err", err)
	}
}

// Close flushes a final snapshot and releases the underlying master.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.persistLocked()
	c.mu.Unlock()
	return c.master.Close()
}

func ownerString(owner *string) string {
	if owner == nil {
		return ""
	}
	return *owner
}
