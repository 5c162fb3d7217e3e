package ibis

import (
	"fmt"
	"net"
	"time"
)

// DefaultClientTimeout bounds how long a Client waits for a connection
// and a reply before giving up.
const DefaultClientTimeout = 5 * time.Second

// Client is a thin wrapper around the length-prefixed JSON control
// protocol, grounded on original_source/client-server-system/ibis_client.py:
// one short-lived TCP connection per call, request then reply.
type Client struct {
	Address string
	Timeout time.Duration
}

// NewClient builds a Client targeting address (host:port) with the
// default timeout.
func NewClient(address string) *Client {
	return &Client{Address: address, Timeout: DefaultClientTimeout}
}

// SendRaw performs one request/reply round trip with an arbitrary
// already-JSON-shaped payload, for callers that build their own request
// document.
func (c *Client) SendRaw(req any, reply any) error {
	return c.roundTrip(req, reply)
}

func (c *Client) roundTrip(req any, reply any) error {
	conn, err := net.DialTimeout("tcp", c.Address, c.Timeout)
	if err != nil {
		return fmt.Errorf("ibis: dial %s: %w", c.Address, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.Timeout)); err != nil {
		return err
	}
	if err := WriteDatagram(conn, req); err != nil {
		return fmt.Errorf("ibis: send request: %w", err)
	}
	if reply == nil {
		return nil
	}
	if err := ReadDatagram(conn, reply); err != nil {
		return fmt.Errorf("ibis: read reply: %w", err)
	}
	return nil
}

type successReply struct {
	Success bool `json:"success"`
}

// SetEnabled enables or disables address (Broadcast for all four).
func (c *Client) SetEnabled(address int, value bool) (bool, error) {
	return c.setEnabled(address, boolValue(value))
}

// ToggleEnabled flips address's current enabled state (or, for
// Broadcast, flips the conjunction of all four).
func (c *Client) ToggleEnabled(address int) (bool, error) {
	return c.setEnabled(address, toggleValue())
}

func (c *Client) setEnabled(address int, v *boolOrToggle) (bool, error) {
	req := request{Enable: v}
	if address != Broadcast {
		req.Address = &address
	}
	var reply successReply
	if err := c.roundTrip(req, &reply); err != nil {
		return false, err
	}
	return reply.Success, nil
}

// SetStopIndicator drives the stop-indicator state for address.
func (c *Client) SetStopIndicator(address int, value bool) (bool, error) {
	return c.setStopIndicator(address, boolValue(value))
}

// ToggleStopIndicator flips address's current stop-indicator state.
func (c *Client) ToggleStopIndicator(address int) (bool, error) {
	return c.setStopIndicator(address, toggleValue())
}

func (c *Client) setStopIndicator(address int, v *boolOrToggle) (bool, error) {
	req := request{Address: &address, StopIndicator: v}
	var reply successReply
	if err := c.roundTrip(req, &reply); err != nil {
		return false, err
	}
	return reply.Success, nil
}

// SetMessage submits content for address at priority on behalf of
// client. The returned bool reports whether arbitration accepted it.
func (c *Client) SetMessage(address int, content *DisplayContent, priority int, client string) (bool, error) {
	req := request{Address: &address, Message: content, Priority: priority, Client: client}
	var reply successReply
	if err := c.roundTrip(req, &reply); err != nil {
		return false, err
	}
	return reply.Success, nil
}

// MakeText builds a static-line DisplayContent.
func MakeText(text string) *DisplayContent {
	return &DisplayContent{Type: ContentText, Text: text}
}

// MakeTime builds a clock DisplayContent rendered with the given
// strftime format.
func MakeTime(format string) *DisplayContent {
	return &DisplayContent{Type: ContentTime, Format: format}
}

// MakeSequence builds a cyclic DisplayContent over messages, each
// shown for interval seconds unless it sets its own Duration.
func MakeSequence(interval float64, messages ...DisplayContent) *DisplayContent {
	return &DisplayContent{Type: ContentSequence, Interval: interval, Messages: messages}
}

// SetText is a convenience wrapper around SetMessage for a static line.
func (c *Client) SetText(address int, text string, priority int, client string) (bool, error) {
	return c.SetMessage(address, MakeText(text), priority, client)
}

// SetTime is a convenience wrapper around SetMessage for a clock.
func (c *Client) SetTime(address int, format string, priority int, client string) (bool, error) {
	return c.SetMessage(address, MakeTime(format), priority, client)
}

// SetSequence is a convenience wrapper around SetMessage for a cyclic
// sequence of messages.
func (c *Client) SetSequence(address int, interval float64, messages []DisplayContent, priority int, client string) (bool, error) {
	return c.SetMessage(address, &DisplayContent{Type: ContentSequence, Interval: interval, Messages: messages}, priority, client)
}

func (c *Client) query(kind string, reply any) error {
	req := request{Query: &kind}
	return c.roundTrip(req, reply)
}

// GetCurrentText returns the text currently painted on each address.
func (c *Client) GetCurrentText() (map[int]*string, error) {
	var reply map[int]*string
	if err := c.query("current_text", &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetBuffer returns the full arbitration buffer entry for each address.
func (c *Client) GetBuffer() (map[int]BufferEntry, error) {
	var reply map[int]BufferEntry
	if err := c.query("buffer", &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetEnabled returns the enabled flag for each address.
func (c *Client) GetEnabled() (map[int]bool, error) {
	var reply map[int]bool
	if err := c.query("enabled", &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetStopIndicators returns the stop-indicator flag for each address.
func (c *Client) GetStopIndicators() (map[int]bool, error) {
	var reply map[int]bool
	if err := c.query("stop_indicators", &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// GetAll returns buffer, current_text, enabled, and stop_indicators in
// one round trip.
func (c *Client) GetAll() (map[string]any, error) {
	var reply map[string]any
	if err := c.query("all", &reply); err != nil {
		return nil, err
	}
	return reply, nil
}
