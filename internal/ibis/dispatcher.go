package ibis

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
)

// DefaultPort is the TCP port the control-protocol listener binds by
// default, grounded on original_source/client-server-system's IBIS_PORT.
const DefaultPort = 4242

// boolOrToggle is the wire shape of "enable" and "stop_indicator": either
// a literal bool, or the string "toggle", meaning "read the current
// value and flip it".
type boolOrToggle struct {
	Toggle bool
	Value  bool
}

func boolValue(v bool) *boolOrToggle { return &boolOrToggle{Value: v} }
func toggleValue() *boolOrToggle     { return &boolOrToggle{Toggle: true} }

func (b boolOrToggle) MarshalJSON() ([]byte, error) {
	if b.Toggle {
		return json.Marshal("toggle")
	}
	return json.Marshal(b.Value)
}

func (b *boolOrToggle) UnmarshalJSON(data []byte) error {
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err == nil {
		b.Value = asBool
		b.Toggle = false
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil && asString == "toggle" {
		b.Toggle = true
		return nil
	}
	return fmt.Errorf("ibis: expected a bool or \"toggle\"")
}

// request is the wire shape of every inbound datagram. Only one of
// Enable, Query, or StopIndicator is ever set by a well-formed client;
// anything with none of them set is a set-message command and must
// carry Address and Message.
type request struct {
	Address       *int            `json:"address,omitempty"`
	Enable        *boolOrToggle   `json:"enable,omitempty"`
	Query         *string         `json:"query,omitempty"`
	StopIndicator *boolOrToggle   `json:"stop_indicator,omitempty"`
	Message       *DisplayContent `json:"message,omitempty"`
	Priority      int             `json:"priority,omitempty"`
	// Client identifies the arbitration owner for a set-message command.
	// When empty, handleConn substitutes the connection's remote address.
	Client string `json:"client,omitempty"`
}

// Dispatcher is the TCP front end: one accepted connection handles
// exactly one request/reply round trip, then closes. Grounded on
// original_source/ibis/ibis_server.py's handle_client, which does the
// same thing over a blocking accept loop.
type Dispatcher struct {
	controller *Controller
	logger     *log.Logger
}

// NewDispatcher builds a Dispatcher bound to controller.
func NewDispatcher(controller *Controller, logger *log.Logger) *Dispatcher {
	return &Dispatcher{controller: controller, logger: logger}
}

// Serve listens on address (host:port) and handles connections until ctx
// is canceled, at which point the listener is closed and Serve returns
// nil.
func (d *Dispatcher) Serve(ctx context.Context, address string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("ibis: listen on %s: %w", address, err)
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		ln.Close()
		close(done)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				return fmt.Errorf("ibis: accept on %s: %w", address, err)
			}
		}
		go d.handleConn(conn)
	}
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	defer conn.Close()

	var req request
	if err := ReadDatagram(conn, &req); err != nil {
		d.logger.Debug("dropping malformed datagram", "remote", conn.RemoteAddr(), "err", err)
		return
	}

	switch {
	case req.Enable != nil:
		address := Broadcast
		if req.Address != nil {
			address = *req.Address
		}
		value, err := d.resolve(*req.Enable, func() (bool, error) { return d.controller.GetEnabled(address) })
		if err != nil {
			d.replySuccess(conn, err)
			return
		}
		d.replySuccess(conn, d.controller.SetEnabled(address, value))

	case req.Query != nil:
		result, err := d.controller.Query(*req.Query)
		if err != nil {
			d.logger.Debug("dropping invalid query", "query", *req.Query, "err", err)
			return
		}
		if err := WriteDatagram(conn, result); err != nil {
			d.logger.Debug("write query reply failed", "remote", conn.RemoteAddr(), "err", err)
		}

	case req.StopIndicator != nil:
		if req.Address == nil {
			d.replySuccess(conn, fmt.Errorf("ibis: address is required"))
			return
		}
		value, err := d.resolve(*req.StopIndicator, func() (bool, error) { return d.controller.GetStopIndicator(*req.Address) })
		if err != nil {
			d.replySuccess(conn, err)
			return
		}
		d.replySuccess(conn, d.controller.SetStopIndicator(*req.Address, value))

	default:
		if req.Address == nil || req.Message == nil {
			d.replySuccess(conn, fmt.Errorf("ibis: address and message are required"))
			return
		}
		client := req.Client
		if client == "" {
			client = conn.RemoteAddr().String()
		}
		accepted, err := d.controller.SetMessage(*req.Address, req.Message, req.Priority, client)
		if err != nil {
			d.replySuccess(conn, err)
			return
		}
		d.replyResult(conn, accepted)
	}
}

// resolve turns a bool-or-toggle into a concrete value, reading the
// current state through current() when a toggle was requested.
func (d *Dispatcher) resolve(b boolOrToggle, current func() (bool, error)) (bool, error) {
	if !b.Toggle {
		return b.Value, nil
	}
	cur, err := current()
	if err != nil {
		return false, err
	}
	return !cur, nil
}

func (d *Dispatcher) replySuccess(conn net.Conn, err error) {
	d.replyResult(conn, err == nil)
	if err != nil {
		d.logger.Info("command failed", "remote", conn.RemoteAddr(), "err", err)
	}
}

func (d *Dispatcher) replyResult(conn net.Conn, success bool) {
	if err := WriteDatagram(conn, map[string]bool{"success": success}); err != nil {
		d.logger.Debug("write reply failed", "remote", conn.RemoteAddr(), "err", err)
	}
}
