package ibis

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestDispatcher(t *testing.T) (*Client, *Controller, *fakeTransport, func()) {
	t.Helper()

	transport := newFakeTransport()
	controller, _ := newTestController(transport, time.Minute)
	dispatcher := NewDispatcher(controller, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = ctx
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go dispatcher.handleConn(conn)
		}
	}()

	client := NewClient(ln.Addr().String())
	client.Timeout = 2 * time.Second

	cleanup := func() {
		cancel()
		ln.Close()
	}
	return client, controller, transport, cleanup
}

func TestDispatcherSetMessage(t *testing.T) {
	client, controller, transport, cleanup := startTestDispatcher(t)
	defer cleanup()

	ok, err := client.SetText(0, "hello", 0, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	// set-message only stores the content; the refresh tick paints it.
	controller.Tick()
	require.Eventually(t, func() bool {
		_, found := transport.last(0)
		return found
	}, time.Second, 10*time.Millisecond)
}

func TestDispatcherArbitrationRejection(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	ok, err := client.SetText(0, "first", 5, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.SetText(0, "second", 0, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatcherEnable(t *testing.T) {
	client, controller, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	ok, err := client.SetEnabled(1, false)
	require.NoError(t, err)
	assert.True(t, ok)

	enabled, err := controller.GetEnabled(1)
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestDispatcherStopIndicator(t *testing.T) {
	client, controller, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	ok, err := client.SetStopIndicator(3, true)
	require.NoError(t, err)
	assert.True(t, ok)

	value, err := controller.GetStopIndicator(3)
	require.NoError(t, err)
	assert.True(t, value)
}

func TestDispatcherEnableToggle(t *testing.T) {
	client, controller, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	for address := 0; address < NumDisplays; address++ {
		enabled, err := controller.GetEnabled(address)
		require.NoError(t, err)
		require.True(t, enabled)
	}

	ok, err := client.ToggleEnabled(Broadcast)
	require.NoError(t, err)
	assert.True(t, ok)

	for address := 0; address < NumDisplays; address++ {
		enabled, err := controller.GetEnabled(address)
		require.NoError(t, err)
		assert.False(t, enabled, "address %d should have flipped to disabled", address)
	}
}

func TestDispatcherStopIndicatorToggle(t *testing.T) {
	client, controller, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	before, err := controller.GetStopIndicator(2)
	require.NoError(t, err)

	ok, err := client.ToggleStopIndicator(2)
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := controller.GetStopIndicator(2)
	require.NoError(t, err)
	assert.Equal(t, !before, after)
}

func TestDispatcherQueryBuffer(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	_, err := client.SetText(0, "hello", 0, "alice")
	require.NoError(t, err)

	buf, err := client.GetBuffer()
	require.NoError(t, err)
	require.Contains(t, buf, 0)
	require.NotNil(t, buf[0].Content)
	assert.Equal(t, "hello", buf[0].Content.Text)
}

func TestDispatcherQueryAll(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	all, err := client.GetAll()
	require.NoError(t, err)
	assert.Contains(t, all, "buffer")
	assert.Contains(t, all, "enabled")
	assert.Contains(t, all, "current_text")
	assert.Contains(t, all, "stop_indicators")
}

func TestDispatcherInvalidQueryDropsConnection(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	var reply map[string]any
	err := client.query("not-a-real-query", &reply)
	assert.Error(t, err)
}

func TestDispatcherRejectsMessageWithoutAddress(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	text := MakeText("hello")
	req := request{Message: text}
	var reply successReply
	err := client.SendRaw(req, &reply)
	require.NoError(t, err)
	assert.False(t, reply.Success)
}

func TestDispatcherOmittedClientDoesNotCollide(t *testing.T) {
	transport := newFakeTransport()
	controller, _ := newTestController(transport, time.Minute)
	dispatcher := NewDispatcher(controller, testLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go dispatcher.handleConn(conn)
		}
	}()

	sendAnonymous := func(text string, priority int) bool {
		conn, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

		address := 0
		req := request{Address: &address, Message: MakeText(text), Priority: priority}
		require.NoError(t, WriteDatagram(conn, req))
		var reply successReply
		require.NoError(t, ReadDatagram(conn, &reply))
		return reply.Success
	}

	// First anonymous connection claims address 0 at priority 5.
	ok1 := sendAnonymous("first", 5)
	require.True(t, ok1)

	// A second, unrelated anonymous connection (distinct ephemeral
	// source port) tries to overwrite at a lower priority. If both
	// omitted clients collapsed to the same "" owner, this would
	// wrongly succeed as a same-owner overwrite; with distinct
	// per-connection owners it must be rejected.
	ok2 := sendAnonymous("second", 0)
	assert.False(t, ok2)

	buf, err := controller.Query("buffer")
	require.NoError(t, err)
	entries := buf.(map[int]BufferEntry)
	require.NotNil(t, entries[0].Content)
	assert.Equal(t, "first", entries[0].Content.Text)
}

func TestDispatcherConcurrentClients(t *testing.T) {
	client, _, _, cleanup := startTestDispatcher(t)
	defer cleanup()

	done := make(chan error, 10)
	for i := 0; i < 10; i++ {
		go func(i int) {
			_, err := client.SetText(0, fmt.Sprintf("msg-%d", i), 0, "racer")
			done <- err
		}(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, <-done)
	}
}
