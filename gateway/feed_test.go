package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte(`{"a":1}`)))
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf, 64)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	got, err = ReadFrame(&buf, 64)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ReadFrame(&buf, 64)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, bytes.Repeat([]byte("x"), 100)))
	_, err := ReadFrame(&buf, 10)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func startTCPFeed(t *testing.T, maxFrame int) (*TCPFeed, chan Event) {
	t.Helper()
	events := make(chan Event, 16)
	feed := NewTCPFeed("127.0.0.1:0", maxFrame, events, nil, nil)
	require.NoError(t, feed.Start(context.Background()))
	t.Cleanup(func() { _ = feed.Stop() })
	return feed, events
}

func TestTCPFeedDeliversTicksAndErrors(t *testing.T) {
	feed, events := startTCPFeed(t, 1024)
	require.NoError(t, feed.Health())

	conn, err := net.Dial("tcp", feed.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, []byte(`{"symbol":"USDJPY","bid":"110.00","ask":"110.10"}`)))
	require.NoError(t, WriteFrame(conn, []byte(`not json`)))
	require.NoError(t, WriteFrame(conn, []byte(`{"symbol":"USDJPY","bid":"110.50","ask":"110.60","flag":1}`)))

	ev := recvEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, TransportTCP, ev.Transport)
	assert.Equal(t, "110.05", ev.Tick.Mid().String())

	ev = recvEvent(t, events)
	var pe *ParseError
	assert.True(t, errors.As(ev.Err, &pe), "malformed frame surfaces as ParseError")

	ev = recvEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, uint8(1), ev.Tick.Flag)
}

func TestTCPFeedClosesOnOversizedFrame(t *testing.T) {
	feed, events := startTCPFeed(t, 16)

	conn, err := net.Dial("tcp", feed.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, []byte(strings.Repeat("x", 64))))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err, "server must close the connection")
	assert.Empty(t, events)
}

func TestTCPFeedMultipleConnections(t *testing.T) {
	feed, events := startTCPFeed(t, 1024)

	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", feed.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, WriteFrame(conn, []byte(`{"symbol":"A","bid":1,"ask":2}`)))
	}
	for i := 0; i < 3; i++ {
		assert.NoError(t, recvEvent(t, events).Err)
	}
}

func TestTCPFeedStop(t *testing.T) {
	events := make(chan Event) // 无缓冲：Stop 必须能打断阻塞的发送
	feed := NewTCPFeed("127.0.0.1:0", 1024, events, nil, nil)
	require.NoError(t, feed.Start(context.Background()))

	conn, err := net.Dial("tcp", feed.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, WriteFrame(conn, []byte(`{"symbol":"A","bid":1,"ask":2}`)))
	time.Sleep(50 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- feed.Stop() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked")
	}
	assert.Error(t, feed.Health())
}

func TestWSFeed(t *testing.T) {
	events := make(chan Event, 4)
	feed := NewWSFeed(1024, events, nil, nil)
	srv := httptest.NewServer(feed)
	defer srv.Close()
	defer feed.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"symbol":"EURUSD","bid":"1.1","ask":"1.3","server_at":"2024-01-01T00:00:00Z"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"bid":1}`)))

	ev := recvEvent(t, events)
	require.NoError(t, ev.Err)
	assert.Equal(t, TransportWS, ev.Transport)
	assert.Equal(t, "1.2", ev.Tick.Mid().String())
	assert.False(t, ev.Tick.ServerAt.IsZero())

	ev = recvEvent(t, events)
	assert.Error(t, ev.Err)
}
