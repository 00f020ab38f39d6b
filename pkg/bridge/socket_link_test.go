// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joined(chunks [][]byte) []byte {
	return bytes.Join(chunks, nil)
}

func startSocketLink(t *testing.T, cfg Config) (*SocketLink, *recordingSink) {
	t.Helper()
	link := NewSocketLink("127.0.0.1:0", cfg, nil)
	sink := &recordingSink{}
	link.SetSink(sink)
	require.NoError(t, link.Listen())
	runInBackground(t, link.Run)
	return link, sink
}

func dialLink(t *testing.T, link *SocketLink) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", link.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readExactly(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func TestSocketLinkAddrBeforeListen(t *testing.T) {
	link := NewSocketLink("127.0.0.1:0", testConfig(t, nil), nil)
	assert.Nil(t, link.Addr())
	assert.False(t, link.Connected())
}

func TestSocketLinkForwardsClientBytes(t *testing.T) {
	link, sink := startSocketLink(t, testConfig(t, nil))
	conn := dialLink(t, link)

	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return bytes.Equal(joined(sink.Chunks()), []byte("hello"))
	}, waitFor, tick)
	assert.Equal(t, uint64(5), link.stats.BytesFromClient.Load())
	assert.Equal(t, uint64(1), link.stats.ClientConnects.Load())
}

func TestSocketLinkChunksFitLengthByte(t *testing.T) {
	link, sink := startSocketLink(t, testConfig(t, nil))
	conn := dialLink(t, link)

	payload := bytes.Repeat([]byte{0x5A}, 1000)
	_, err := conn.Write(payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(joined(sink.Chunks())) == len(payload)
	}, waitFor, tick)
	for _, chunk := range sink.Chunks() {
		assert.LessOrEqual(t, len(chunk), 255)
	}
	assert.Equal(t, payload, joined(sink.Chunks()))
}

func TestSocketLinkSendToClient(t *testing.T) {
	link, _ := startSocketLink(t, testConfig(t, nil))
	conn := dialLink(t, link)
	require.Eventually(t, link.Connected, waitFor, tick)

	require.NoError(t, link.Send(context.Background(), []byte("Xhello")))
	assert.Equal(t, []byte("Xhello"), readExactly(t, conn, 6))
	assert.Equal(t, uint64(6), link.stats.BytesToClient.Load())
}

func TestSocketLinkSendWithoutClient(t *testing.T) {
	link, _ := startSocketLink(t, testConfig(t, nil))

	assert.NoError(t, link.Send(context.Background(), []byte("Xlost")))
	assert.Equal(t, uint64(1), link.stats.DroppedToClient.Load())
	assert.Zero(t, link.stats.BytesToClient.Load())
}

// deadlineFailConn records writes and refuses write deadlines.
type deadlineFailConn struct {
	bytes.Buffer
}

func (c *deadlineFailConn) Close() error         { return nil }
func (c *deadlineFailConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *deadlineFailConn) SetWriteDeadline(time.Time) error {
	return errors.New("deadline not supported")
}

func TestSocketLinkSendWithoutWriteDeadline(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := testConfig(t, nil)
	cfg.Logger = logger
	link := NewSocketLink("127.0.0.1:0", cfg, nil)

	conn := &deadlineFailConn{}
	link.conn = conn

	require.NoError(t, link.Send(context.Background(), []byte("Xhello")))
	assert.Equal(t, "Xhello", conn.String())
	assert.Equal(t, uint64(6), link.stats.BytesToClient.Load())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "set write deadline failed", entry.Message)
}

func TestSocketLinkClientChurn(t *testing.T) {
	link, sink := startSocketLink(t, testConfig(t, nil))

	first := dialLink(t, link)
	require.Eventually(t, link.Connected, waitFor, tick)

	// A second client waits until the first goes away.
	second := dialLink(t, link)
	_, err := second.Write([]byte("two"))
	require.NoError(t, err)

	_, err = first.Write([]byte("one"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Equal(joined(sink.Chunks()), []byte("one"))
	}, waitFor, tick)

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return bytes.Equal(joined(sink.Chunks()), []byte("onetwo"))
	}, waitFor, tick)

	require.NoError(t, link.Send(context.Background(), []byte("Xback")))
	assert.Equal(t, []byte("Xback"), readExactly(t, second, 5))
	assert.Equal(t, uint64(2), link.stats.ClientConnects.Load())

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool { return !link.Connected() }, waitFor, tick)

	third := dialLink(t, link)
	_, err = third.Write([]byte("three"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return bytes.Equal(joined(sink.Chunks()), []byte("onetwothree"))
	}, waitFor, tick)
}

func TestSocketLinkStopsOnCancel(t *testing.T) {
	link := NewSocketLink("127.0.0.1:0", testConfig(t, nil), nil)
	require.NoError(t, link.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx) }()

	conn, err := net.Dial("tcp", link.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, link.Connected, waitFor, tick)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Run did not return after cancel")
	}

	// The server side closed the client.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestSocketLinkListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	link := NewSocketLink(ln.Addr().String(), testConfig(t, nil), nil)
	assert.Error(t, link.Listen())
	assert.Error(t, link.Run(context.Background()))
}
