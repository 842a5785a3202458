package realtime

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTransport_ReadsNewlineFrames(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 0)

	go func() {
		client.Write([]byte(`{"type":"ping"}` + "\n"))
	}()

	frame, err := transport.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(frame))
}

func TestTCPTransport_StripsCarriageReturn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 0)

	go func() {
		client.Write([]byte("{\"type\":\"ping\"}\r\n"))
	}()

	frame, err := transport.ReadMessage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(frame))
}

func TestTCPTransport_WriteAppendsNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 0)

	read := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		read <- buf[:n]
	}()

	require.NoError(t, transport.WriteMessage([]byte(`{"type":"pong"}`)))

	select {
	case got := <-read:
		assert.Equal(t, `{"type":"pong"}`+"\n", string(got))
	case <-time.After(time.Second):
		t.Fatal("write never reached the peer")
	}
}

func TestTCPTransport_DeadlineUnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := transport.ReadMessage(ctx)
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

func TestTCPTransport_RejectsOversizeFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 8)

	go func() {
		client.Write([]byte("0123456789abcdef\n"))
	}()

	_, err := transport.ReadMessage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestTCPTransport_AbortsNewlinelessStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	transport := newTCPTransport(server, 64)

	// A peer streaming bytes without ever sending a newline must be cut
	// off at the cap, not buffered until it runs out of data.
	go func() {
		client.Write(bytes.Repeat([]byte("a"), 8*1024))
	}()

	_, err := transport.ReadMessage(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}
