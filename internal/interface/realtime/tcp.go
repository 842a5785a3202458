package realtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// TCP TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// tcpTransport frames messages as newline-delimited JSON over a raw TCP
// connection. One frame per line; the payload itself never contains a bare
// newline because it is always a compact JSON document.
type tcpTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
	maxSize int64
}

func newTCPTransport(conn net.Conn, maxFrameSize int64) *tcpTransport {
	if maxFrameSize <= 0 {
		maxFrameSize = 64 * 1024
	}
	return &tcpTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		maxSize: maxFrameSize,
	}
}

// ReadMessage reads the next frame. A context deadline maps onto the socket
// read deadline; cancellation without a deadline only takes effect through
// Close, which unblocks the pending read.
func (t *tcpTransport) ReadMessage(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	} else {
		if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	line, err := t.readLine()
	if err != nil {
		return nil, err
	}

	return bytes.TrimRight(line, "\r\n"), nil
}

// readLine reads up to the next newline, checking the size cap as bytes
// arrive so a peer streaming without newlines cannot grow the buffer
// unboundedly.
func (t *tcpTransport) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := t.reader.ReadSlice('\n')
		line = append(line, chunk...)
		if int64(len(line)) > t.maxSize {
			return nil, fmt.Errorf("realtime: frame exceeds %d bytes", t.maxSize)
		}
		if err == nil {
			return line, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, err
		}
	}
}

func (t *tcpTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.conn.Write(data); err != nil {
		return err
	}
	_, err := t.conn.Write([]byte{'\n'})
	return err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// TCP SERVER
// ══════════════════════════════════════════════════════════════════════════════

// handshake is the first line a client sends after connecting: the channel
// path it wants and the credential that authorizes it.
type handshake struct {
	Path  string `json:"path"`
	Token string `json:"token"`
}

// TCPServerConfig contains configuration for the TCP front of the gateway.
type TCPServerConfig struct {
	// Address to listen on, e.g. "0.0.0.0:9000".
	Address string

	// Gateway handles every accepted connection.
	Gateway *Gateway

	// HandshakeTimeout bounds how long a client may take to send its
	// handshake line after connecting.
	HandshakeTimeout time.Duration

	// MaxFrameSize caps inbound frame length in bytes.
	MaxFrameSize int64

	// Logger for structured logging.
	Logger *slog.Logger
}

// TCPServer accepts raw TCP connections and hands them to the gateway. Each
// connection starts with one handshake line naming the path and credential;
// every line after that is a client frame.
type TCPServer struct {
	config   TCPServerConfig
	logger   *slog.Logger
	listener net.Listener

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewTCPServer creates a TCP server for the given gateway.
func NewTCPServer(config TCPServerConfig) (*TCPServer, error) {
	if config.Gateway == nil {
		return nil, errors.New("realtime: gateway is required")
	}
	if config.Address == "" {
		config.Address = "0.0.0.0:9000"
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &TCPServer{
		config: config,
		logger: config.Logger,
	}, nil
}

// Serve listens and accepts connections until the context is cancelled.
func (s *TCPServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("realtime: server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("realtime: listen %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("realtime listener started", "address", s.config.Address)

	// Closing the listener unblocks Accept when the context ends.
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info("realtime listener stopped")
	return nil
}

// handle performs the handshake and runs the gateway session.
func (s *TCPServer) handle(ctx context.Context, conn net.Conn) {
	transport := newTCPTransport(conn, s.config.MaxFrameSize)

	hsCtx, cancel := context.WithTimeout(ctx, s.config.HandshakeTimeout)
	line, err := transport.ReadMessage(hsCtx)
	cancel()
	if err != nil {
		s.logger.Debug("handshake read failed", "remote", conn.RemoteAddr().String(), "error", err)
		_ = transport.Close()
		return
	}

	var hs handshake
	if err := json.Unmarshal(line, &hs); err != nil || hs.Path == "" {
		s.logger.Debug("malformed handshake", "remote", conn.RemoteAddr().String())
		_ = transport.Close()
		return
	}

	if err := s.config.Gateway.Serve(ctx, transport, hs.Path, hs.Token); err != nil {
		s.logger.Debug("session ended with error",
			"remote", conn.RemoteAddr().String(),
			"path", hs.Path,
			"error", err,
		)
	}
}
