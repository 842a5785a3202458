package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumena-hub/lumena-platform/internal/domain/access"
	"github.com/lumena-hub/lumena-platform/internal/domain/identity"
	"github.com/lumena-hub/lumena-platform/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// Transport is one bidirectional, ordered, message-oriented connection. The
// concrete framing (WebSocket, SSE pair, test pipe) lives outside this
// package; the gateway only needs whole messages in both directions.
type Transport interface {
	// ReadMessage blocks until a client frame arrives. io.EOF (or a
	// wrapped close error) ends the session.
	ReadMessage(ctx context.Context) ([]byte, error)

	// WriteMessage delivers one frame to the client.
	WriteMessage(data []byte) error

	// Close tears the connection down. Must be safe to call twice.
	Close() error
}

// Authenticator resolves a connection credential to an identity. Session
// issuance lives outside this system; the gateway only verifies.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (identity.Identity, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Conn wraps a transport with a bounded outbound queue and a single writer
// goroutine, making TrySend safe from any goroutine and never blocking.
type Conn struct {
	id        string
	transport Transport
	outbound  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewConn wraps a transport. bufferSize bounds the outbound queue; a full
// queue drops frames rather than blocking a broadcast.
func NewConn(transport Transport, bufferSize int, logger *slog.Logger) *Conn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		id:        uuid.NewString(),
		transport: transport,
		outbound:  make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		logger:    logger,
	}

	go c.writeLoop()
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// TrySend queues a frame without blocking. Reports false when the buffer is
// full or the connection is closed; the frame is dropped either way.
func (c *Conn) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.outbound <- data:
		return true
	default:
		return false
	}
}

// Close shuts the connection down. Safe to call any number of times.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close", "conn", c.id, "error", err)
		}
	})
}

// writeLoop is the single writer: everything queued by TrySend goes out here
// in order, so concurrent broadcasts never interleave partial frames.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbound:
			if err := c.transport.WriteMessage(data); err != nil {
				c.logger.Debug("write failed, closing connection", "conn", c.id, "error", err)
				c.Close()
				return
			}
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GATEWAY
// ══════════════════════════════════════════════════════════════════════════════

// Gateway authenticates connections, gates them against their requested
// resource, and drives the channel lifecycle over the registry.
type Gateway struct {
	auth     Authenticator
	gate     *access.Gate
	registry messaging.Registry
	channels map[access.ResourceKind]Channel
	logger   *slog.Logger

	sendBuffer  int
	idleTimeout time.Duration
}

// GatewayConfig contains configuration for Gateway.
type GatewayConfig struct {
	Authenticator Authenticator
	Gate          *access.Gate
	Registry      messaging.Registry
	Channels      []Channel
	Logger        *slog.Logger

	// SendBufferSize bounds each connection's outbound queue.
	SendBufferSize int

	// IdleTimeout closes connections with no inbound frames (including
	// pings) for this long. Zero disables the idle check.
	IdleTimeout time.Duration
}

// NewGateway creates a gateway serving the given channels.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Authenticator == nil {
		return nil, errors.New("realtime: authenticator is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("realtime: access gate is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("realtime: registry is required")
	}
	if len(cfg.Channels) == 0 {
		return nil, errors.New("realtime: at least one channel is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}

	channels := make(map[access.ResourceKind]Channel, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		channels[ch.Kind()] = ch
	}

	return &Gateway{
		auth:        cfg.Authenticator,
		gate:        cfg.Gate,
		registry:    cfg.Registry,
		channels:    channels,
		logger:      cfg.Logger,
		sendBuffer:  cfg.SendBufferSize,
		idleTimeout: cfg.IdleTimeout,
	}, nil
}

// Serve runs one connection to completion: authenticate, gate, join, pump
// messages, tear down. It returns when the connection ends; the error
// reports why a connection was refused, nil for a normal session.
//
// Order matters on the way in: a failed credential or a denied gate check
// closes the transport before the connection ever touches the registry, so a
// denied connection can never receive a broadcast.
func (g *Gateway) Serve(ctx context.Context, transport Transport, path, token string) error {
	id, err := g.auth.Authenticate(ctx, token)
	if err != nil || !id.IsValid() {
		_ = transport.Close()
		g.logger.Info("connection refused: authentication failed", "path", path)
		return fmt.Errorf("realtime: authentication failed")
	}

	kind, resID, err := ParseRoute(path)
	if err != nil {
		_ = transport.Close()
		return err
	}

	res, ch, err := g.resolve(kind, resID, id)
	if err != nil {
		_ = transport.Close()
		return err
	}

	allowed, err := g.gate.Allowed(ctx, id, res)
	if err != nil {
		_ = transport.Close()
		g.logger.Error("gate check failed", "user", id.ID, "resource", res, "error", err)
		return fmt.Errorf("realtime: access check failed: %w", err)
	}
	if !allowed {
		// A denial carries no reason.
		_ = transport.Close()
		g.logger.Info("connection refused: access denied", "user", id.ID, "resource", res.String())
		return fmt.Errorf("realtime: access denied")
	}

	conn := NewConn(transport, g.sendBuffer, g.logger)
	sess := &Session{conn: conn, Identity: id, Resource: res}

	if err := g.registry.Join(sess.Group(), conn); err != nil {
		conn.Close()
		return fmt.Errorf("realtime: join group: %w", err)
	}

	var cleanupOnce sync.Once
	cleanup := func() {
		cleanupOnce.Do(func() {
			g.registry.Leave(sess.Group(), conn.ID())
			conn.Close()
			ch.OnClose(context.WithoutCancel(ctx), sess)
			g.logger.Info("connection closed", "conn", conn.ID(), "user", id.ID, "group", sess.Group())
		})
	}
	defer cleanup()

	if err := ch.OnOpen(ctx, sess); err != nil {
		g.logger.Error("channel open failed", "conn", conn.ID(), "group", sess.Group(), "error", err)
		return fmt.Errorf("realtime: open channel: %w", err)
	}

	g.logger.Info("connection open", "conn", conn.ID(), "user", id.ID, "group", sess.Group())

	g.readLoop(ctx, sess, ch)
	return nil
}

// resolve maps a parsed route to a resource and its channel.
func (g *Gateway) resolve(kind, resID string, id identity.Identity) (access.Resource, Channel, error) {
	var res access.Resource
	switch kind {
	case "personal":
		res = access.Personal(id.ID)
	case "discussion":
		res = access.Discussion(resID)
	case "live-lesson":
		res = access.LiveLesson(resID)
	default:
		return access.Resource{}, nil, fmt.Errorf("realtime: unknown resource kind %q", kind)
	}

	ch, ok := g.channels[res.Kind]
	if !ok {
		return access.Resource{}, nil, fmt.Errorf("realtime: no channel for %q", res.Kind)
	}
	return res, ch, nil
}

// readLoop pumps inbound frames until the transport ends or the connection
// goes idle past the timeout.
func (g *Gateway) readLoop(ctx context.Context, sess *Session, ch Channel) {
	for {
		readCtx := ctx
		var cancel context.CancelFunc
		if g.idleTimeout > 0 {
			readCtx, cancel = context.WithTimeout(ctx, g.idleTimeout)
		}

		data, err := sess.conn.transport.ReadMessage(readCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				g.logger.Debug("read ended", "conn", sess.ConnID(), "error", err)
			}
			return
		}

		env, err := ParseEnvelope(data)
		if err != nil {
			// Unknown or malformed frames are dropped, not fatal.
			g.logger.Debug("dropping malformed frame", "conn", sess.ConnID(), "error", err)
			continue
		}

		if env.Type == "ping" {
			sess.Send(pongFrame)
			continue
		}

		if err := g.dispatch(ctx, sess, ch, env); err != nil {
			sess.Send(EncodeError(errorCode(err), err.Error()))
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, sess *Session, ch Channel, env Envelope) error {
	defer func() {
		if p := recover(); p != nil {
			g.logger.Error("handler panic", "conn", sess.ConnID(), "type", env.Type, "panic", p)
		}
	}()

	return ch.OnMessage(ctx, sess, env)
}

// errorCode maps handler errors to stable client-facing codes.
func errorCode(err error) string {
	var codeErr *CodedError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return "request_failed"
}

// CodedError pairs a client-facing code with an error.
type CodedError struct {
	Code string
	Err  error
}

// Error returns the underlying error message.
func (e *CodedError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *CodedError) Unwrap() error { return e.Err }

// WithCode wraps an error with a client-facing code.
func WithCode(code string, err error) error {
	return &CodedError{Code: code, Err: err}
}

// EncodeJSON serializes any payload, for channels composing ad-hoc frames.
func EncodeJSON(v interface{}) ([]byte, bool) {
	data, err := json.Marshal(v)
	return data, err == nil
}
