// Package gateway bridges one websocket client at a time onto the buses:
// binary frames from the client become commands, and every event is
// forwarded to whichever client is connected.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/idgen"
	"github.com/alfredjeanlab/insectcam/internal/streams"
)

// DefaultHandoffCapacity bounds the queue that passes the current connection
// from the accept loop to the forwarding loop.
const DefaultHandoffCapacity = 4

// DefaultWriteTimeout bounds a single frame write to the client.
const DefaultWriteTimeout = 10 * time.Second

// DefaultHandshakeTimeout bounds the websocket upgrade. Clients are accepted
// one at a time, so a peer that never finishes the handshake would otherwise
// hold up everyone behind it.
const DefaultHandshakeTimeout = 5 * time.Second

// Gateway is the websocket gateway actor.
type Gateway struct {
	addr     string
	commands *streams.Sender[envelope.Envelope]
	events   *streams.Receiver[envelope.Envelope]
	logger   *slog.Logger

	handoffCap       int
	writeTimeout     time.Duration
	handshakeTimeout time.Duration
	newID            func() string

	ready chan struct{}
	mu    sync.Mutex
	bound net.Addr
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithHandoffCapacity sets the connection handoff queue size.
func WithHandoffCapacity(n int) Option {
	return func(g *Gateway) { g.handoffCap = n }
}

// WithWriteTimeout bounds each frame write. Zero disables the deadline.
func WithWriteTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.writeTimeout = d }
}

// WithHandshakeTimeout bounds the websocket upgrade. Zero disables the
// deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.handshakeTimeout = d }
}

// WithConnectionIDs replaces the connection id generator.
func WithConnectionIDs(f func() string) Option {
	return func(g *Gateway) { g.newID = f }
}

// New creates a gateway that will listen on addr. It owns commands and
// events and closes them when Run returns.
func New(addr string, commands *streams.Sender[envelope.Envelope], events *streams.Receiver[envelope.Envelope], opts ...Option) *Gateway {
	g := &Gateway{
		addr:             addr,
		commands:         commands,
		events:           events,
		logger:           slog.Default(),
		handoffCap:       DefaultHandoffCapacity,
		writeTimeout:     DefaultWriteTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		newID:            idgen.ConnectionID,
		ready:            make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Ready is closed once the listener is bound.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// Addr returns the bound listen address, or nil before Ready.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.bound
}

// Run binds the listener and serves clients until ctx is cancelled or the
// event bus closes.
func (g *Gateway) Run(ctx context.Context) error {
	defer g.commands.Close()
	defer g.events.Close()

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", g.addr, err)
	}
	g.mu.Lock()
	g.bound = ln.Addr()
	g.mu.Unlock()
	close(g.ready)
	g.logger.Info("websocket gateway listening", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handoff := streams.NewQueue[*conn](g.handoffCap)
	defer handoff.Close()

	fwdErr := make(chan error, 1)
	go func() {
		err := g.forward(ctx, handoff)
		// A dead forwarding loop takes the accept loop down with it.
		cancel()
		fwdErr <- err
	}()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	err = g.accept(ctx, ln, handoff)
	cancel()
	ferr := <-fwdErr
	if errors.Is(ferr, streams.ErrClosed) {
		return ferr
	}
	return err
}

// forward moves every event to the connection currently held, or drops it.
func (g *Gateway) forward(ctx context.Context, handoff *streams.Queue[*conn]) error {
	var current *conn
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-handoff.C():
			current = c
		case env, ok := <-g.events.C():
			if !ok {
				return streams.ErrClosed
			}
			// A release queued alongside this event must win, so no frame
			// goes to a connection the accept loop already let go.
			current = latest(handoff, current)
			if current == nil {
				continue
			}
			frame, err := envelope.Encode(env)
			if err != nil {
				g.logger.Warn("dropping event", "topic", env.Topic, "err", err)
				continue
			}
			if err := current.writeBinary(frame, g.writeTimeout); err != nil {
				g.logger.Warn("dropping event", "conn", current.id, "topic", env.Topic, "err", err)
			}
		}
	}
}

func latest(handoff *streams.Queue[*conn], current *conn) *conn {
	for {
		select {
		case c := <-handoff.C():
			current = c
		default:
			return current
		}
	}
}

// accept serves connections one at a time. Later clients wait in the
// listener backlog until the current one leaves.
func (g *Gateway) accept(ctx context.Context, ln net.Listener, handoff *streams.Queue[*conn]) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			g.logger.Warn("accept failed", "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		g.serve(ctx, nc, handoff)
	}
}

func (g *Gateway) serve(ctx context.Context, nc net.Conn, handoff *streams.Queue[*conn]) {
	c := &conn{Conn: nc, id: g.newID()}
	logger := g.logger.With("conn", c.id, "remote", nc.RemoteAddr().String())

	stop := context.AfterFunc(ctx, func() { nc.Close() })
	defer stop()
	defer nc.Close()

	if g.handshakeTimeout > 0 {
		_ = nc.SetDeadline(time.Now().Add(g.handshakeTimeout))
	}
	if _, err := ws.Upgrade(c); err != nil {
		logger.Warn("websocket handshake failed", "err", err)
		return
	}
	_ = nc.SetDeadline(time.Time{})
	if err := handoff.Send(ctx, c); err != nil {
		return
	}
	logger.Info("client connected")

	for {
		data, op, err := c.read()
		if err != nil {
			if closedByPeer(err) || ctx.Err() != nil {
				logger.Info("client disconnected")
			} else {
				logger.Warn("client read failed", "err", err)
			}
			break
		}
		if op != ws.OpBinary {
			continue
		}
		env, err := envelope.Decode(data)
		if err != nil {
			logger.Warn("dropping frame", "err", err)
			continue
		}
		logger.Debug("command received", "topic", env.Topic)
		if err := g.commands.Send(ctx, env); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("dropping command", "topic", env.Topic, "err", err)
		}
	}

	// Release before closing, so the forwarding loop stops writing to it.
	// On shutdown the forwarding loop is gone and nobody is listening.
	if ctx.Err() == nil {
		if err := handoff.Send(ctx, nil); err != nil {
			logger.Debug("release not delivered", "err", err)
		}
	}
}
