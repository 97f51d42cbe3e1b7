// Package client talks to a running gateway over its websocket: it sends
// command envelopes and reads event envelopes back.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/alfredjeanlab/insectcam/internal/envelope"
	"github.com/alfredjeanlab/insectcam/internal/messages"
)

// DefaultURL is where a local gateway listens.
const DefaultURL = "ws://localhost:8096"

// Client is one websocket connection to the gateway. Send and Recv may be
// used from different goroutines; neither is safe for concurrent use with
// itself.
type Client struct {
	conn net.Conn
	r    io.Reader
	wmu  sync.Mutex
}

// Dial connects to the gateway at url (ws://host:port).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn, r: conn}
	if br != nil {
		// The server may have sent frames right behind the handshake.
		c.r = io.MultiReader(br, conn)
	}
	return c, nil
}

// Read and Write let wsutil answer pings on our connection.
func (c *Client) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *Client) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.conn.Write(p)
}

// Send writes one envelope as a binary frame.
func (c *Client) Send(ctx context.Context, env envelope.Envelope) error {
	frame, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := wsutil.WriteClientBinary(c.conn, frame); err != nil {
		return fmt.Errorf("send %s: %w", env.Topic, err)
	}
	return nil
}

// SendState sends topic with a State payload.
func (c *Client) SendState(ctx context.Context, topic string, on bool) error {
	env, err := envelope.New(topic, messages.State{State: on})
	if err != nil {
		return err
	}
	return c.Send(ctx, env)
}

// SendTopic sends topic with an empty payload.
func (c *Client) SendTopic(ctx context.Context, topic string) error {
	return c.Send(ctx, envelope.Envelope{Topic: topic})
}

// Recv reads the next event. Frames that do not decode are skipped.
func (c *Client) Recv(ctx context.Context) (envelope.Envelope, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		data, op, err := wsutil.ReadServerData(c)
		if err != nil {
			if ctx.Err() != nil {
				return envelope.Envelope{}, ctx.Err()
			}
			return envelope.Envelope{}, fmt.Errorf("receive: %w", err)
		}
		if op != ws.OpBinary {
			continue
		}
		env, err := envelope.Decode(data)
		if err != nil {
			continue
		}
		return env, nil
	}
}

// Collect reads events accepted by match until none has arrived for idle,
// or ctx ends. Events match rejects are discarded.
func (c *Client) Collect(ctx context.Context, idle time.Duration, match func(envelope.Envelope) bool) ([]envelope.Envelope, error) {
	var out []envelope.Envelope
	for {
		rctx, cancel := context.WithTimeout(ctx, idle)
		env, err := c.Recv(rctx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && rctx.Err() != nil {
				return out, nil
			}
			return out, err
		}
		if match == nil || match(env) {
			out = append(out, env)
		}
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	c.wmu.Unlock()
	return c.conn.Close()
}
