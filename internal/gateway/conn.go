package gateway

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrConnection wraps failures reading from or writing to a client.
var ErrConnection = errors.New("connection error")

// conn is an upgraded client connection. Writes come from the forwarding
// loop and from control-frame replies in the read loop, so they share a lock.
type conn struct {
	net.Conn
	id  string
	wmu sync.Mutex
}

// Write implements io.Writer for wsutil's control-frame replies.
func (c *conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.Conn.Write(p)
}

func (c *conn) writeBinary(p []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if timeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := wsutil.WriteServerBinary(c.Conn, p); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConnection, c.id, err)
	}
	return nil
}

// read returns the next data frame. Ping, pong and close frames are handled
// inside wsutil.
func (c *conn) read() ([]byte, ws.OpCode, error) {
	data, op, err := wsutil.ReadClientData(c)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read %s: %w", ErrConnection, c.id, err)
	}
	return data, op, nil
}

// closedByPeer reports whether err is an orderly end of the connection
// rather than a failure worth a warning.
func closedByPeer(err error) bool {
	var closed wsutil.ClosedError
	return errors.As(err, &closed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
