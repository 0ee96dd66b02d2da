package provider

import (
	"context"
	"net"
	"time"
)

// DialFunc matches http.Transport.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// WithReadDeadline wraps dial so every Read on the returned connections must
// make progress within timeout. A zero timeout returns dial unchanged.
//
// ResponseHeaderTimeout only covers the wait for headers; this also bounds a
// body that stalls mid-stream. Idle pooled connections are dropped once the
// deadline passes and redialed on next use.
func WithReadDeadline(dial DialFunc, timeout time.Duration) DialFunc {
	if timeout <= 0 {
		return dial
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return &deadlineConn{Conn: conn, timeout: timeout}, nil
	}
}

type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}
