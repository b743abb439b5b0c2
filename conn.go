package ftps

import (
	"net"
	"time"
)

// idleConn fails a read or write once the peer has been silent for
// timeout. A slow transfer that keeps moving never times out.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

// withIdleTimeout wraps conn unless d disables the limit.
func withIdleTimeout(conn net.Conn, d time.Duration) net.Conn {
	if d <= 0 {
		return conn
	}
	return &idleConn{Conn: conn, timeout: d}
}

func (c *idleConn) extend(set func(time.Time) error) error {
	return set(time.Now().Add(c.timeout))
}

func (c *idleConn) Read(b []byte) (int, error) {
	if err := c.extend(c.Conn.SetReadDeadline); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *idleConn) Write(b []byte) (int, error) {
	if err := c.extend(c.Conn.SetWriteDeadline); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}
