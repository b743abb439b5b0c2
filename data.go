package ftps

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"
)

var (
	// pasvRegex matches the PASV response format: 227 Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	pasvRegex = regexp.MustCompile(`\((\d+),(\d+),(\d+),(\d+),(\d+),(\d+)\)`)

	// epsvRegex matches the EPSV response format: 229 Entering Extended Passive Mode (|||port|)
	epsvRegex = regexp.MustCompile(`\(\|\|\|(\d+)\|\)`)
)

// parsePASV parses a PASV response and returns the host and port.
// Example: "227 Entering Passive Mode (192,168,1,1,195,149)"
// Returns: "192.168.1.1:50069" (195*256 + 149 = 50069)
func parsePASV(response string) (string, error) {
	matches := pasvRegex.FindStringSubmatch(response)
	if len(matches) != 7 {
		return "", fmt.Errorf("invalid PASV response: %s", response)
	}

	var h [4]int
	for i := 0; i < 4; i++ {
		val, err := strconv.Atoi(matches[i+1])
		if err != nil || val < 0 || val > 255 {
			return "", fmt.Errorf("invalid PASV IP part: %s", matches[i+1])
		}
		h[i] = val
	}
	host := fmt.Sprintf("%d.%d.%d.%d", h[0], h[1], h[2], h[3])

	p1, err1 := strconv.Atoi(matches[5])
	p2, err2 := strconv.Atoi(matches[6])
	if err1 != nil || err2 != nil || p1 > 255 || p2 > 255 {
		return "", fmt.Errorf("invalid PASV port parts: %s, %s", matches[5], matches[6])
	}

	return net.JoinHostPort(host, strconv.Itoa(p1*256+p2)), nil
}

// parseEPSV parses an EPSV response and returns the port.
// Example: "229 Entering Extended Passive Mode (|||6446|)"
// Returns: "6446"
func parseEPSV(response string) (string, error) {
	matches := epsvRegex.FindStringSubmatch(response)
	if len(matches) != 2 {
		return "", fmt.Errorf("invalid EPSV response: %s", response)
	}

	port, err := strconv.Atoi(matches[1])
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid EPSV port: %s", matches[1])
	}

	return matches[1], nil
}

// resolveDataAddr replaces an unroutable PASV host (0.0.0.0 or a private
// address behind NAT that differs from the control host) with the control
// connection host.
func resolveDataAddr(pasvAddr, controlHost string) string {
	host, port, err := net.SplitHostPort(pasvAddr)
	if err != nil {
		return pasvAddr
	}

	ip := net.ParseIP(host)
	if ip == nil || ip.IsUnspecified() {
		return net.JoinHostPort(controlHost, port)
	}
	if ip.IsPrivate() {
		if ctl := net.ParseIP(controlHost); ctl == nil || !ctl.IsPrivate() && !ctl.IsLoopback() {
			return net.JoinHostPort(controlHost, port)
		}
	}

	return pasvAddr
}

// openDataConn opens a passive data connection, trying EPSV before PASV.
// A TLS-protected connection is wrapped but not yet handshaken.
func (c *Client) openDataConn() (net.Conn, error) {
	var addr string

	if !c.disableEPSV {
		if resp, err := c.sendCommand("EPSV"); err != nil {
			return nil, fmt.Errorf("EPSV failed: %w", err)
		} else if resp.Code == 500 || resp.Code == 502 {
			c.disableEPSV = true
		} else if resp.Is2xx() {
			if port, err := parseEPSV(resp.String()); err == nil {
				addr = net.JoinHostPort(c.host, port)
			}
		}
	}

	if addr == "" {
		resp, err := c.expect2xx("PASV")
		if err != nil {
			return nil, err
		}

		addr, err = parsePASV(resp.String())
		if err != nil {
			return nil, err
		}
		addr = resolveDataAddr(addr, c.host)
	}

	c.logger.Debug().Str("addr", addr).Msg("opening data connection")
	conn, err := c.dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to data port: %w", err)
	}

	return c.wrapDataTLS(conn), nil
}

// cmdDataConnFrom opens a data connection, sends cmd and waits for the
// preliminary reply. The caller copies the data and then calls
// finishDataConn.
func (c *Client) cmdDataConnFrom(cmd string, args ...string) (net.Conn, error) {
	dataConn, err := c.openDataConn()
	if err != nil {
		return nil, err
	}

	c.stateMu.Lock()
	c.activeDataConn = dataConn
	c.stateMu.Unlock()

	resp, err := c.sendCommand(cmd, args...)
	if err == nil && !resp.Is1xx() {
		err = newProtocolError(cmd, resp)
	}
	if err != nil {
		c.releaseDataConn(dataConn)
		return nil, err
	}

	// The server has answered with a preliminary reply, so a final reply
	// follows even when the handshake fails and must be consumed here.
	if err := c.handshakeData(dataConn); err != nil {
		_ = c.finishDataConn(dataConn)
		return nil, err
	}

	return withIdleTimeout(dataConn, c.timeout), nil
}

// handshakeData completes the TLS handshake of a data connection. It runs
// after the preliminary reply because servers accept the data connection
// only once they have seen the transfer command.
func (c *Client) handshakeData(conn net.Conn) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil
	}

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("data connection: %w: %w", ErrTLSHandshake, err)
	}
	return nil
}

func (c *Client) releaseDataConn(conn net.Conn) {
	conn.Close()
	c.stateMu.Lock()
	if c.activeDataConn == conn {
		c.activeDataConn = nil
	}
	c.stateMu.Unlock()
}

// finishDataConn closes the data connection and reads the final response.
func (c *Client) finishDataConn(dataConn net.Conn) error {
	closeErr := dataConn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Cleared under c.mu so the keep-alive cannot slip a NOOP in ahead of
	// the completion reply.
	c.stateMu.Lock()
	c.activeDataConn = nil
	c.stateMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		if c.closed.Load() {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}
		return fmt.Errorf("failed to read completion response: %w", err)
	}

	c.logger.Debug().Int("code", resp.Code).Str("message", resp.Message).Msg("ftp data transfer complete")

	if !resp.Is2xx() {
		return newProtocolError("DATA_TRANSFER", resp)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close data connection: %w", closeErr)
	}

	return nil
}
