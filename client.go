package ftps

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gonzalop/ftps/listing"
)

// Client represents an FTP client connection.
type Client struct {
	// conn is the underlying network connection (control channel)
	conn net.Conn

	// reader is a buffered reader for the control channel
	reader *bufio.Reader

	// tlsConfig is the TLS configuration (if TLS is enabled)
	tlsConfig *tls.Config

	// dataTLSConfig is derived from tlsConfig once the control channel is secured
	dataTLSConfig *tls.Config

	// tlsMode indicates whether TLS is disabled, explicit, or implicit
	tlsMode tlsMode

	// verifier replaces standard certificate verification when set
	verifier Verifier

	// peerCert is the DER leaf approved on the control connection
	peerCert []byte

	// timeout is the timeout for operations
	timeout time.Duration

	// idleTimeout is the maximum time to wait before sending NOOP to keep connection alive
	idleTimeout time.Duration

	logger  zerolog.Logger
	metrics MetricsCollector

	dialer *net.Dialer

	host string
	port string

	// features stores the server's advertised features from FEAT command
	features map[string]string

	disableEPSV bool

	parser *listing.Parser

	// currentType tracks the current transfer type to avoid redundant TYPE commands
	currentType string

	// mu serializes commands on the control channel
	mu sync.Mutex

	// stateMu protects lastCommand and activeDataConn
	stateMu        sync.Mutex
	lastCommand    time.Time
	activeDataConn net.Conn

	closed    atomic.Bool
	closeOnce sync.Once

	// quitChan signals the keep-alive goroutine to stop
	quitChan chan struct{}
}

// Dial connects to an FTP server at the given address ("host:port").
//
// Example with Explicit TLS:
//
//	client, err := ftps.Dial("ftp.example.com:21",
//	    ftps.WithExplicitTLS(&tls.Config{ServerName: "ftp.example.com"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
func Dial(addr string, options ...Option) (*Client, error) {
	return DialContext(context.Background(), addr, options...)
}

// DialContext is like Dial but the context bounds the connection attempt,
// including any wait for a certificate decision.
func DialContext(ctx context.Context, addr string, options ...Option) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Client{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		tlsMode: tlsModeNone,
		dialer:  &net.Dialer{},
		logger:  zerolog.Nop(),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if c.parser == nil {
		if c.parser, err = listing.NewParser(listing.WithLogger(c.logger)); err != nil {
			return nil, err
		}
	}

	c.dialer.Timeout = c.timeout

	if err := c.connect(ctx); err != nil {
		c.recordConnection(false, connectFailureReason(err))
		return nil, err
	}
	c.recordConnection(true, "connected")

	c.stateMu.Lock()
	c.lastCommand = time.Now()
	c.stateMu.Unlock()

	c.startKeepAlive()

	return c, nil
}

func connectFailureReason(err error) string {
	var pe *ProtocolError
	switch {
	case errors.As(err, &pe):
		return "protocol"
	case errors.Is(err, ErrTLSHandshake):
		return "tls"
	default:
		return "network"
	}
}

func (c *Client) recordConnection(success bool, reason string) {
	if c.metrics != nil {
		c.metrics.RecordConnection(success, reason)
	}
}

// connect establishes the control connection and handles the initial handshake.
func (c *Client) connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.host, c.port)
	c.logger.Debug().Str("addr", addr).Stringer("tls_mode", c.tlsMode).Msg("connecting to ftp server")

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	if c.tlsMode == tlsModeImplicit {
		if err := c.handshake(ctx); err != nil {
			conn.Close()
			return err
		}
	}

	c.reader = bufio.NewReader(c.conn)

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			c.conn.Close()
			return fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to read greeting: %w", err)
	}
	c.logger.Debug().Int("code", resp.Code).Str("message", resp.Message).Msg("ftp greeting")

	if resp.Code != 220 {
		c.conn.Close()
		return newProtocolError("CONNECT", resp)
	}

	if c.tlsMode == tlsModeExplicit {
		if err := c.upgradeToTLS(ctx); err != nil {
			c.conn.Close()
			return err
		}
	}

	return nil
}

// handshake wraps c.conn in TLS and runs the handshake, consulting the
// verifier if one is installed.
func (c *Client) handshake(ctx context.Context) error {
	mode := c.tlsMode.String()
	c.logger.Debug().Str("mode", mode).Msg("starting TLS handshake")

	tlsConn := tls.Client(c.conn, c.controlTLSConfig(ctx))

	// A verifier may wait on a person, so only ctx bounds the handshake then.
	deadline := time.Time{}
	if c.timeout > 0 && c.verifier == nil {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrTLSHandshake, err)
	}
	_ = c.conn.SetDeadline(time.Time{})
	c.logger.Debug().Str("mode", mode).Msg("TLS handshake complete")

	c.conn = tlsConn
	c.dataTLSConfig = c.newDataTLSConfig()
	return nil
}

// upgradeToTLS upgrades the connection to TLS using AUTH TLS.
func (c *Client) upgradeToTLS(ctx context.Context) error {
	if _, err := c.expectCode(234, "AUTH", "TLS"); err != nil {
		return fmt.Errorf("AUTH TLS failed: %w", err)
	}

	if err := c.handshake(ctx); err != nil {
		return err
	}
	c.reader = bufio.NewReader(c.conn)

	if _, err := c.expectCode(200, "PBSZ", "0"); err != nil {
		return fmt.Errorf("PBSZ failed: %w", err)
	}

	if _, err := c.expectCode(200, "PROT", "P"); err != nil {
		return fmt.Errorf("PROT failed: %w", err)
	}

	return nil
}

// Login authenticates with the FTP server using the provided username and password.
func (c *Client) Login(username, password string) error {
	resp, err := c.sendCommand("USER", username)
	if err != nil {
		return err
	}

	// 230 means no password is required
	if resp.Code == 230 {
		return nil
	}

	if resp.Code != 331 {
		return newProtocolError("USER", resp)
	}

	if _, err := c.expectCode(230, "PASS", password); err != nil {
		return err
	}

	return nil
}

// Quit sends QUIT and closes the connection. A transfer in progress is
// aborted by closing its data connection.
func (c *Client) Quit() error {
	if c.closed.Load() {
		return nil
	}

	c.stopKeepAlive()
	c.closeActiveData()

	// Ignore errors, we're closing anyway
	_, _ = c.sendCommand("QUIT")

	return c.Close()
}

// Close drops the control and data connections without sending QUIT.
// It is safe to call while another goroutine is blocked in a command; that
// command fails promptly.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.stopKeepAlive()
		c.closeActiveData()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) closeActiveData() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.activeDataConn != nil {
		c.activeDataConn.Close()
		c.activeDataConn = nil
	}
}

// Type sets the transfer type (e.g., "A", "I").
func (c *Client) Type(transferType string) error {
	if c.currentType == transferType {
		return nil
	}

	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}

	c.currentType = transferType
	return nil
}

// Features queries the server for supported features using the FEAT command.
// The result is cached for the life of the connection.
func (c *Client) Features() (map[string]string, error) {
	if c.features != nil {
		return c.features, nil
	}

	resp, err := c.expectCode(211, "FEAT")
	if err != nil {
		return nil, err
	}

	c.features = parseFeatureLines(resp.Lines)
	return c.features, nil
}

// parseFeatureLines parses the lines of a FEAT response.
// Supports both formats:
// - RFC 2389: "211-Features:\r\n FEAT1\r\n FEAT2 params\r\n211 End"
// - Traditional: "211-Features\r\n211-FEAT1\r\n211-FEAT2 params\r\n211 End"
func parseFeatureLines(lines []string) map[string]string {
	features := make(map[string]string)
	for _, line := range lines {
		var featureLine string
		switch {
		case len(line) > 0 && line[0] == ' ':
			featureLine = strings.TrimSpace(line)
		case len(line) > 4 && line[3] == '-' && strings.HasPrefix(line, "211-") && !strings.HasSuffix(line, ":"):
			featureLine = strings.TrimSpace(line[4:])
		default:
			continue
		}

		if featureLine == "" {
			continue
		}

		name, params, _ := strings.Cut(featureLine, " ")
		features[strings.ToUpper(name)] = params
	}
	return features
}

// HasFeature checks if the server supports a specific feature.
func (c *Client) HasFeature(feature string) bool {
	feats, err := c.Features()
	if err != nil {
		return false
	}
	_, ok := feats[strings.ToUpper(feature)]
	return ok
}

// SetOption sets an option for a feature using the OPTS command.
//
// Example:
//
//	err := client.SetOption("UTF8", "ON")
func (c *Client) SetOption(option, value string) error {
	_, err := c.expect2xx("OPTS", option, value)
	return err
}

// Syst returns the system type of the server using the SYST command.
func (c *Client) Syst() (string, error) {
	resp, err := c.expect2xx("SYST")
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Noop sends a NOOP (no operation) command to the server.
func (c *Client) Noop() error {
	_, err := c.expect2xx("NOOP")
	return err
}

// Quote sends a raw command to the server and returns the response.
//
// Example:
//
//	resp, err := client.Quote("SITE", "UMASK", "022")
func (c *Client) Quote(command string, args ...string) (*Response, error) {
	return c.sendCommand(command, args...)
}

// Host returns the server host name the client was dialed with.
func (c *Client) Host() string {
	return c.host
}

// PeerCertificate returns the DER leaf approved for this connection, or nil
// without TLS.
func (c *Client) PeerCertificate() []byte {
	return c.peerCert
}
