package ftps

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/gonzalop/ftps/listing"
	"github.com/gonzalop/ftps/trust"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// Verifier decides whether a server certificate chain is acceptable.
// *trust.Gate implements it.
type Verifier interface {
	Verify(ctx context.Context, host string, chain []*x509.Certificate, roots *x509.CertPool) trust.Decision
}

// MetricsCollector receives client-side measurements. Methods must not block.
type MetricsCollector interface {
	// RecordCommand records one command/reply round trip.
	RecordCommand(cmd string, success bool, duration time.Duration)

	// RecordTransfer records a finished data transfer; operation is "RETR",
	// "STOR" or "LIST".
	RecordTransfer(operation string, bytes int64, duration time.Duration)

	// RecordConnection records a control connection attempt. reason is
	// "connected" on success and a short failure tag otherwise.
	RecordConnection(success bool, reason string)
}

// WithTimeout sets the timeout for connection and operations.
// This applies to both the initial connection and subsequent read/write operations.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.timeout = timeout
		return nil
	}
}

// WithIdleTimeout sets the maximum idle time before sending NOOP keep-alive.
// Set to 0 to disable automatic keep-alive.
func WithIdleTimeout(timeout time.Duration) Option {
	return func(c *Client) error {
		c.idleTimeout = timeout
		return nil
	}
}

// WithExplicitTLS enables explicit TLS mode (AUTH TLS).
// The client connects on the standard FTP port (21) and upgrades to TLS
// using the AUTH TLS command. This is the recommended mode for FTPS.
//
// A ClientSessionCache is added if not present so data connections can
// resume the control connection's TLS session.
func WithExplicitTLS(config *tls.Config) Option {
	return func(c *Client) error {
		if c.tlsMode == tlsModeImplicit {
			return fmt.Errorf("explicit TLS cannot be combined with implicit TLS")
		}
		c.tlsConfig = withSessionCache(config)
		c.tlsMode = tlsModeExplicit
		return nil
	}
}

// WithImplicitTLS enables implicit TLS mode.
// The client connects directly with TLS, typically on port 990.
func WithImplicitTLS(config *tls.Config) Option {
	return func(c *Client) error {
		if c.tlsMode == tlsModeExplicit {
			return fmt.Errorf("implicit TLS cannot be combined with explicit TLS")
		}
		c.tlsConfig = withSessionCache(config)
		c.tlsMode = tlsModeImplicit
		return nil
	}
}

func withSessionCache(config *tls.Config) *tls.Config {
	if config == nil {
		config = &tls.Config{}
	}
	if config.ClientSessionCache == nil {
		config.ClientSessionCache = tls.NewLRUClientSessionCache(0)
	}
	return config
}

// WithVerifier routes server certificate checks on the control connection
// through v instead of the standard verifier. Data connections are then
// accepted only if they present the leaf certificate v approved.
//
// Example:
//
//	gate := trust.NewGate(trust.WithHandler(askUser))
//	client, _ := ftps.Dial("ftp.example.com:21",
//	    ftps.WithExplicitTLS(nil),
//	    ftps.WithVerifier(gate),
//	)
func WithVerifier(v Verifier) Option {
	return func(c *Client) error {
		c.verifier = v
		return nil
	}
}

// WithLogger sets the logger. Commands and replies are logged at debug level.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithDialer sets a custom net.Dialer for establishing connections.
func WithDialer(dialer *net.Dialer) Option {
	return func(c *Client) error {
		c.dialer = dialer
		return nil
	}
}

// WithDisableEPSV forces PASV instead of trying EPSV first.
func WithDisableEPSV() Option {
	return func(c *Client) error {
		c.disableEPSV = true
		return nil
	}
}

// WithListingParser sets the parser used by List.
func WithListingParser(p *listing.Parser) Option {
	return func(c *Client) error {
		if p == nil {
			return fmt.Errorf("nil listing parser")
		}
		c.parser = p
		return nil
	}
}

// WithMetrics installs a metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// tlsMode represents the TLS mode for the connection.
type tlsMode int

const (
	tlsModeNone tlsMode = iota
	tlsModeExplicit
	tlsModeImplicit
)

func (m tlsMode) String() string {
	switch m {
	case tlsModeExplicit:
		return "explicit"
	case tlsModeImplicit:
		return "implicit"
	default:
		return "none"
	}
}
