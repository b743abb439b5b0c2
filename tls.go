package ftps

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"

	"github.com/gonzalop/ftps/trust"
)

// controlTLSConfig derives the control connection config. With a verifier
// installed the standard chain check is replaced by the verifier's decision
// and the approved leaf is remembered for the data connections.
func (c *Client) controlTLSConfig(ctx context.Context) *tls.Config {
	cfg := c.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = c.host
	}
	if c.verifier == nil {
		return cfg
	}

	roots := cfg.RootCAs
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if c.verifier.Verify(ctx, c.host, cs.PeerCertificates, roots) != trust.Proceed {
			return trust.ErrRejected
		}
		if len(cs.PeerCertificates) > 0 {
			c.peerCert = cs.PeerCertificates[0].Raw
		}
		return nil
	}
	return cfg
}

// newDataTLSConfig derives the data connection config. Data connections
// share the session cache so servers that demand session reuse accept them.
func (c *Client) newDataTLSConfig() *tls.Config {
	cfg := c.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = c.host
	}
	if c.verifier == nil {
		return cfg
	}

	pinned := c.peerCert
	cfg.InsecureSkipVerify = true
	cfg.VerifyConnection = func(cs tls.ConnectionState) error {
		if len(cs.PeerCertificates) == 0 || !bytes.Equal(cs.PeerCertificates[0].Raw, pinned) {
			return ErrCertificateChanged
		}
		return nil
	}
	return cfg
}

// wrapDataTLS wraps a data connection in TLS when the control channel is
// protected. The handshake itself is deferred to handshakeData.
func (c *Client) wrapDataTLS(conn net.Conn) net.Conn {
	if c.dataTLSConfig == nil {
		return conn
	}
	return tls.Client(conn, c.dataTLSConfig)
}
