// Package engine drives one FTP or FTPS connection on behalf of a session.
//
// An Engine dials lazily, keeps the remote working directory, maps every
// failure onto a closed set of result codes and scopes local file access
// around transfers. It is not safe for concurrent use except for Close,
// which may be called from any goroutine to abort the engine.
package engine

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/gonzalop/ftps"
	"github.com/gonzalop/ftps/listing"
)

// TLSMode selects how the control connection is protected.
type TLSMode string

const (
	TLSNone     TLSMode = "none"
	TLSExplicit TLSMode = "explicit"
	TLSImplicit TLSMode = "implicit"
)

// Config describes the server an Engine talks to.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string

	TLS TLSMode

	// TLSConfig is cloned for every connection. RootCAs feed the trust
	// evaluation handed to Verifier.
	TLSConfig *tls.Config

	// Verifier decides on server certificates. Without one the standard
	// chain verification applies.
	Verifier ftps.Verifier

	Timeout     time.Duration
	IdleTimeout time.Duration
	DisableEPSV bool

	Parser  *listing.Parser
	Metrics ftps.MetricsCollector
	Logger  zerolog.Logger
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 21
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Engine wraps one control connection.
type Engine struct {
	cfg    Config
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu guards client and closed; Close may run concurrently with an
	// operation.
	mu     sync.Mutex
	client *ftps.Client
	closed bool

	currentPath string
	// cwdPending is set when a new connection has not yet been moved to
	// currentPath.
	cwdPending bool

	// locks serializes access to local download targets.
	locks *xsync.MapOf[string, *sync.Mutex]
}

// New returns an engine for cfg. No connection is made until the first
// operation or Connect.
func New(cfg Config) *Engine {
	if cfg.TLS == "" {
		cfg.TLS = TLSExplicit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		logger:      cfg.Logger.With().Str("host", cfg.Host).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		currentPath: "/",
		locks:       xsync.NewMapOf[string, *sync.Mutex](),
	}
}

// CurrentPath returns the last directory successfully listed.
func (e *Engine) CurrentPath() string {
	return e.currentPath
}

// Connect dials and logs in unless a connection is already open. The
// context bounds the attempt, including any wait for a trust decision.
func (e *Engine) Connect(ctx context.Context) error {
	_, err := e.conn(ctx, "connect")
	return err
}

// Connected reports whether a control connection is open.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client != nil
}

// Close aborts any operation in progress, including a pending trust
// decision, and drops the connection. Later operations fail with
// CodeNotConnected.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	c := e.client
	e.client = nil
	e.mu.Unlock()

	e.cancel()
	if c == nil {
		return nil
	}
	return c.Close()
}

// Quit ends the session politely with QUIT and closes the engine.
func (e *Engine) Quit() error {
	e.mu.Lock()
	c := e.client
	e.client = nil
	e.mu.Unlock()

	if c != nil {
		_ = c.Quit()
	}
	return e.Close()
}

func (e *Engine) options() []ftps.Option {
	opts := []ftps.Option{
		ftps.WithTimeout(e.cfg.Timeout),
		ftps.WithIdleTimeout(e.cfg.IdleTimeout),
		ftps.WithLogger(e.logger),
	}
	if e.cfg.Parser != nil {
		opts = append(opts, ftps.WithListingParser(e.cfg.Parser))
	}
	if e.cfg.Metrics != nil {
		opts = append(opts, ftps.WithMetrics(e.cfg.Metrics))
	}
	if e.cfg.DisableEPSV {
		opts = append(opts, ftps.WithDisableEPSV())
	}

	var tlsConfig *tls.Config
	if e.cfg.TLSConfig != nil {
		tlsConfig = e.cfg.TLSConfig.Clone()
	}
	switch e.cfg.TLS {
	case TLSExplicit:
		opts = append(opts, ftps.WithExplicitTLS(tlsConfig))
	case TLSImplicit:
		opts = append(opts, ftps.WithImplicitTLS(tlsConfig))
	}
	if e.cfg.Verifier != nil && e.cfg.TLS != TLSNone {
		opts = append(opts, ftps.WithVerifier(e.cfg.Verifier))
	}
	return opts
}

// conn returns the open client, dialing and logging in first if needed. A
// new connection is moved to the current path before it is handed out.
func (e *Engine) conn(ctx context.Context, op string) (*ftps.Client, error) {
	c, err := e.dial(ctx, op)
	if err != nil {
		return nil, err
	}
	if !e.cwdPending {
		return c, nil
	}
	if err := c.ChangeDir(e.currentPath); err != nil {
		e.logger.Warn().Err(err).Str("path", e.currentPath).
			Msg("could not restore working directory after reconnect")
		e.settle(c, err)
		return nil, classify(op, err, CodeReadError)
	}
	e.cwdPending = false
	return c, nil
}

// dial returns the open connection or dials and logs in a new one. A new
// connection starts in the server's initial directory.
func (e *Engine) dial(ctx context.Context, op string) (*ftps.Client, error) {
	e.mu.Lock()
	closed, c := e.closed, e.client
	e.mu.Unlock()
	if closed {
		return nil, newError(op, CodeNotConnected, ftps.ErrClosed)
	}
	if c != nil {
		return c, nil
	}

	ctx, cancel := e.bind(ctx)
	defer cancel()

	e.logger.Info().Str("addr", e.cfg.addr()).Str("tls", string(e.cfg.TLS)).Msg("connecting")
	c, err := ftps.DialContext(ctx, e.cfg.addr(), e.options()...)
	if err != nil {
		if e.ctx.Err() != nil {
			return nil, newError(op, CodeNotConnected, err)
		}
		return nil, classify(op, err, CodeConnectFailed)
	}

	if err := c.Login(e.cfg.User, e.cfg.Password); err != nil {
		_ = c.Close()
		return nil, classify(op, err, CodeAuthFailed)
	}

	if c.HasFeature("UTF8") {
		if err := c.SetOption("UTF8", "ON"); err != nil {
			e.logger.Debug().Err(err).Msg("server refused OPTS UTF8 ON")
		}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		_ = c.Close()
		return nil, newError(op, CodeNotConnected, ftps.ErrClosed)
	}
	e.client = c
	e.mu.Unlock()
	e.cwdPending = e.currentPath != "/"

	e.logger.Info().Str("user", e.cfg.User).Msg("logged in")
	return c, nil
}

// bind derives a context that also ends when the engine is closed.
func (e *Engine) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(e.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// settle drops the connection when err shows it is no longer usable, so the
// next operation reconnects.
func (e *Engine) settle(c *ftps.Client, err error) {
	if !broken(err) {
		return
	}
	e.mu.Lock()
	if e.client == c {
		e.client = nil
	}
	e.mu.Unlock()
	_ = c.Close()
	e.logger.Warn().Err(err).Msg("control connection lost, will reconnect on next operation")
}

// ChangeDirectory lists dir and makes it the current directory. dir must
// be absolute and end in "/". The current path is left untouched unless
// both the listing and the directory change succeed.
func (e *Engine) ChangeDirectory(ctx context.Context, dir string) ([]listing.Entry, error) {
	const op = "cd"
	if !isDirPath(dir) {
		return nil, newError(op, CodeInvalidArgument, errInvalidDir(dir))
	}

	c, err := e.dial(ctx, op)
	if err != nil {
		return nil, err
	}

	entries, err := c.List(dir)
	if err != nil {
		e.settle(c, err)
		return nil, classify(op, err, CodeReadError)
	}
	if err := c.ChangeDir(dir); err != nil {
		e.settle(c, err)
		return nil, classify(op, err, CodeReadError)
	}

	e.currentPath = dir
	e.cwdPending = false
	e.logger.Debug().Str("path", dir).Int("entries", len(entries)).Msg("directory changed")
	return entries, nil
}

// List lists the current directory without changing it.
func (e *Engine) List(ctx context.Context) ([]listing.Entry, error) {
	const op = "list"
	c, err := e.conn(ctx, op)
	if err != nil {
		return nil, err
	}

	entries, err := c.List(e.currentPath)
	if err != nil {
		e.settle(c, err)
		return nil, classify(op, err, CodeReadError)
	}
	return entries, nil
}
