package trust

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gonzalop/ftps/internal/logging"
)

// Handler receives a Request and must eventually call Request.Decide.
// It runs on the context chosen by the dispatcher and must not block it.
type Handler func(r *Request)

// Dispatcher runs fn on a coordination context (a UI loop, an event
// goroutine). The default starts a new goroutine.
type Dispatcher func(fn func())

// Gate blocks TLS handshakes until a decision is made. A gate allows one
// outstanding request at a time; a connection attempt that arrives while
// another is still waiting is rejected.
type Gate struct {
	mu       sync.Mutex
	handler  Handler
	dispatch Dispatcher
	timeout  time.Duration
	logger   zerolog.Logger
	hook     func(host string, d Decision)

	pending *Request
}

// Option configures a Gate.
type Option func(*Gate)

// WithHandler sets the decision handler.
func WithHandler(h Handler) Option {
	return func(g *Gate) {
		g.handler = h
	}
}

// WithDispatcher sets where the handler runs.
func WithDispatcher(d Dispatcher) Option {
	return func(g *Gate) {
		g.dispatch = d
	}
}

// WithTimeout bounds how long Verify waits. Zero waits until the context
// ends. A timed out request is rejected.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) {
		g.timeout = d
	}
}

// WithLogger sets the gate logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Gate) {
		g.logger = l
	}
}

// WithDecisionHook calls fn with every decision Verify returns, including
// rejections for a missing handler, a timeout or an abandoned wait.
func WithDecisionHook(fn func(host string, d Decision)) Option {
	return func(g *Gate) {
		g.hook = fn
	}
}

// NewGate builds a gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		dispatch: func(fn func()) { go fn() },
		logger:   logging.Component("trust"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetHandler replaces the handler. Nil means reject everything.
func (g *Gate) SetHandler(h Handler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

// Verify evaluates chain for host, hands the request to the handler and
// blocks until a decision, ctx cancellation or the gate timeout. Anything
// other than an explicit Proceed is a Reject.
func (g *Gate) Verify(ctx context.Context, host string, chain []*x509.Certificate, roots *x509.CertPool) Decision {
	ev := Evaluate(host, chain, roots)

	g.mu.Lock()
	handler := g.handler
	if handler == nil {
		g.mu.Unlock()
		g.logger.Warn().Str("host", host).Stringer("result", ev.Result).
			Msg("no trust handler installed, rejecting")
		g.decided(host, Reject)
		return Reject
	}
	if g.pending != nil {
		g.mu.Unlock()
		g.logger.Warn().Str("host", host).Msg("trust decision already outstanding, rejecting")
		g.decided(host, Reject)
		return Reject
	}
	r := &Request{
		Host:      host,
		Chain:     chain,
		Preverify: ev.Preverify,
		Result:    ev.Result,
		Err:       ev.Err,
		gate:      g,
		done:      make(chan Decision, 1),
	}
	g.pending = r
	timeout := g.timeout
	g.mu.Unlock()

	g.logger.Debug().Str("host", host).Stringer("preverify", ev.Preverify).
		Stringer("result", ev.Result).Msg("awaiting trust decision")
	g.dispatch(func() { handler(r) })

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	d := Reject
	select {
	case d = <-r.done:
	case <-ctx.Done():
		g.logger.Debug().Str("host", host).Err(ctx.Err()).Msg("trust decision abandoned")
	case <-expired:
		g.logger.Warn().Str("host", host).Dur("timeout", timeout).Msg("trust decision timed out")
	}

	g.mu.Lock()
	if g.pending == r {
		g.pending = nil
	}
	g.mu.Unlock()

	g.logger.Info().Str("host", host).Stringer("decision", d).Msg("trust decision")
	g.decided(host, d)
	return d
}

func (g *Gate) decided(host string, d Decision) {
	if g.hook != nil {
		g.hook(host, d)
	}
}

// Pending returns the request currently waiting, or nil.
func (g *Gate) Pending() *Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Decide resolves the request currently waiting.
func (g *Gate) Decide(d Decision) error {
	g.mu.Lock()
	r := g.pending
	g.mu.Unlock()
	if r == nil {
		return ErrNoPendingRequest
	}
	return g.decide(r, d)
}

func (g *Gate) decide(r *Request, d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r.decided {
		return ErrAlreadyDecided
	}
	if g.pending != r {
		return ErrExpired
	}
	r.decided = true
	r.done <- d
	return nil
}

// VerifyConnection returns a tls.Config.VerifyConnection callback that
// routes the peer chain through the gate. The config must also set
// InsecureSkipVerify so the default verifier does not run first.
func (g *Gate) VerifyConnection(ctx context.Context, host string, roots *x509.CertPool) func(tls.ConnectionState) error {
	return func(cs tls.ConnectionState) error {
		if g.Verify(ctx, host, cs.PeerCertificates, roots) != Proceed {
			return ErrRejected
		}
		return nil
	}
}

// AutoAccept proceeds without asking when the chain verified and hands
// anything else to next. A nil next rejects unverified chains.
func AutoAccept(next Handler) Handler {
	return func(r *Request) {
		if r.Preverify == PreverifyOK && r.Result.Trusted() {
			_ = r.Decide(Proceed)
			return
		}
		if next == nil {
			_ = r.Decide(Reject)
			return
		}
		next(r)
	}
}
