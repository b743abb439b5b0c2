// Package session turns user requests into engine call sequences.
//
// A Registry holds the live sessions. Each Session owns one engine and a
// worker goroutine that runs its requests in order, never two at once.
// Results are reported to observers as Event values on a shared
// Coordinator goroutine, the same place trust requests are handed out.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/gonzalop/ftps/engine"
	"github.com/gonzalop/ftps/internal/logging"
	"github.com/gonzalop/ftps/trust"
)

// Metrics counts live sessions and the trust decisions made for them.
type Metrics interface {
	SessionOpened()
	SessionClosed()
	TrustDecided(host string, d trust.Decision)
}

// Option configures a Registry.
type Option func(*Registry)

// WithTrustHandler sets where trust requests go. Every TLS session whose
// engine has no verifier gets its own trust gate, which dispatches requests
// to h on the coordinator. Without a handler every certificate is rejected.
func WithTrustHandler(h trust.Handler) Option {
	return func(r *Registry) {
		r.trustHandler = h
	}
}

// WithTrustTimeout bounds the wait for a trust decision. Zero waits until
// the session is disconnected.
func WithTrustTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.trustTimeout = d
	}
}

// WithLogger sets the registry logger; sessions derive theirs from it.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics installs a session and trust decision counter.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// Registry owns the live sessions. Sessions keep a back-reference to remove
// themselves on disconnect.
type Registry struct {
	coord        *Coordinator
	sessions     *xsync.MapOf[uuid.UUID, *Session]
	trustHandler trust.Handler
	trustTimeout time.Duration
	logger       zerolog.Logger
	metrics      Metrics
}

// NewRegistry returns an empty registry whose sessions notify on coord.
func NewRegistry(coord *Coordinator, opts ...Option) *Registry {
	r := &Registry{
		coord:    coord,
		sessions: xsync.NewMapOf[uuid.UUID, *Session](),
		logger:   logging.Component("session"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect creates a session for cfg, registers it and queues the initial
// connect and listing of dir. Observers passed here see every event of the
// session, including the first.
func (r *Registry) Connect(cfg engine.Config, dir string, observers ...Observer) *Session {
	id := uuid.New()
	logger := r.logger.With().Str("session", id.String()).Logger()

	var gate *trust.Gate
	if cfg.Verifier == nil && cfg.TLS != engine.TLSNone {
		opts := []trust.Option{
			trust.WithHandler(r.trustHandler),
			trust.WithDispatcher(r.coord.Async),
			trust.WithTimeout(r.trustTimeout),
			trust.WithLogger(logger),
		}
		if r.metrics != nil {
			opts = append(opts, trust.WithDecisionHook(r.metrics.TrustDecided))
		}
		gate = trust.NewGate(opts...)
		cfg.Verifier = gate
	}
	cfg.Logger = logger

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		host:     cfg.Host,
		user:     cfg.User,
		eng:      engine.New(cfg),
		gate:     gate,
		registry: r,
		coord:    r.coord,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		work:     newQueue(),
		done:     make(chan struct{}),
		path:     "/",
	}
	for _, o := range observers {
		s.AddObserver(o)
	}

	r.sessions.Store(id, s)
	if r.metrics != nil {
		r.metrics.SessionOpened()
	}
	logger.Debug().Msg("session created")

	go s.work.run()
	s.submit("connect", func(ctx context.Context) {
		s.open(ctx, dir)
	})
	return s
}

// Get returns the session with id.
func (r *Registry) Get(id uuid.UUID) (*Session, bool) {
	return r.sessions.Load(id)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}

// Sessions returns the live sessions in no particular order.
func (r *Registry) Sessions() []*Session {
	var out []*Session
	r.sessions.Range(func(_ uuid.UUID, s *Session) bool {
		out = append(out, s)
		return true
	})
	return out
}

func (r *Registry) remove(s *Session) {
	if _, ok := r.sessions.LoadAndDelete(s.id); !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.SessionClosed()
	}
	s.logger.Debug().Msg("session removed")
}

// CloseAll disconnects every session and waits until each is done or ctx
// ends.
func (r *Registry) CloseAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range r.Sessions() {
		s := s
		g.Go(func() error {
			s.Disconnect()
			select {
			case <-s.Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	return g.Wait()
}
