// Command ftps is an interactive FTP/FTPS client.
//
//	ftps [flags] [server-name]
//
// The server is given with --host or by the name of a known server. Every
// server connected to is remembered in the known-server file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/gonzalop/ftps/config"
	"github.com/gonzalop/ftps/engine"
	"github.com/gonzalop/ftps/internal/logging"
	"github.com/gonzalop/ftps/internal/metrics"
	"github.com/gonzalop/ftps/profile"
	"github.com/gonzalop/ftps/session"
	"github.com/gonzalop/ftps/trust"
)

const passwordEnv = "FTPS_PASSWORD"

type options struct {
	host        string
	port        int
	user        string
	password    string
	path        string
	configPath  string
	profiles    string
	implicit    bool
	logLevel    string
	metricsAddr string
	server      string
}

func parseFlags(args []string) (*options, error) {
	var o options
	fs := flag.NewFlagSet("ftps", flag.ContinueOnError)
	fs.StringVarP(&o.host, "host", "H", "", "server host name or address")
	fs.IntVarP(&o.port, "port", "p", 0, "control port (default from config, 21 or 990)")
	fs.StringVarP(&o.user, "user", "u", "", "user name, empty for anonymous")
	fs.StringVar(&o.password, "password", "", "password (or set "+passwordEnv+")")
	fs.StringVar(&o.path, "path", "", "initial remote directory")
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file")
	fs.StringVar(&o.profiles, "profiles", defaultProfilesPath(), "known-server file")
	fs.BoolVar(&o.implicit, "implicit", false, "use implicit TLS")
	fs.StringVarP(&o.logLevel, "log-level", "l", "", "log level: trace, debug, info, warn, error")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() > 1 {
		return nil, fmt.Errorf("at most one server name expected, got %d", fs.NArg())
	}
	o.server = fs.Arg(0)
	if o.host == "" && o.server == "" {
		return nil, errors.New("either --host or a known server name is required")
	}
	if o.password == "" {
		o.password = os.Getenv(passwordEnv)
	}
	return &o, nil
}

func defaultProfilesPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "servers.yaml"
	}
	return filepath.Join(dir, "ftps", "servers.yaml")
}

// knownServers guards the profile list shared by the command loop and the
// coordinator.
type knownServers struct {
	mu   sync.Mutex
	list *profile.List
	path string
}

func (k *knownServers) remember(host, user, dir string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.list.Remember(host, user, dir) {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return err
	}
	return k.list.Save(k.path)
}

func (k *knownServers) describe() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return describeServers(k.list)
}

// target fills host, port, user and path from the known server named in o
// when no host was given. Flags win over the stored values.
func (k *knownServers) target(o *options) error {
	if o.host != "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	i := k.list.IndexOfName(o.server)
	if i < 0 {
		return fmt.Errorf("%w: %s", profile.ErrNotFound, o.server)
	}
	s := k.list.At(i)
	o.host = s.Host
	if o.port == 0 {
		o.port = s.Port
	}
	if o.user == "" {
		o.user = s.User
	}
	if o.path == "" {
		o.path = s.Path
	}
	return nil
}

func loadConfig(o *options) (*config.Config, error) {
	var override *config.ConfigOverride
	if o.configPath != "" {
		var err error
		if override, err = config.LoadOverride(o.configPath); err != nil {
			return nil, err
		}
	} else {
		override = &config.ConfigOverride{}
	}
	if o.implicit {
		mode := string(engine.TLSImplicit)
		override.TLSMode = &mode
	}
	if o.logLevel != "" {
		override.LogLevel = &o.logLevel
	}

	cfg := config.NewConfig(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func serveMetrics(addr string, c *metrics.Collector, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	logger.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}

func run(ctx context.Context, o *options, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	logging.Init(os.Stderr, cfg.LogLevel)
	logger := logging.Component("main")

	list, err := profile.Load(o.profiles)
	if err != nil {
		return fmt.Errorf("failed to load known servers: %w", err)
	}
	known := &knownServers{list: list, path: o.profiles}
	if err := known.target(o); err != nil {
		return err
	}

	ec, err := cfg.Engine(o.host, o.port, o.user, o.password, logging.Component("engine"))
	if err != nil {
		return err
	}

	sh := newShell(out, readLines(in))
	sh.downloadDir = cfg.DownloadDir
	sh.servers = known.describe
	sh.onConnected = func(dir string) {
		if err := known.remember(o.host, o.user, dir); err != nil {
			logger.Warn().Err(err).Str("file", o.profiles).Msg("failed to save known servers")
		}
	}

	handler := sh.ask
	if cfg.AutoAccept {
		handler = trust.AutoAccept(sh.ask)
	}
	regOpts := []session.Option{
		session.WithTrustHandler(handler),
		session.WithTrustTimeout(cfg.TrustTimeout),
		session.WithLogger(logging.Component("session")),
	}

	if o.metricsAddr != "" {
		collector := metrics.New(nil)
		ec.Metrics = collector
		regOpts = append(regOpts, session.WithMetrics(collector))
		srv := serveMetrics(o.metricsAddr, collector, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	coord := session.NewCoordinator()
	defer coord.Stop()
	reg := session.NewRegistry(coord, regOpts...)

	dir := o.path
	if dir == "" {
		dir = "/"
	}
	logger.Info().Str("host", o.host).Int("port", ec.Port).Str("tls", string(ec.TLS)).Msg("connecting")
	sh.sess = reg.Connect(ec, dir, sh)
	sh.run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return reg.CloseAll(closeCtx)
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
