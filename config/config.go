// Package config holds the client settings and their YAML file form.
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gonzalop/ftps/engine"
	"github.com/gonzalop/ftps/listing"
)

// Default configuration values. See [Config] for field descriptions.
const (
	DefaultPort           = 21
	DefaultImplicitPort   = 990
	DefaultTimeout        = 30 * time.Second
	DefaultIdleTimeout    = 0
	DefaultTLSMode        = "explicit"
	DefaultLegacyEncoding = "shift_jis"
	DefaultTrustTimeout   = 0
	DefaultLogLevel       = "info"
	DefaultAutoAccept     = true
	DefaultDownloadDir    = "."
)

// DefaultExclusionNames are the listing names never shown.
var DefaultExclusionNames = []string{".", ".."}

// Config contains the runtime settings of the client.
type Config struct {
	Port        int           // Control port (Default 21)
	Timeout     time.Duration // Per-operation network timeout (Default 30s)
	IdleTimeout time.Duration // Idle time before a keep-alive NOOP, 0 disables (Default 0)
	DisableEPSV bool          // Use PASV only

	// TLSMode is "explicit" (AUTH TLS), "implicit" or "none" (Default explicit)
	TLSMode string

	LegacyEncoding string   // Listing fallback encoding label (Default shift_jis)
	Exclusions     []string // Listing names to hide (Default ".", "..")

	// TrustTimeout bounds the wait for a certificate decision; 0 waits
	// until the session ends (Default 0)
	TrustTimeout time.Duration

	// AutoAccept proceeds without asking when the chain verifies against
	// the system roots (Default true)
	AutoAccept bool

	LogLevel    string // zerolog level name (Default info)
	DownloadDir string // Local folder for downloads (Default ".")
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading a partial file. See [Config] for field descriptions.
type ConfigOverride struct {
	Port           *int           `yaml:"port,omitempty"`
	Timeout        *time.Duration `yaml:"timeout,omitempty"`
	IdleTimeout    *time.Duration `yaml:"idle_timeout,omitempty"`
	DisableEPSV    *bool          `yaml:"disable_epsv,omitempty"`
	TLSMode        *string        `yaml:"tls_mode,omitempty"`
	LegacyEncoding *string        `yaml:"legacy_encoding,omitempty"`
	Exclusions     []string       `yaml:"exclusions,omitempty"`
	TrustTimeout   *time.Duration `yaml:"trust_timeout,omitempty"`
	AutoAccept     *bool          `yaml:"auto_accept,omitempty"`
	LogLevel       *string        `yaml:"log_level,omitempty"`
	DownloadDir    *string        `yaml:"download_dir,omitempty"`
}

// NewDefaultConfig returns a Config with every default applied.
func NewDefaultConfig() *Config {
	return &Config{
		Port:           DefaultPort,
		Timeout:        DefaultTimeout,
		IdleTimeout:    DefaultIdleTimeout,
		TLSMode:        DefaultTLSMode,
		LegacyEncoding: DefaultLegacyEncoding,
		Exclusions:     append([]string(nil), DefaultExclusionNames...),
		TrustTimeout:   DefaultTrustTimeout,
		AutoAccept:     DefaultAutoAccept,
		LogLevel:       DefaultLogLevel,
		DownloadDir:    DefaultDownloadDir,
	}
}

// NewConfig returns the defaults with override applied. A nil override
// gives the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies the non-nil values of override.
func (c *Config) Merge(override *ConfigOverride) {
	if override.Port != nil {
		c.Port = *override.Port
	}
	if override.Timeout != nil {
		c.Timeout = *override.Timeout
	}
	if override.IdleTimeout != nil {
		c.IdleTimeout = *override.IdleTimeout
	}
	if override.DisableEPSV != nil {
		c.DisableEPSV = *override.DisableEPSV
	}
	if override.TLSMode != nil {
		c.TLSMode = *override.TLSMode
		// Implicit TLS lives on its own port unless one was given.
		if c.TLSMode == string(engine.TLSImplicit) && override.Port == nil {
			c.Port = DefaultImplicitPort
		}
	}
	if override.LegacyEncoding != nil {
		c.LegacyEncoding = *override.LegacyEncoding
	}
	if override.Exclusions != nil {
		c.Exclusions = append([]string(nil), override.Exclusions...)
	}
	if override.TrustTimeout != nil {
		c.TrustTimeout = *override.TrustTimeout
	}
	if override.AutoAccept != nil {
		c.AutoAccept = *override.AutoAccept
	}
	if override.LogLevel != nil {
		c.LogLevel = *override.LogLevel
	}
	if override.DownloadDir != nil {
		c.DownloadDir = *override.DownloadDir
	}
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch engine.TLSMode(c.TLSMode) {
	case engine.TLSNone, engine.TLSExplicit, engine.TLSImplicit:
	default:
		return fmt.Errorf("unknown tls_mode %q", c.TLSMode)
	}
	if c.Timeout < 0 || c.IdleTimeout < 0 || c.TrustTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if _, err := listing.NewParser(listing.WithEncodingName(c.LegacyEncoding)); err != nil {
		return err
	}
	return nil
}

// LoadOverride reads a YAML file without applying defaults.
func LoadOverride(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return &override, nil
}

// Load reads a YAML file, applies it over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	override, err := LoadOverride(path)
	if err != nil {
		return nil, err
	}
	cfg := NewConfig(override)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parser builds the listing parser the settings describe.
func (c *Config) Parser(logger zerolog.Logger) (*listing.Parser, error) {
	return listing.NewParser(
		listing.WithLogger(logger),
		listing.WithEncodingName(c.LegacyEncoding),
		listing.WithExclusions(c.Exclusions...),
	)
}

// Engine returns the engine settings for one server. A zero port means the
// configured one.
func (c *Config) Engine(host string, port int, user, password string, logger zerolog.Logger) (engine.Config, error) {
	parser, err := c.Parser(logger)
	if err != nil {
		return engine.Config{}, err
	}
	if port == 0 {
		port = c.Port
	}
	return engine.Config{
		Host:        host,
		Port:        port,
		User:        user,
		Password:    password,
		TLS:         engine.TLSMode(c.TLSMode),
		TLSConfig:   &tls.Config{MinVersion: tls.VersionTLS12},
		Timeout:     c.Timeout,
		IdleTimeout: c.IdleTimeout,
		DisableEPSV: c.DisableEPSV,
		Parser:      parser,
		Logger:      logger,
	}, nil
}
