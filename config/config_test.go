package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftps/engine"
)

func ptr[T any](v T) *T {
	return &v
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "ftps.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestNewConfig_WithNilOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(nil)
	assert.Equal(t, NewDefaultConfig(), cfg)
	assert.Equal(t, 21, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.IdleTimeout)
	assert.Equal(t, "explicit", cfg.TLSMode)
	assert.Equal(t, "shift_jis", cfg.LegacyEncoding)
	assert.Equal(t, []string{".", ".."}, cfg.Exclusions)
	assert.Zero(t, cfg.TrustTimeout)
	assert.True(t, cfg.AutoAccept)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig_WithOverride(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(&ConfigOverride{
		Timeout:      ptr(5 * time.Second),
		TrustTimeout: ptr(time.Minute),
		Exclusions:   []string{".", "..", ".DS_Store"},
		AutoAccept:   ptr(false),
	})

	want := NewDefaultConfig()
	want.Timeout = 5 * time.Second
	want.TrustTimeout = time.Minute
	want.Exclusions = []string{".", "..", ".DS_Store"}
	want.AutoAccept = false
	assert.Equal(t, want, cfg)
}

func TestMerge_ImplicitTLSPort(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(&ConfigOverride{TLSMode: ptr("implicit")})
	assert.Equal(t, 990, cfg.Port)

	cfg = NewConfig(&ConfigOverride{TLSMode: ptr("implicit"), Port: ptr(2990)})
	assert.Equal(t, 2990, cfg.Port)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `
port: 2121
timeout: 10s
idle_timeout: 1m
tls_mode: none
legacy_encoding: euc-jp
trust_timeout: 2m30s
log_level: debug
download_dir: /tmp/downloads
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 2121, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "none", cfg.TLSMode)
	assert.Equal(t, "euc-jp", cfg.LegacyEncoding)
	assert.Equal(t, 150*time.Second, cfg.TrustTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/downloads", cfg.DownloadDir)
	assert.Equal(t, DefaultExclusionNames, cfg.Exclusions)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "port: [1, 2]"))
	assert.ErrorContains(t, err, "failed to unmarshal")

	tests := map[string]string{
		"port":     "port: 70000",
		"tls":      "tls_mode: sometimes",
		"timeout":  "timeout: -1s",
		"encoding": "legacy_encoding: klingon",
	}
	for name, body := range tests {
		body := body
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestConfig_Engine(t *testing.T) {
	t.Parallel()

	cfg := NewConfig(&ConfigOverride{Exclusions: []string{"hidden"}, DisableEPSV: ptr(true)})
	ec, err := cfg.Engine("ftp.example.com", 0, "alice", "secret", zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, "ftp.example.com", ec.Host)
	assert.Equal(t, 21, ec.Port)
	assert.Equal(t, engine.TLSExplicit, ec.TLS)
	assert.True(t, ec.DisableEPSV)
	require.NotNil(t, ec.Parser)
	require.NotNil(t, ec.TLSConfig)

	entries := ec.Parser.Parse([]byte(
		"-rw-r--r--   1 alice  staff      1 Jan  5 09:30 hidden\r\n" +
			"-rw-r--r--   1 alice  staff      1 Jan  5 09:30 ..\r\n"))
	require.Len(t, entries, 1)
	assert.Equal(t, "..", entries[0].Name)

	ec, err = cfg.Engine("ftp.example.com", 2121, "", "", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2121, ec.Port)
}
