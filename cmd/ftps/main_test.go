package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftps/internal/ftptest"
	"github.com/gonzalop/ftps/profile"
)

const waitFor = 5 * time.Second

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), want)
	}, waitFor, 10*time.Millisecond, "output never contained %q:\n%s", want, out)
}

func writeFile(t *testing.T, p, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

// client runs the command loop against srv; commands are written to the
// returned writer.
type client struct {
	out  *syncBuffer
	in   *io.PipeWriter
	done chan error
}

func startClient(t *testing.T, o *options) *client {
	t.Helper()
	pr, pw := io.Pipe()
	c := &client{out: &syncBuffer{}, in: pw, done: make(chan error, 1)}
	go func() {
		c.done <- run(context.Background(), o, pr, c.out)
	}()
	t.Cleanup(func() { pw.Close() })
	return c
}

func (c *client) send(t *testing.T, line string) {
	t.Helper()
	_, err := fmt.Fprintln(c.in, line)
	require.NoError(t, err)
}

func (c *client) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-c.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatalf("client did not exit:\n%s", c.out)
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv(passwordEnv, "from-env")

	o, err := parseFlags([]string{"--host", "ftp.example.com", "-p", "2121", "--user", "alice", "--implicit"})
	require.NoError(t, err)
	assert.Equal(t, "ftp.example.com", o.host)
	assert.Equal(t, 2121, o.port)
	assert.Equal(t, "alice", o.user)
	assert.Equal(t, "from-env", o.password)
	assert.True(t, o.implicit)

	o, err = parseFlags([]string{"--password", "secret", "work"})
	require.NoError(t, err)
	assert.Equal(t, "secret", o.password)
	assert.Equal(t, "work", o.server)

	_, err = parseFlags(nil)
	assert.Error(t, err)
	_, err = parseFlags([]string{"a", "b"})
	assert.Error(t, err)
	_, err = parseFlags([]string{"--port", "many"})
	assert.Error(t, err)
}

func TestKnownServers_Target(t *testing.T) {
	t.Parallel()

	list := &profile.List{}
	require.NoError(t, list.Add(profile.Server{Name: "work", Host: "ftp.work.example", Port: 2121, User: "alice", Path: "/in/"}))
	k := &knownServers{list: list}

	o := &options{server: "work", user: "bob"}
	require.NoError(t, k.target(o))
	assert.Equal(t, "ftp.work.example", o.host)
	assert.Equal(t, 2121, o.port)
	assert.Equal(t, "bob", o.user)
	assert.Equal(t, "/in/", o.path)

	assert.ErrorIs(t, k.target(&options{server: "home"}), profile.ErrNotFound)

	o = &options{host: "explicit.example", server: "work"}
	require.NoError(t, k.target(o))
	assert.Zero(t, o.port)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "ftps.yaml")
	writeFile(t, p, "timeout: 3s\nlog_level: warn\n")

	cfg, err := loadConfig(&options{configPath: p, implicit: true, logLevel: "debug"})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, "implicit", cfg.TLSMode)
	assert.Equal(t, 990, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)

	writeFile(t, p, "tls_mode: maybe\n")
	_, err = loadConfig(&options{configPath: p})
	assert.Error(t, err)
}

// The run tests stay serial because run sets up the global logger.

func TestRun_Commands(t *testing.T) {
	srv := ftptest.New(t)
	srv.AddFile("/pub/readme.txt", []byte("hello"))

	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	require.NoError(t, os.Mkdir(downloads, 0o700))
	cfgPath := filepath.Join(dir, "ftps.yaml")
	writeFile(t, cfgPath, "tls_mode: none\nlog_level: disabled\ndownload_dir: "+downloads+"\n")
	profiles := filepath.Join(dir, "servers.yaml")

	c := startClient(t, &options{
		host:       srv.Host(),
		port:       srv.Port(),
		user:       "alice",
		path:       "/pub",
		configPath: cfgPath,
		profiles:   profiles,
	})
	waitOutput(t, c.out, "connected to "+srv.Host()+" as alice")
	waitOutput(t, c.out, "readme.txt")

	c.send(t, "get readme.txt")
	waitOutput(t, c.out, "download 1/1 done: readme.txt")
	data, err := os.ReadFile(filepath.Join(downloads, "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	c.send(t, "mkdir incoming")
	waitOutput(t, c.out, "+ incoming/")
	assert.True(t, srv.Exists("/pub/incoming"))

	c.send(t, "chmod 640 readme.txt")
	require.Eventually(t, func() bool {
		m, _ := srv.Mode("/pub/readme.txt")
		return m == 0o640
	}, waitFor, 10*time.Millisecond)

	c.send(t, "chmod 9x9 readme.txt")
	waitOutput(t, c.out, `chmod: mode "9x9" is not octal`)

	c.send(t, "rm missing.txt")
	waitOutput(t, c.out, "delete failed (remote-file-not-found)")

	c.send(t, "frobnicate")
	waitOutput(t, c.out, `unknown command "frobnicate"`)

	c.send(t, "servers")
	waitOutput(t, c.out, "alice@"+srv.Host())

	c.send(t, "quit")
	c.wait(t)
	assert.Contains(t, c.out.String(), "disconnected")

	list, err := profile.Load(profiles)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, list.IndexOf(srv.Host(), "alice", "/pub/"), 0)
}

func TestRun_TrustPrompt(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{answer: "y", want: "connected to"},
		{answer: "", want: "connect failed (trust-rejected)"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("answer %q", tt.answer), func(t *testing.T) {
			srv := ftptest.New(t, ftptest.WithTLS())
			dir := t.TempDir()
			cfgPath := filepath.Join(dir, "ftps.yaml")
			writeFile(t, cfgPath, "tls_mode: explicit\nlog_level: disabled\n")

			c := startClient(t, &options{
				host:       srv.Host(),
				port:       srv.Port(),
				configPath: cfgPath,
				profiles:   filepath.Join(dir, "servers.yaml"),
			})
			waitOutput(t, c.out, "trust this certificate? [y/N]")
			assert.Contains(t, c.out.String(), "sha-256:")
			assert.Contains(t, c.out.String(), "subject:")

			c.send(t, tt.answer)
			waitOutput(t, c.out, tt.want)

			if tt.answer == "y" {
				c.send(t, "quit")
			}
			c.wait(t)
		})
	}
}
