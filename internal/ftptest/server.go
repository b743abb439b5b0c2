// Package ftptest runs a scripted in-memory FTP/FTPS server for tests.
//
// The server speaks enough of RFC 959 and RFC 4217 for the client packages:
// login, AUTH TLS, passive data connections, LIST, RETR, STOR and the usual
// file management commands. Every command is recorded, and any command can
// be made to fail with a canned reply.
package ftptest

import (
	"bufio"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type node struct {
	dir     bool
	data    []byte
	mode    os.FileMode
	modTime time.Time
}

type failure struct {
	cmd  string
	arg  string
	code int
	msg  string
	once bool
}

// Server is an in-memory FTP server bound to a loopback port.
type Server struct {
	ln        net.Listener
	tlsConfig *tls.Config
	dataTLS   *tls.Config
	cert      *x509.Certificate
	implicit  bool
	user      string
	pass      string
	greeting  time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	fs       map[string]*node
	listings map[string][]byte
	commands []string
	failures []failure
	conns    map[net.Conn]struct{}
	closed   bool

	wg sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithTLS enables explicit TLS (AUTH TLS) using a generated certificate.
func WithTLS() Option {
	return func(s *Server) {
		s.tlsConfig = &tls.Config{}
	}
}

// WithImplicitTLS makes the server speak TLS from the first byte.
func WithImplicitTLS() Option {
	return func(s *Server) {
		s.tlsConfig = &tls.Config{}
		s.implicit = true
	}
}

// WithDataCertificate serves protected data connections with a second
// certificate that differs from the control connection's.
func WithDataCertificate() Option {
	return func(s *Server) {
		s.dataTLS = &tls.Config{}
	}
}

// WithCredentials restricts login to one user. By default any login works.
func WithCredentials(user, pass string) Option {
	return func(s *Server) {
		s.user = user
		s.pass = pass
	}
}

// WithGreetingDelay holds the 220 greeting back.
func WithGreetingDelay(d time.Duration) Option {
	return func(s *Server) {
		s.greeting = d
	}
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		logger: zerolog.Nop(),
		fs: map[string]*node{
			"/": {dir: true, mode: os.ModeDir | 0o755, modTime: fixedTime},
		},
		listings: make(map[string][]byte),
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.tlsConfig != nil {
		cert, tlsCert, err := generateCertificate()
		if err != nil {
			t.Fatalf("ftptest: generate certificate: %v", err)
		}
		s.cert = cert
		s.tlsConfig.Certificates = []tls.Certificate{tlsCert}
	}
	if s.tlsConfig != nil && s.dataTLS != nil {
		_, tlsCert, err := generateCertificate()
		if err != nil {
			t.Fatalf("ftptest: generate data certificate: %v", err)
		}
		s.dataTLS.Certificates = []tls.Certificate{tlsCert}
	} else {
		s.dataTLS = s.tlsConfig
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ftptest: listen: %v", err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

var fixedTime = time.Date(2024, time.January, 5, 9, 30, 0, 0, time.UTC)

func generateCertificate() (*x509.Certificate, tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, tls.Certificate{}, err
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "localhost", Organization: []string{"ftptest"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, tls.Certificate{}, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, tls.Certificate{}, err
	}
	return cert, tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: cert}, nil
}

// Addr returns the control address as host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host returns the listening host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Certificate returns the server certificate, nil without TLS.
func (s *Server) Certificate() *x509.Certificate {
	return s.cert
}

// CertPool returns a pool that trusts the server certificate.
func (s *Server) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	if s.cert != nil {
		pool.AddCert(s.cert)
	}
	return pool
}

// AddDir creates a directory and any missing parents.
func (s *Server) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mkdirAll(clean(p))
}

func (s *Server) mkdirAll(p string) {
	if p == "/" {
		return
	}
	s.mkdirAll(path.Dir(p))
	if _, ok := s.fs[p]; !ok {
		s.fs[p] = &node{dir: true, mode: os.ModeDir | 0o755, modTime: fixedTime}
	}
}

// AddFile creates or replaces a file, creating parent directories.
func (s *Server) AddFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = clean(p)
	s.mkdirAll(path.Dir(p))
	s.fs[p] = &node{data: append([]byte(nil), data...), mode: 0o644, modTime: fixedTime}
}

// File returns the content of a file.
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.fs[clean(p)]
	if !ok || n.dir {
		return nil, false
	}
	return append([]byte(nil), n.data...), true
}

// Exists reports whether a file or directory exists.
func (s *Server) Exists(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fs[clean(p)]
	return ok
}

// Mode returns the permission bits of a path.
func (s *Server) Mode(p string) (os.FileMode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.fs[clean(p)]
	if !ok {
		return 0, false
	}
	return n.mode.Perm(), true
}

// SetListing makes LIST of dir return raw verbatim.
func (s *Server) SetListing(dir string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[clean(dir)] = raw
}

// Fail makes every matching command reply with code and msg instead of
// running. An empty arg matches any argument; otherwise the argument or
// its base name must equal arg.
func (s *Server) Fail(cmd, arg string, code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{cmd: strings.ToUpper(cmd), arg: arg, code: code, msg: msg})
}

// FailOnce is Fail for the next matching command only.
func (s *Server) FailOnce(cmd, arg string, code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{cmd: strings.ToUpper(cmd), arg: arg, code: code, msg: msg, once: true})
}

// Commands returns every command received so far, PASS arguments masked.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Verbs returns the command names received so far.
func (s *Server) Verbs() []string {
	var verbs []string
	for _, c := range s.Commands() {
		verb, _, _ := strings.Cut(c, " ")
		verbs = append(verbs, verb)
	}
	return verbs
}

// Count returns how many times verb was received.
func (s *Server) Count(verb string) int {
	n := 0
	for _, v := range s.Verbs() {
		if v == verb {
			n++
		}
	}
	return n
}

// ResetCommands forgets the recorded commands.
func (s *Server) ResetCommands() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// Close stops the listener and drops every connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
			}()
			newSession(s, conn).serve()
		}()
	}
}

func (s *Server) record(cmd, arg string) {
	line := cmd
	if arg != "" {
		if cmd == "PASS" {
			arg = "***"
		}
		line += " " + arg
	}
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

func (s *Server) injected(cmd, arg string) (failure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.failures {
		if f.cmd != cmd {
			continue
		}
		if f.arg != "" && f.arg != arg && f.arg != path.Base(arg) {
			continue
		}
		if f.once {
			s.failures = append(s.failures[:i], s.failures[i+1:]...)
		}
		return f, true
	}
	return failure{}, false
}

// listing renders a directory the way a UNIX server would.
func (s *Server) listing(dir string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.fs[dir]
	if !ok || !n.dir {
		return nil, false
	}
	if raw, ok := s.listings[dir]; ok {
		return raw, true
	}

	var names []string
	for p := range s.fs {
		if p != "/" && path.Dir(p) == dir {
			names = append(names, p)
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for _, p := range names {
		c := s.fs[p]
		size := len(c.data)
		links := 1
		if c.dir {
			size = 4096
			links = 2
		}
		fmt.Fprintf(&b, "%s %3d owner    group %10d %s %s\r\n",
			c.mode.String(), links, size, c.modTime.Format("Jan _2 15:04"), path.Base(p))
	}
	return []byte(b.String()), true
}

// hasChildren reports whether dir has entries. Callers hold s.mu.
func (s *Server) hasChildren(dir string) bool {
	for p := range s.fs {
		if p != "/" && path.Dir(p) == dir {
			return true
		}
	}
	return false
}

func clean(p string) string {
	return path.Clean("/" + p)
}

type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer

	cwd        string
	user       string
	loggedIn   bool
	renameFrom string
	prot       string
	pasv       net.Listener
}

func newSession(s *Server, conn net.Conn) *session {
	if s.implicit {
		conn = tls.Server(conn, s.tlsConfig)
	}
	return &session{
		server: s,
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		cwd:    "/",
		prot:   "C",
	}
}

var commandHandlers = map[string]func(*session, string){
	"USER": (*session).handleUSER,
	"PASS": (*session).handlePASS,
	"AUTH": (*session).handleAUTH,
	"PBSZ": (*session).handlePBSZ,
	"PROT": (*session).handlePROT,
	"SYST": (*session).handleSYST,
	"FEAT": (*session).handleFEAT,
	"OPTS": (*session).handleOK,
	"NOOP": (*session).handleOK,
	"TYPE": (*session).handleOK,
	"PWD":  (*session).handlePWD,
	"CWD":  (*session).handleCWD,
	"CDUP": (*session).handleCDUP,
	"EPSV": (*session).handleEPSV,
	"PASV": (*session).handlePASV,
	"LIST": (*session).handleLIST,
	"RETR": (*session).handleRETR,
	"STOR": (*session).handleSTOR,
	"SIZE": (*session).handleSIZE,
	"MKD":  (*session).handleMKD,
	"RMD":  (*session).handleRMD,
	"DELE": (*session).handleDELE,
	"RNFR": (*session).handleRNFR,
	"RNTO": (*session).handleRNTO,
	"SITE": (*session).handleSITE,
}

func (s *session) serve() {
	defer s.close()

	if s.server.greeting > 0 {
		time.Sleep(s.server.greeting)
	}
	s.reply(220, "ftptest ready.")

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		cmd = strings.ToUpper(cmd)
		s.server.record(cmd, arg)
		s.server.logger.Debug().Str("cmd", cmd).Str("arg", arg).Msg("command received")

		if f, ok := s.server.injected(cmd, arg); ok {
			s.reply(f.code, f.msg)
			continue
		}

		if cmd == "QUIT" {
			s.reply(221, "Goodbye.")
			return
		}

		handler, ok := commandHandlers[cmd]
		if !ok {
			s.reply(502, "Command not implemented.")
			continue
		}
		handler(s, arg)
	}
}

func (s *session) close() {
	if s.pasv != nil {
		s.pasv.Close()
	}
	s.conn.Close()
}

func (s *session) reply(code int, msg string) {
	fmt.Fprintf(s.writer, "%d %s\r\n", code, msg)
	s.writer.Flush()
}

func (s *session) resolve(arg string) string {
	if strings.HasPrefix(arg, "/") {
		return clean(arg)
	}
	return clean(path.Join(s.cwd, arg))
}

func (s *session) requireLogin() bool {
	if !s.loggedIn {
		s.reply(530, "Please login with USER and PASS.")
		return false
	}
	return true
}

func (s *session) handleUSER(arg string) {
	s.user = arg
	s.loggedIn = false
	s.reply(331, "Password required.")
}

func (s *session) handlePASS(arg string) {
	if s.server.user != "" && (s.user != s.server.user || arg != s.server.pass) {
		s.reply(530, "Login incorrect.")
		return
	}
	s.loggedIn = true
	s.reply(230, "Login successful.")
}

func (s *session) handleAUTH(arg string) {
	if s.server.tlsConfig == nil || s.server.implicit {
		s.reply(502, "TLS not available.")
		return
	}
	if strings.ToUpper(arg) != "TLS" {
		s.reply(504, "Only AUTH TLS is supported.")
		return
	}
	s.reply(234, "AUTH TLS successful.")

	tlsConn := tls.Server(s.conn, s.server.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		s.server.logger.Debug().Err(err).Msg("control handshake failed")
		s.conn.Close()
		return
	}
	s.conn = tlsConn
	s.reader = bufio.NewReader(tlsConn)
	s.writer = bufio.NewWriter(tlsConn)
}

func (s *session) handlePBSZ(string) {
	s.reply(200, "PBSZ=0")
}

func (s *session) handlePROT(arg string) {
	switch strings.ToUpper(arg) {
	case "P", "C":
		s.prot = strings.ToUpper(arg)
		s.reply(200, "PROT "+s.prot+" OK.")
	default:
		s.reply(504, "PROT not implemented.")
	}
}

func (s *session) handleSYST(string) {
	s.reply(215, "UNIX Type: L8")
}

func (s *session) handleFEAT(string) {
	fmt.Fprintf(s.writer, "211-Features:\r\n EPSV\r\n PASV\r\n SIZE\r\n UTF8\r\n")
	if s.server.tlsConfig != nil {
		fmt.Fprintf(s.writer, " AUTH TLS\r\n PBSZ\r\n PROT\r\n")
	}
	s.reply(211, "End")
}

func (s *session) handleOK(string) {
	s.reply(200, "OK.")
}

func (s *session) handlePWD(string) {
	s.reply(257, fmt.Sprintf("%q is the current directory.", s.cwd))
}

func (s *session) handleCWD(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	s.server.mu.Lock()
	n, ok := s.server.fs[p]
	s.server.mu.Unlock()
	if !ok || !n.dir {
		s.reply(550, "Failed to change directory.")
		return
	}
	s.cwd = p
	s.reply(250, "Directory successfully changed.")
}

func (s *session) handleCDUP(string) {
	s.handleCWD("..")
}

func (s *session) handleEPSV(string) {
	if !s.requireLogin() {
		return
	}
	ln, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	_, port, _ := net.SplitHostPort(ln.Addr().String())
	s.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%s|)", port))
}

func (s *session) handlePASV(string) {
	if !s.requireLogin() {
		return
	}
	ln, err := s.listenPassive()
	if err != nil {
		s.reply(425, "Can't open passive connection.")
		return
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s.reply(227, fmt.Sprintf("Entering Passive Mode (127,0,0,1,%d,%d).", port/256, port%256))
}

func (s *session) listenPassive() (net.Listener, error) {
	if s.pasv != nil {
		s.pasv.Close()
		s.pasv = nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s.pasv = ln
	return ln, nil
}

// openData replies 150 and then accepts the passive connection, so a TLS
// client can start its handshake once it has seen the preliminary reply.
func (s *session) openData(msg string) (net.Conn, bool) {
	if s.pasv == nil {
		s.reply(425, "Use PASV or EPSV first.")
		return nil, false
	}
	ln := s.pasv
	s.pasv = nil
	defer ln.Close()

	s.reply(150, msg)

	if t, ok := ln.(*net.TCPListener); ok {
		_ = t.SetDeadline(time.Now().Add(10 * time.Second))
	}
	conn, err := ln.Accept()
	if err != nil {
		s.reply(425, "Can't open data connection.")
		return nil, false
	}

	if s.prot == "P" && s.server.tlsConfig != nil {
		tlsConn := tls.Server(conn, s.server.dataTLS)
		_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
		if err := tlsConn.Handshake(); err != nil {
			conn.Close()
			s.reply(425, "TLS handshake on data connection failed.")
			return nil, false
		}
		_ = conn.SetDeadline(time.Time{})
		conn = tlsConn
	}
	return conn, true
}

func (s *session) handleLIST(arg string) {
	if !s.requireLogin() {
		return
	}
	target := s.cwd
	if arg != "" && !strings.HasPrefix(arg, "-") {
		target = s.resolve(arg)
	}

	raw, ok := s.server.listing(target)
	if !ok {
		s.reply(550, "No such directory.")
		return
	}

	conn, ok := s.openData("Here comes the directory listing.")
	if !ok {
		return
	}
	_, err := conn.Write(raw)
	conn.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	s.reply(226, "Directory send OK.")
}

func (s *session) handleRETR(arg string) {
	if !s.requireLogin() {
		return
	}
	data, ok := s.server.File(s.resolve(arg))
	if !ok {
		s.reply(550, "Failed to open file.")
		return
	}

	conn, ok := s.openData("Opening BINARY mode data connection.")
	if !ok {
		return
	}
	_, err := conn.Write(data)
	conn.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}
	s.reply(226, "Transfer complete.")
}

func (s *session) handleSTOR(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	s.server.mu.Lock()
	parent, ok := s.server.fs[path.Dir(p)]
	s.server.mu.Unlock()
	if !ok || !parent.dir {
		s.reply(553, "Could not create file.")
		return
	}

	conn, ok := s.openData("Ok to send data.")
	if !ok {
		return
	}
	data, err := io.ReadAll(conn)
	conn.Close()
	if err != nil {
		s.reply(426, "Connection closed; transfer aborted.")
		return
	}

	s.server.mu.Lock()
	s.server.fs[p] = &node{data: data, mode: 0o644, modTime: fixedTime}
	s.server.mu.Unlock()
	s.reply(226, "Transfer complete.")
}

func (s *session) handleSIZE(arg string) {
	if !s.requireLogin() {
		return
	}
	data, ok := s.server.File(s.resolve(arg))
	if !ok {
		s.reply(550, "Could not get file size.")
		return
	}
	s.reply(213, fmt.Sprintf("%d", len(data)))
}

func (s *session) handleMKD(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	s.server.mu.Lock()
	parent, parentOK := s.server.fs[path.Dir(p)]
	_, exists := s.server.fs[p]
	if parentOK && parent.dir && !exists {
		s.server.fs[p] = &node{dir: true, mode: os.ModeDir | 0o755, modTime: fixedTime}
	}
	s.server.mu.Unlock()

	if !parentOK || !parent.dir || exists {
		s.reply(550, "Create directory operation failed.")
		return
	}
	s.reply(257, fmt.Sprintf("%q created.", p))
}

func (s *session) handleRMD(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	s.server.mu.Lock()
	n, ok := s.server.fs[p]
	removable := ok && n.dir && p != "/" && !s.server.hasChildren(p)
	if removable {
		delete(s.server.fs, p)
	}
	s.server.mu.Unlock()

	if !removable {
		s.reply(550, "Remove directory operation failed.")
		return
	}
	s.reply(250, "Remove directory operation successful.")
}

func (s *session) handleDELE(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	s.server.mu.Lock()
	n, ok := s.server.fs[p]
	if ok && !n.dir {
		delete(s.server.fs, p)
	}
	s.server.mu.Unlock()

	if !ok || n.dir {
		s.reply(550, "Delete operation failed.")
		return
	}
	s.reply(250, "Delete operation successful.")
}

func (s *session) handleRNFR(arg string) {
	if !s.requireLogin() {
		return
	}
	p := s.resolve(arg)
	if !s.server.Exists(p) {
		s.renameFrom = ""
		s.reply(550, "RNFR command failed.")
		return
	}
	s.renameFrom = p
	s.reply(350, "Ready for RNTO.")
}

func (s *session) handleRNTO(arg string) {
	if !s.requireLogin() {
		return
	}
	if s.renameFrom == "" {
		s.reply(503, "RNFR required first.")
		return
	}
	from, to := s.renameFrom, s.resolve(arg)
	s.renameFrom = ""

	s.server.mu.Lock()
	defer s.server.mu.Unlock()
	if _, exists := s.server.fs[to]; exists {
		s.reply(550, "Rename failed.")
		return
	}
	moved := make(map[string]*node)
	for p, n := range s.server.fs {
		if p == from || strings.HasPrefix(p, from+"/") {
			moved[to+strings.TrimPrefix(p, from)] = n
			delete(s.server.fs, p)
		}
	}
	for p, n := range moved {
		s.server.fs[p] = n
	}
	s.reply(250, "Rename successful.")
}

func (s *session) handleSITE(arg string) {
	if !s.requireLogin() {
		return
	}
	fields := strings.SplitN(arg, " ", 3)
	if len(fields) != 3 || strings.ToUpper(fields[0]) != "CHMOD" {
		s.reply(500, "Unknown SITE command.")
		return
	}

	var mode uint32
	if _, err := fmt.Sscanf(strings.TrimSpace(fields[1]), "%o", &mode); err != nil || mode > 0o777 {
		s.reply(501, "Invalid mode.")
		return
	}

	p := s.resolve(fields[2])
	s.server.mu.Lock()
	n, ok := s.server.fs[p]
	if ok {
		n.mode = n.mode&os.ModeType | os.FileMode(mode)
	}
	s.server.mu.Unlock()

	if !ok {
		s.reply(550, "SITE CHMOD command failed.")
		return
	}
	s.reply(200, "SITE CHMOD command ok.")
}
