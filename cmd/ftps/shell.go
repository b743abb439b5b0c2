package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/gonzalop/ftps/listing"
	"github.com/gonzalop/ftps/session"
	"github.com/gonzalop/ftps/trust"
)

const helpText = `commands:
  ls                    show the current listing
  cd <dir>              change directory
  up                    go to the parent directory
  refresh               list the current directory again
  get <file>...         download into the local folder
  put <file>...         upload local files
  mkdir <name>          create a directory
  rmdir <name>          remove a directory
  mv <from> <to>        rename
  chmod <mode> <name>   change permissions, e.g. chmod 644 notes.txt
  rm <name>             delete a file
  abort                 stop the running transfer
  servers               list known servers
  quit                  disconnect and exit
`

// shell reads commands from lines and prints session events to w. Events
// arrive on the coordinator goroutine; commands and trust prompts are
// handled on the goroutine running run.
type shell struct {
	lines   <-chan string
	prompts chan *trust.Request
	quit    chan struct{}

	sess        *session.Session
	downloadDir string
	onConnected func(path string)
	servers     func() []string

	abort atomic.Bool

	mu       sync.Mutex
	w        io.Writer
	path     string
	entries  []listing.Entry
	reported map[string]int
}

func newShell(w io.Writer, lines <-chan string) *shell {
	return &shell{
		lines:    lines,
		prompts:  make(chan *trust.Request),
		quit:     make(chan struct{}),
		w:        w,
		reported: map[string]int{},
	}
}

func (sh *shell) printf(format string, args ...any) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	fmt.Fprintf(sh.w, format, args...)
}

// ask hands a trust request to the command loop. It runs on the
// coordinator.
func (sh *shell) ask(r *trust.Request) {
	select {
	case sh.prompts <- r:
	case <-sh.quit:
		_ = r.Decide(trust.Reject)
	}
}

// Notify prints session events.
func (sh *shell) Notify(s *session.Session, ev session.Event) {
	switch ev := ev.(type) {
	case session.Connected:
		sh.printf("connected to %s as %s\n", s.Host(), userName(s.User()))
		sh.showListing(ev.Path, ev.Entries)
		if sh.onConnected != nil {
			sh.onConnected(ev.Path)
		}
	case session.ConnectFailed:
		sh.printf("connect failed (%s): %s\n", ev.Code, ev.Reason)
	case session.DirectoryChanged:
		sh.showListing(ev.Path, ev.Entries)
	case *session.TransferProgress:
		if sh.abort.Load() {
			ev.Abort()
		}
		sh.showProgress(ev)
	case session.FileTransferred:
		sh.printf("%s %d/%d done: %s\n", ev.Direction, ev.Index, ev.Total, ev.File)
	case session.BatchFinished:
		sh.abort.Store(false)
		sh.mu.Lock()
		clear(sh.reported)
		sh.mu.Unlock()
	case session.Failed:
		sh.printf("%s failed (%s): %s\n", ev.Op, ev.Code, ev.Message)
	case session.Disconnected:
		sh.printf("disconnected\n")
	}
}

// showListing prints the whole listing when the directory changed and only
// the differences when the same directory was listed again.
func (sh *shell) showListing(path string, entries []listing.Entry) {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if path == sh.path && sh.entries != nil {
		changes := listing.Diff(sh.entries, entries)
		for _, e := range changes.Removed {
			fmt.Fprintf(sh.w, "- %s\n", e.Name)
		}
		for _, e := range changes.Added {
			fmt.Fprintf(sh.w, "+ %s\n", formatEntry(e))
		}
	} else {
		fmt.Fprintf(sh.w, "%s\n", path)
		writeEntries(sh.w, entries)
	}
	sh.path = path
	sh.entries = entries
}

func (sh *shell) showProgress(p *session.TransferProgress) {
	if p.TotalBytes <= 0 {
		return
	}
	pct := int(p.Bytes * 100 / p.TotalBytes)
	step := pct / 25

	sh.mu.Lock()
	defer sh.mu.Unlock()
	key := p.Direction.String() + ":" + p.File
	if last, ok := sh.reported[key]; ok && last >= step {
		return
	}
	sh.reported[key] = step
	fmt.Fprintf(sh.w, "%s %s: %s / %s (%d%%)\n", p.Direction, p.File,
		humanize.IBytes(uint64(p.Bytes)), humanize.IBytes(uint64(p.TotalBytes)), pct)
}

// run processes commands until quit, the end of input, the session going
// away or ctx ending.
func (sh *shell) run(ctx context.Context) {
	defer close(sh.quit)

	var pending *trust.Request
	for {
		select {
		case <-ctx.Done():
			return
		case <-sh.sess.Done():
			return
		case r := <-sh.prompts:
			pending = r
			sh.printf("%s", describeRequest(r))
			sh.printf("trust this certificate? [y/N] ")
		case line, ok := <-sh.lines:
			if !ok {
				if pending != nil {
					_ = pending.Decide(trust.Reject)
				}
				return
			}
			if pending != nil {
				d := trust.Reject
				if answer := strings.ToLower(strings.TrimSpace(line)); answer == "y" || answer == "yes" {
					d = trust.Proceed
				}
				_ = pending.Decide(d)
				pending = nil
				continue
			}
			if !sh.execute(line) {
				return
			}
		}
	}
}

// execute runs one command line and reports whether to keep going.
func (sh *shell) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := fields[0], fields[1:]

	need := func(n int) bool {
		if len(args) < n {
			sh.printf("%s: missing argument\n", cmd)
			return false
		}
		return true
	}

	s := sh.sess
	switch cmd {
	case "ls":
		sh.mu.Lock()
		fmt.Fprintf(sh.w, "%s\n", sh.path)
		writeEntries(sh.w, sh.entries)
		sh.mu.Unlock()
	case "cd":
		if need(1) {
			s.ChangeDirectory(args[0])
		}
	case "up":
		s.Up()
	case "refresh":
		s.Refresh()
	case "get":
		if need(1) {
			s.Download(args, sh.downloadDir)
		}
	case "put":
		if need(1) {
			files := make([]string, len(args))
			for i, a := range args {
				files[i] = filepath.Clean(a)
			}
			s.Upload(files)
		}
	case "mkdir":
		if need(1) {
			s.MakeDirectory(args[0])
		}
	case "rmdir":
		if need(1) {
			s.RemoveDirectory(args[0])
		}
	case "mv":
		if need(2) {
			s.Rename(args[0], args[1])
		}
	case "chmod":
		if need(2) {
			mode, err := parseMode(args[0])
			if err != nil {
				sh.printf("chmod: %v\n", err)
				break
			}
			s.ChangePermissions(args[1], mode)
		}
	case "rm":
		if need(1) {
			s.Delete(args[0])
		}
	case "abort":
		if s.Busy() {
			sh.abort.Store(true)
		}
	case "servers":
		if sh.servers != nil {
			for _, line := range sh.servers() {
				sh.printf("%s\n", line)
			}
		}
	case "help", "?":
		sh.printf("%s", helpText)
	case "quit", "exit", "bye":
		s.Disconnect()
		return false
	default:
		sh.printf("unknown command %q, try help\n", cmd)
	}
	return true
}

// parseMode reads three octal digits such as "750".
func parseMode(s string) (listing.Mode, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("mode %q must be three digits", s)
	}
	v, err := strconv.ParseUint(s, 8, 16)
	if err != nil {
		return 0, fmt.Errorf("mode %q is not octal", s)
	}
	return listing.NewMode(uint8(v>>6&7), uint8(v>>3&7), uint8(v&7)), nil
}

func userName(u string) string {
	if u == "" {
		return "anonymous"
	}
	return u
}
