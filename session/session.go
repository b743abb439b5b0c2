package session

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gonzalop/ftps/engine"
	"github.com/gonzalop/ftps/listing"
	"github.com/gonzalop/ftps/trust"
)

// Session owns one engine and a FIFO worker. Every request method only
// queues work and returns immediately; results arrive as events. Requests
// never overlap: the worker runs them one at a time in submission order.
type Session struct {
	id   uuid.UUID
	host string
	user string

	eng      *engine.Engine
	gate     *trust.Gate
	registry *Registry
	coord    *Coordinator
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	work    *queue
	busy    atomic.Bool
	closing atomic.Bool
	done    chan struct{}

	mu        sync.Mutex
	observers []Observer
	path      string
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Host returns the server host name.
func (s *Session) Host() string {
	return s.host
}

// User returns the login name.
func (s *Session) User() string {
	return s.user
}

// Gate returns the trust gate created for this session, or nil when the
// engine was configured with its own verifier.
func (s *Session) Gate() *trust.Gate {
	return s.gate
}

// CurrentPath returns the directory of the last successful listing.
func (s *Session) CurrentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Busy reports whether the worker is running a request.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Done is closed once the session has fully disconnected.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// AddObserver registers o. Adding an observer twice has no effect.
func (s *Session) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o == nil || slices.Contains(s.observers, o) {
		return
	}
	s.observers = append(s.observers, o)
}

// RemoveObserver unregisters o. Removing an unknown observer has no effect.
func (s *Session) RemoveObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.Index(s.observers, o); i >= 0 {
		s.observers = slices.Delete(s.observers, i, i+1)
	}
}

func (s *Session) snapshot() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.observers)
}

func (s *Session) deliver(ev Event) {
	for _, o := range s.snapshot() {
		o.Notify(s, ev)
	}
}

// notify posts ev to the coordinator. Events raised after Disconnect are
// dropped.
func (s *Session) notify(ev Event) {
	if s.closing.Load() {
		return
	}
	s.coord.Async(func() {
		s.deliver(ev)
	})
}

// submit queues a request for the worker.
func (s *Session) submit(name string, fn func(ctx context.Context)) {
	if s.closing.Load() {
		return
	}
	s.work.push(func() {
		if s.closing.Load() {
			return
		}
		s.busy.Store(true)
		defer s.busy.Store(false)

		s.logger.Debug().Str("task", name).Msg("task started")
		fn(s.ctx)
		s.logger.Debug().Str("task", name).Msg("task finished")
	})
}

func (s *Session) fail(op string, err error) {
	s.logger.Warn().Err(err).Str("op", op).Msg("operation failed")
	s.notify(Failed{Op: op, Code: engine.CodeOf(err), Message: err.Error()})
}

func (s *Session) setPath(p string) {
	s.mu.Lock()
	s.path = p
	s.mu.Unlock()
}

// open runs on the worker as the first request.
func (s *Session) open(ctx context.Context, dir string) {
	if err := s.eng.Connect(ctx); err != nil {
		s.connectFailed(err)
		return
	}
	entries, err := s.eng.ChangeDirectory(ctx, engine.NormalizeDir(dir))
	if err != nil {
		s.connectFailed(err)
		return
	}
	s.setPath(s.eng.CurrentPath())
	s.logger.Info().Str("path", s.eng.CurrentPath()).Msg("session connected")
	s.notify(Connected{Path: s.eng.CurrentPath(), Entries: entries})
}

func (s *Session) connectFailed(err error) {
	s.logger.Warn().Err(err).Msg("connect failed")
	s.notify(ConnectFailed{Code: engine.CodeOf(err), Reason: err.Error()})
	s.Disconnect()
}

// list re-reads dir and reports it as DirectoryChanged or a Failed op.
func (s *Session) list(ctx context.Context, op, dir string) bool {
	entries, err := s.eng.ChangeDirectory(ctx, dir)
	if err != nil {
		s.fail(op, err)
		return false
	}
	s.setPath(dir)
	s.notify(DirectoryChanged{Path: dir, Entries: entries})
	return true
}

// ChangeDirectory lists dir and makes it current. Relative paths are taken
// from the current directory.
func (s *Session) ChangeDirectory(dir string) {
	s.submit("cd", func(ctx context.Context) {
		target := dir
		if len(target) == 0 || target[0] != '/' {
			target = engine.Join(s.eng.CurrentPath(), target)
		}
		s.list(ctx, "cd", engine.NormalizeDir(target))
	})
}

// Up changes to the parent directory.
func (s *Session) Up() {
	s.submit("up", func(ctx context.Context) {
		s.list(ctx, "up", engine.Parent(s.eng.CurrentPath()))
	})
}

// Refresh lists the current directory again.
func (s *Session) Refresh() {
	s.submit("refresh", s.refresh)
}

func (s *Session) refresh(ctx context.Context) {
	s.list(ctx, "refresh", s.eng.CurrentPath())
}

// mutate runs fn and re-lists the current directory whatever the outcome.
// DirectoryChanged is reported only when both succeeded; otherwise one
// Failed carries the mutation's error, or the listing's if only that failed.
func (s *Session) mutate(op string, fn func(ctx context.Context) error) {
	s.submit(op, func(ctx context.Context) {
		err := fn(ctx)
		dir := s.eng.CurrentPath()
		entries, listErr := s.eng.ChangeDirectory(ctx, dir)
		switch {
		case err != nil:
			s.fail(op, err)
		case listErr != nil:
			s.fail(op, listErr)
		default:
			s.setPath(dir)
			s.notify(DirectoryChanged{Path: dir, Entries: entries})
		}
	})
}

// MakeDirectory creates name in the current directory.
func (s *Session) MakeDirectory(name string) {
	s.mutate("mkdir", func(ctx context.Context) error {
		return s.eng.MakeDirectory(ctx, name)
	})
}

// RemoveDirectory removes the empty directory name.
func (s *Session) RemoveDirectory(name string) {
	s.mutate("rmdir", func(ctx context.Context) error {
		return s.eng.RemoveDirectory(ctx, name)
	})
}

// Rename renames from to to.
func (s *Session) Rename(from, to string) {
	s.mutate("rename", func(ctx context.Context) error {
		return s.eng.RenameFile(ctx, from, to)
	})
}

// Delete deletes the file name.
func (s *Session) Delete(name string) {
	s.mutate("delete", func(ctx context.Context) error {
		return s.eng.DeleteFile(ctx, name)
	})
}

// ChangePermissions sets the permissions of name.
func (s *Session) ChangePermissions(name string, mode listing.Mode) {
	s.mutate("chmod", func(ctx context.Context) error {
		return s.eng.ChangePermissions(ctx, name, mode)
	})
}

// Upload stores the local files in the current directory, in order.
func (s *Session) Upload(files []string) {
	files = slices.Clone(files)
	s.submit("upload", func(ctx context.Context) {
		s.batch(ctx, Upload, files, func(file string, progress engine.ProgressFunc) error {
			return s.eng.Upload(ctx, file, progress)
		})
	})
}

// Download retrieves the remote files into localDir, in order. A missing
// localDir fails the batch before anything is sent to the server.
func (s *Session) Download(files []string, localDir string) {
	files = slices.Clone(files)
	s.submit("download", func(ctx context.Context) {
		s.batch(ctx, Download, files, func(file string, progress engine.ProgressFunc) error {
			return s.eng.Download(ctx, file, localDir, progress)
		})
	})
}

// batch transfers files in order and stops at the first failure. It always
// ends with one BatchFinished and, unless an observer aborted, a refresh.
func (s *Session) batch(ctx context.Context, dir Direction, files []string, transfer func(string, engine.ProgressFunc) error) {
	aborted := false
	for i, file := range files {
		err := transfer(file, s.progress(ctx, dir, file))
		if err != nil {
			aborted = engine.CodeOf(err) == engine.CodeAbortedByCallback
			s.fail(dir.String(), err)
			break
		}
		s.notify(FileTransferred{Direction: dir, File: file, Index: i + 1, Total: len(files)})
	}

	s.notify(BatchFinished{Direction: dir, Files: files})
	if !aborted {
		s.refresh(ctx)
	}
}

// progress hands each tick to the observers and waits for them, so an
// Abort takes effect before more data moves.
func (s *Session) progress(ctx context.Context, dir Direction, file string) engine.ProgressFunc {
	return func(p engine.Progress) engine.Verdict {
		ev := &TransferProgress{Direction: dir, File: file}
		if dir == Download {
			ev.TotalBytes, ev.Bytes = p.DownloadTotal, p.DownloadNow
		} else {
			ev.TotalBytes, ev.Bytes = p.UploadTotal, p.UploadNow
		}

		err := s.coord.Sync(ctx, func() {
			if !s.closing.Load() {
				s.deliver(ev)
			}
		})
		if err != nil || ev.Aborted() {
			return engine.Abort
		}
		return engine.Continue
	}
}

// Disconnect tears the session down without waiting: a transfer or a
// pending trust decision is abandoned, queued requests are dropped, the
// session leaves its registry and observers get a final Disconnected.
func (s *Session) Disconnect() {
	if !s.closing.CompareAndSwap(false, true) {
		return
	}
	s.logger.Info().Msg("disconnecting")

	s.cancel()
	_ = s.eng.Close()
	s.registry.remove(s)

	s.work.push(func() {
		s.coord.Async(func() {
			s.deliver(Disconnected{})
			s.mu.Lock()
			s.observers = nil
			s.mu.Unlock()
			close(s.done)
		})
	})
	s.work.close()
}
