package engine

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/gonzalop/ftps"
)

// Progress is the running state of a transfer. Totals are 0 when unknown.
type Progress struct {
	DownloadTotal int64
	DownloadNow   int64
	UploadTotal   int64
	UploadNow     int64
}

// Verdict is what a progress callback wants done with the transfer.
type Verdict int

const (
	Continue Verdict = iota
	Abort
)

// ProgressFunc is called on the engine's goroutine as data moves. Returning
// Abort stops the transfer with CodeAbortedByCallback.
type ProgressFunc func(Progress) Verdict

// Upload stores localFile in the current remote directory under its base
// name.
func (e *Engine) Upload(ctx context.Context, localFile string, progress ProgressFunc) error {
	const op = "upload"

	f, err := os.Open(localFile)
	if err != nil {
		return newError(op, CodeLocalFileError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return newError(op, CodeLocalFileError, err)
	}
	if info.IsDir() {
		return newError(op, CodeLocalFileError, fmt.Errorf("%s is a directory", localFile))
	}
	total := info.Size()

	c, err := e.conn(ctx, op)
	if err != nil {
		return err
	}

	r := &ftps.ProgressReader{
		Reader: f,
		Callback: func(n int64) bool {
			return e.report(ctx, progress, Progress{UploadTotal: total, UploadNow: n})
		},
	}
	name := filepath.Base(localFile)
	if err := c.Store(name, r); err != nil {
		e.settle(c, err)
		if isLocal(err) {
			return newError(op, CodeLocalFileError, err)
		}
		return classify(op, err, CodeUploadFailed)
	}

	e.logger.Info().Str("file", name).Int64("bytes", r.Total()).Msg("upload complete")
	return nil
}

// Download retrieves remoteFile into the localDir directory under its base
// name. The data goes to a temporary file that replaces the target only
// once the transfer succeeded.
func (e *Engine) Download(ctx context.Context, remoteFile, localDir string, progress ProgressFunc) error {
	const op = "download"

	name := path.Base(remoteFile)
	if remoteFile == "" || name == "/" || name == "." {
		return newError(op, CodeInvalidArgument, errEmptyName)
	}
	if err := checkDir(localDir); err != nil {
		return newError(op, CodeLocalFileError, err)
	}
	target := filepath.Join(localDir, name)

	unlock := e.lock(target)
	defer unlock()

	c, err := e.conn(ctx, op)
	if err != nil {
		return err
	}

	total, err := c.Size(remoteFile)
	if err != nil {
		if broken(err) {
			e.settle(c, err)
			return classify(op, err, CodeReadError)
		}
		e.logger.Debug().Err(err).Str("file", remoteFile).Msg("size unknown")
		total = 0
	}

	tmp, err := os.CreateTemp(localDir, "."+name+".part-*")
	if err != nil {
		return newError(op, CodeLocalFileError, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := &ftps.ProgressWriter{
		Writer: tmp,
		Callback: func(n int64) bool {
			return e.report(ctx, progress, Progress{DownloadTotal: total, DownloadNow: n})
		},
	}
	if err := c.Retrieve(remoteFile, w); err != nil {
		e.settle(c, err)
		if isLocal(err) {
			return newError(op, CodeWriteError, err)
		}
		return classify(op, err, CodeReadError)
	}

	if err := tmp.Close(); err != nil {
		return newError(op, CodeWriteError, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return newError(op, CodeLocalFileError, err)
	}
	committed = true

	e.logger.Info().Str("file", remoteFile).Str("target", target).
		Int64("bytes", w.Total()).Msg("download complete")
	return nil
}

// report forwards progress and turns context cancellation into an abort.
func (e *Engine) report(ctx context.Context, fn ProgressFunc, p Progress) bool {
	if ctx.Err() != nil || e.ctx.Err() != nil {
		return false
	}
	if fn == nil {
		return true
	}
	return fn(p) == Continue
}

// lock serializes downloads into the same local file.
func (e *Engine) lock(target string) func() {
	m, _ := e.locks.LoadOrStore(target, &sync.Mutex{})
	m.Lock()
	return m.Unlock
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}
