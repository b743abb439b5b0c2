package session

import (
	"sync/atomic"

	"github.com/gonzalop/ftps/engine"
	"github.com/gonzalop/ftps/listing"
)

// Event is delivered to observers. The concrete types are Connected,
// ConnectFailed, DirectoryChanged, *TransferProgress, FileTransferred,
// BatchFinished, Failed and Disconnected.
type Event interface {
	event()
}

// Direction tells uploads from downloads.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}

// Connected follows a successful login and first listing.
type Connected struct {
	Path    string
	Entries []listing.Entry
}

// ConnectFailed reports why the session could not be established. The
// session disconnects itself afterwards.
type ConnectFailed struct {
	Code   engine.Code
	Reason string
}

// DirectoryChanged carries a fresh listing of Path, after a directory change,
// a refresh or a mutation.
type DirectoryChanged struct {
	Path    string
	Entries []listing.Entry
}

// TransferProgress is sent synchronously while a file moves; the worker
// waits until every observer has seen it. Calling Abort stops the transfer
// at this tick.
type TransferProgress struct {
	Direction  Direction
	File       string
	TotalBytes int64
	Bytes      int64

	aborted atomic.Bool
}

// Abort asks the worker to stop the transfer.
func (p *TransferProgress) Abort() {
	p.aborted.Store(true)
}

// Aborted reports whether an observer called Abort.
func (p *TransferProgress) Aborted() bool {
	return p.aborted.Load()
}

// FileTransferred reports one completed file of a batch. Index is 1-based.
type FileTransferred struct {
	Direction Direction
	File      string
	Index     int
	Total     int
}

// BatchFinished ends every upload or download batch, successful or not.
// Files lists everything that was requested.
type BatchFinished struct {
	Direction Direction
	Files     []string
}

// Failed reports an operation that did not complete.
type Failed struct {
	Op      string
	Code    engine.Code
	Message string
}

// Disconnected is the last event a session delivers.
type Disconnected struct{}

func (Connected) event()         {}
func (ConnectFailed) event()     {}
func (DirectoryChanged) event()  {}
func (*TransferProgress) event() {}
func (FileTransferred) event()   {}
func (BatchFinished) event()     {}
func (Failed) event()            {}
func (Disconnected) event()      {}

// Observer receives session events on the coordinator goroutine.
// Implementations are compared by identity, so use pointer receivers.
type Observer interface {
	Notify(s *Session, ev Event)
}
