package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"

	"github.com/gonzalop/ftps"
	"github.com/gonzalop/ftps/trust"
)

// Code is the closed set of engine results.
type Code int

const (
	CodeOK Code = iota
	CodeConnectFailed
	CodeAuthFailed
	CodeReadError
	CodeWriteError
	CodeUploadFailed
	CodeQuoteCommandFailed
	CodeTrustRejected
	CodeRemoteAccessDenied
	CodeRemoteFileNotFound
	CodeAbortedByCallback
	CodeLocalFileError
	CodeNotConnected
	CodeOperationTimedOut
	CodeTLSConnectFailed
	CodeInvalidArgument
)

var codeNames = [...]string{
	CodeOK:                 "ok",
	CodeConnectFailed:      "connect-failed",
	CodeAuthFailed:         "auth-failed",
	CodeReadError:          "read-error",
	CodeWriteError:         "write-error",
	CodeUploadFailed:       "upload-failed",
	CodeQuoteCommandFailed: "quote-command-failed",
	CodeTrustRejected:      "trust-rejected",
	CodeRemoteAccessDenied: "remote-access-denied",
	CodeRemoteFileNotFound: "remote-file-not-found",
	CodeAbortedByCallback:  "aborted-by-callback",
	CodeLocalFileError:     "local-file-error",
	CodeNotConnected:       "not-connected",
	CodeOperationTimedOut:  "operation-timed-out",
	CodeTLSConnectFailed:   "tls-connect-failed",
	CodeInvalidArgument:    "invalid-argument",
}

func (c Code) String() string {
	if c >= 0 && int(c) < len(codeNames) {
		return codeNames[c]
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is returned by every failing engine operation.
type Error struct {
	// Op is the engine operation ("connect", "upload", "mkdir", ...).
	Op string

	Code Code

	// FTPCode is the server reply code behind the failure, 0 if there was none.
	FTPCode int

	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine: %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("engine: %s: %s: %v", e.Op, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code carried by err. Nil is CodeOK; errors that did not
// come from the engine are CodeConnectFailed.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeConnectFailed
}

func newError(op string, code Code, err error) *Error {
	return &Error{Op: op, Code: code, FTPCode: ftps.ReplyCode(err), Err: err}
}

// classify maps a client error onto a Code. fallback is used for failures
// with no more specific meaning for the operation.
func classify(op string, err error, fallback Code) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	code := fallback
	var pe *ftps.ProtocolError
	var netErr net.Error
	switch {
	case errors.Is(err, trust.ErrRejected), errors.Is(err, ftps.ErrCertificateChanged):
		code = CodeTrustRejected
	case errors.Is(err, ftps.ErrTransferAborted):
		code = CodeAbortedByCallback
	case errors.Is(err, ftps.ErrTLSHandshake):
		code = CodeTLSConnectFailed
	case errors.Is(err, ftps.ErrClosed):
		code = CodeNotConnected
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		code = CodeOperationTimedOut
	case errors.As(err, &pe):
		code = replyCode(pe, fallback)
	}
	return newError(op, code, err)
}

func replyCode(pe *ftps.ProtocolError, fallback Code) Code {
	switch pe.Code {
	case 530:
		return CodeAuthFailed
	case 550:
		switch pe.Command {
		case "RETR", "SIZE", "DELE", "RNFR", "LIST", "CWD", "RMD":
			return CodeRemoteFileNotFound
		}
		return CodeRemoteAccessDenied
	case 450, 532, 553:
		return CodeRemoteAccessDenied
	}
	return fallback
}

// broken reports whether err leaves the control connection unusable.
func broken(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ftps.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	var pe *ftps.ProtocolError
	if errors.As(err, &pe) {
		return pe.Code == 421
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isLocal(err error) bool {
	var pathErr *fs.PathError
	var linkErr *os.LinkError
	return errors.As(err, &pathErr) || errors.As(err, &linkErr)
}
