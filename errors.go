package ftps

import (
	"errors"
	"fmt"
)

var (
	// ErrTransferAborted is returned when a progress callback stops a transfer.
	ErrTransferAborted = errors.New("ftps: transfer aborted by callback")

	// ErrClosed is returned by commands issued after Close or Quit.
	ErrClosed = errors.New("ftps: connection closed")

	// ErrCertificateChanged is returned when a data connection presents a
	// different certificate than the one approved for the control connection.
	ErrCertificateChanged = errors.New("ftps: data connection certificate differs from control connection")

	// ErrTLSHandshake wraps every failed TLS handshake, control or data.
	ErrTLSHandshake = errors.New("ftps: TLS handshake failed")
)

// ProtocolError represents an FTP protocol error with full context of the
// command/response conversation.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "STOR")
	Command string

	// Response is the message received from the server (e.g., "Permission denied")
	Response string

	// Code is the numeric FTP response code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftps: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is4xx returns true if the error code is in the 4xx range (temporary failure).
func (e *ProtocolError) Is4xx() bool {
	return e.Code >= 400 && e.Code < 500
}

// Is5xx returns true if the error code is in the 5xx range (permanent failure).
func (e *ProtocolError) Is5xx() bool {
	return e.Code >= 500 && e.Code < 600
}

// IsTemporary returns true if the error is a temporary failure (4xx).
func (e *ProtocolError) IsTemporary() bool {
	return e.Is4xx()
}

// IsPermanent returns true if the error is a permanent failure (5xx).
func (e *ProtocolError) IsPermanent() bool {
	return e.Is5xx()
}

// ReplyCode returns the FTP reply code carried by err, or 0.
func ReplyCode(err error) int {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}

func newProtocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
