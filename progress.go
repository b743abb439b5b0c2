package ftps

import "io"

// ProgressFunc receives the running byte count of a transfer. Returning
// false stops the transfer with ErrTransferAborted.
type ProgressFunc func(bytesTransferred int64) bool

// ProgressReader wraps an io.Reader and reports progress via a callback.
type ProgressReader struct {
	// Reader is the underlying reader
	Reader io.Reader

	// Callback is called after each Read that moved data
	Callback ProgressFunc

	total int64
}

// Read implements io.Reader.
func (pr *ProgressReader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	pr.total += int64(n)
	if pr.Callback != nil && n > 0 && !pr.Callback(pr.total) {
		return n, ErrTransferAborted
	}
	return n, err
}

// Total returns the bytes read so far.
func (pr *ProgressReader) Total() int64 {
	return pr.total
}

// ProgressWriter wraps an io.Writer and reports progress via a callback.
type ProgressWriter struct {
	// Writer is the underlying writer
	Writer io.Writer

	// Callback is called after each Write that moved data
	Callback ProgressFunc

	total int64
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += int64(n)
	if err != nil {
		return n, err
	}
	if pw.Callback != nil && n > 0 && !pw.Callback(pw.total) {
		return n, ErrTransferAborted
	}
	return n, nil
}

// Total returns the bytes written so far.
func (pw *ProgressWriter) Total() int64 {
	return pw.total
}
