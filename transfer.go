package ftps

import (
	"fmt"
	"io"
	"time"
)

// Store uploads data from an io.Reader to the remote path.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.Open("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Store("remote.txt", file)
func (c *Client) Store(remotePath string, r io.Reader) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}

	dataConn, err := c.cmdDataConnFrom("STOR", remotePath)
	if err != nil {
		return err
	}

	start := time.Now()
	n, copyErr := io.Copy(dataConn, r)

	// Always finish the data connection so the control channel stays in sync
	finishErr := c.finishDataConn(dataConn)
	c.recordTransfer("STOR", n, start)

	if copyErr != nil {
		return fmt.Errorf("upload failed: %w", copyErr)
	}
	return finishErr
}

// Retrieve downloads data from the remote path to an io.Writer.
// The transfer is performed in binary mode (TYPE I).
//
// Example:
//
//	file, err := os.Create("local.txt")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Retrieve("remote.txt", file)
func (c *Client) Retrieve(remotePath string, w io.Writer) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}

	dataConn, err := c.cmdDataConnFrom("RETR", remotePath)
	if err != nil {
		return err
	}

	start := time.Now()
	n, copyErr := io.Copy(w, dataConn)

	finishErr := c.finishDataConn(dataConn)
	c.recordTransfer("RETR", n, start)

	if copyErr != nil {
		return fmt.Errorf("download failed: %w", copyErr)
	}
	return finishErr
}

func (c *Client) recordTransfer(operation string, n int64, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTransfer(operation, n, time.Since(start))
	}
	c.logger.Debug().Str("operation", operation).Int64("bytes", n).
		Dur("duration", time.Since(start)).Msg("transfer finished")
}
