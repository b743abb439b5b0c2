package ftps

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gonzalop/ftps/listing"
)

// ListRaw returns the raw bytes of a LIST of path. An empty path lists the
// current directory.
func (c *Client) ListRaw(path string) ([]byte, error) {
	args := []string{}
	if path != "" {
		args = append(args, path)
	}

	dataConn, err := c.cmdDataConnFrom("LIST", args...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, readErr := io.ReadAll(dataConn)

	finishErr := c.finishDataConn(dataConn)
	c.recordTransfer("LIST", int64(len(raw)), start)

	if readErr != nil {
		return nil, fmt.Errorf("failed to read directory listing: %w", readErr)
	}
	if finishErr != nil {
		return nil, finishErr
	}
	return raw, nil
}

// List returns the parsed entries of path. Lines no grammar recognizes are
// dropped, as are the "." and ".." entries.
//
// Example:
//
//	entries, err := client.List("/pub/")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, e := range entries {
//	    fmt.Printf("%s %s %d\n", e.Kind, e.Name, e.Size)
//	}
func (c *Client) List(path string) ([]listing.Entry, error) {
	raw, err := c.ListRaw(path)
	if err != nil {
		return nil, err
	}
	return c.parser.Parse(raw), nil
}

// ChangeDir changes the current working directory.
func (c *Client) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

// MakeDir creates a new directory.
func (c *Client) MakeDir(path string) error {
	_, err := c.expect2xx("MKD", path)
	return err
}

// RemoveDir removes an empty directory.
func (c *Client) RemoveDir(path string) error {
	_, err := c.expect2xx("RMD", path)
	return err
}

// Delete deletes a file.
func (c *Client) Delete(path string) error {
	_, err := c.expect2xx("DELE", path)
	return err
}

// Rename renames a file or directory with RNFR followed by RNTO.
func (c *Client) Rename(from, to string) error {
	if _, err := c.expectCode(350, "RNFR", from); err != nil {
		return err
	}

	_, err := c.expect2xx("RNTO", to)
	return err
}

// Size returns the size of a file in bytes.
func (c *Client) Size(path string) (int64, error) {
	resp, err := c.expectCode(213, "SIZE", path)
	if err != nil {
		return 0, err
	}

	size, err := strconv.ParseInt(strings.TrimSpace(resp.Message), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SIZE response: %s", resp.Message)
	}

	return size, nil
}

// Chmod changes the permissions of a file using SITE CHMOD.
//
// Example:
//
//	err := client.Chmod("script.sh", listing.ModeFromFileMode(0o755))
func (c *Client) Chmod(path string, mode listing.Mode) error {
	_, err := c.expect2xx("SITE", "CHMOD", mode.String(), path)
	return err
}
