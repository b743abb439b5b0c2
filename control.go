package ftps

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Response represents an FTP server response.
type Response struct {
	// Code is the three-digit response code (e.g., 220, 550)
	Code int

	// Message is the human-readable message from the server
	Message string

	// Lines contains all lines of the response (for multi-line responses)
	Lines []string
}

// Is1xx returns true for preliminary replies.
func (r *Response) Is1xx() bool {
	return r.Code >= 100 && r.Code < 200
}

// Is2xx returns true if the response code is in the 2xx range (success).
func (r *Response) Is2xx() bool {
	return r.Code >= 200 && r.Code < 300
}

// String returns the full response as a string.
func (r *Response) String() string {
	return strings.Join(r.Lines, "\n")
}

// readResponse reads a complete FTP response from the reader.
//
// Single-line format: "220 Welcome\r\n"
// Multi-line format:
//
//	"220-Welcome to FTP\r\n"
//	"220-This is line 2\r\n"
//	"220 Ready\r\n"
//
// The response is complete when a line starts with the code followed by a space.
func readResponse(r *bufio.Reader) (*Response, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}

	line = strings.TrimRight(line, "\r\n")
	if len(line) < 4 {
		return nil, fmt.Errorf("invalid response line: %q", line)
	}

	code, err := strconv.Atoi(line[0:3])
	if err != nil {
		return nil, fmt.Errorf("invalid response code: %q", line[0:3])
	}

	lines := []string{line}

	if line[3] == ' ' {
		return &Response{Code: code, Message: line[4:], Lines: lines}, nil
	}

	if line[3] != '-' {
		return nil, fmt.Errorf("invalid response format: %q", line)
	}

	if err := readMultiLine(r, line[0:3], &lines); err != nil {
		return nil, err
	}

	prefix := line[0:3]
	var messageLines []string
	for _, l := range lines {
		if len(l) >= 4 && l[0:3] == prefix && (l[3] == '-' || l[3] == ' ') {
			l = l[4:]
		}
		if l = strings.TrimSpace(l); l != "" {
			messageLines = append(messageLines, l)
		}
	}

	return &Response{
		Code:    code,
		Message: strings.Join(messageLines, "\n"),
		Lines:   lines,
	}, nil
}

func readMultiLine(r *bufio.Reader, code string, lines *[]string) error {
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("unexpected EOF reading response")
			}
			return err
		}

		line = strings.TrimRight(line, "\r\n")

		// RFC 2389 continuation lines start with a space
		if len(line) > 0 && line[0] == ' ' {
			*lines = append(*lines, line)
			continue
		}

		if len(line) < 4 || line[0:3] != code {
			// Free-form text inside a multi-line reply
			*lines = append(*lines, line)
			continue
		}

		*lines = append(*lines, line)

		if line[3] == ' ' {
			return nil
		}
	}
}

// sendCommand sends an FTP command and returns the response.
func (c *Client) sendCommand(command string, args ...string) (*Response, error) {
	cmd := command
	if len(args) > 0 {
		cmd = command + " " + strings.Join(args, " ")
	}

	if c.closed.Load() {
		return nil, ErrClosed
	}

	logged := cmd
	if command == "PASS" {
		logged = "PASS ***"
	}
	c.logger.Debug().Str("cmd", logged).Msg("ftp command")

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(command, cmd)
}

// sendLocked sends the command line cmd and reads its reply. c.mu must be
// held.
func (c *Client) sendLocked(command, cmd string) (*Response, error) {
	start := time.Now()
	c.stateMu.Lock()
	c.lastCommand = start
	c.stateMu.Unlock()

	resp, err := c.roundTrip(cmd)
	if err != nil {
		if c.closed.Load() {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		c.recordCommand(command, false, start)
		return nil, err
	}

	c.logger.Debug().Int("code", resp.Code).Str("message", resp.Message).Msg("ftp response")
	c.recordCommand(command, resp.Code < 400, start)
	return resp, nil
}

func (c *Client) roundTrip(cmd string) (*Response, error) {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := fmt.Fprintf(c.conn, "%s\r\n", cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	resp, err := readResponse(c.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

func (c *Client) recordCommand(command string, success bool, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordCommand(command, success, time.Since(start))
	}
}

// expectCode sends a command and verifies the response code matches the expected code.
func (c *Client) expectCode(expectedCode int, command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if resp.Code != expectedCode {
		return resp, newProtocolError(command, resp)
	}

	return resp, nil
}

// expect2xx sends a command and verifies the response is in the 2xx range (success).
func (c *Client) expect2xx(command string, args ...string) (*Response, error) {
	resp, err := c.sendCommand(command, args...)
	if err != nil {
		return nil, err
	}

	if !resp.Is2xx() {
		return resp, newProtocolError(command, resp)
	}

	return resp, nil
}
