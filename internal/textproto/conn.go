// Package textproto implements the line-level SMTP wire protocol shared by
// the probe and the test peer: bounded line reads, CRLF-terminated writes and
// reply formatting. It sits between net.Conn and the protocol logic.
package textproto

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrLineBreak is returned by [Conn.WriteLine] for a line that carries its
// own CR or LF. Such a line would reach the peer as more than one command.
var ErrLineBreak = errors.New("textproto: line contains CR or LF")

// MaxCommandLineLen is the maximum length of an SMTP command line
// including CRLF (RFC 5321 §4.5.3.1.4).
const MaxCommandLineLen = 512

// MaxReplyLineLen is a generous limit for reply lines to prevent memory exhaustion.
const MaxReplyLineLen = 2048

// Conn wraps a net.Conn with buffered reading and writing for SMTP protocol I/O.
// Reads and writes use separate buffers, so one goroutine may read while
// another writes.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
}

// NewConn creates a new protocol Conn wrapping the given network connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		conn: c,
		r:    bufio.NewReaderSize(c, 4096),
		w:    bufio.NewWriterSize(c, 4096),
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// SetReadDeadline sets the read deadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the write deadline on the underlying connection.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// ReadLine reads a single line from the connection. Both \r\n and a bare \n
// terminate a line; the terminator is not returned.
// Returns an error if the line exceeds maxLen bytes (including \r\n).
func (c *Conn) ReadLine(maxLen int) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := c.r.ReadLine()
		line = append(line, chunk...)
		if err != nil {
			return "", err
		}
		if !isPrefix {
			break
		}
		// Still reading, check limit.
		if len(line) > maxLen {
			// Drain the rest of the line.
			for isPrefix {
				_, isPrefix, err = c.r.ReadLine()
				if err != nil {
					break
				}
			}
			return "", fmt.Errorf("textproto: line too long (%d bytes, max %d)", len(line), maxLen)
		}
	}
	if len(line) > maxLen-2 { // -2 for the \r\n we already consumed
		return "", fmt.Errorf("textproto: line too long (%d bytes, max %d)", len(line)+2, maxLen)
	}
	return string(line), nil
}

// WriteLine writes a line followed by \r\n and flushes the buffer. A line
// containing CR or LF is refused with [ErrLineBreak] and nothing is written.
func (c *Conn) WriteLine(line string) error {
	if strings.ContainsAny(line, "\r\n") {
		return fmt.Errorf("%w: %q", ErrLineBreak, line)
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteRaw writes pre-formatted wire text as is and flushes the buffer.
// The caller is responsible for line terminators.
func (c *Conn) WriteRaw(s string) error {
	if _, err := c.w.WriteString(s); err != nil {
		return err
	}
	return c.w.Flush()
}

// WriteReply writes a single-line or multi-line reply to the connection.
func (c *Conn) WriteReply(code int, lines ...string) error {
	if len(lines) == 0 {
		lines = []string{""}
	}
	for i, line := range lines {
		var sep byte = ' '
		if i < len(lines)-1 {
			sep = '-'
		}
		s := fmt.Sprintf("%d%c%s", code, sep, line)
		if _, err := c.w.WriteString(s); err != nil {
			return err
		}
		if _, err := c.w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return c.w.Flush()
}
