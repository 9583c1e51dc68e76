package textproto

import (
	"net"
	"strings"
	"testing"
	"time"
)

func FuzzReadLine(f *testing.F) {
	f.Add("250 OK\r\n")
	f.Add("250-Hello\r\n250 World\r\n")
	f.Add("220 Ready\n")
	f.Add("550 5.1.1 User unknown\r\n")
	f.Add(strings.Repeat("A", 5000))

	f.Fuzz(func(t *testing.T, data string) {
		conn := NewConn(&fakeConn{r: strings.NewReader(data)})
		for {
			line, err := conn.ReadLine(MaxReplyLineLen)
			if err != nil {
				return
			}
			if len(line) > MaxReplyLineLen-2 {
				t.Fatalf("ReadLine returned %d bytes, limit %d", len(line), MaxReplyLineLen)
			}
			if strings.ContainsAny(line, "\n") {
				t.Fatalf("ReadLine returned a line containing LF: %q", line)
			}
		}
	})
}

// fakeConn implements net.Conn for fuzzing.
type fakeConn struct {
	r *strings.Reader
}

func (f *fakeConn) Read(b []byte) (int, error)       { return f.r.Read(b) }
func (f *fakeConn) Write(b []byte) (int, error)      { return len(b), nil }
func (f *fakeConn) Close() error                     { return nil }
func (f *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (f *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (f *fakeConn) SetDeadline(t time.Time) error    { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
