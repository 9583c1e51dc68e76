package smtptest

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbouchez/emailcheck.go"
)

// conversation sends commands and reads replies over net.Pipe.
type conversation struct {
	t      *testing.T
	reader *bufio.Reader
	conn   net.Conn
}

func newConversation(t *testing.T, conn net.Conn) *conversation {
	return &conversation{t: t, reader: bufio.NewReader(conn), conn: conn}
}

func (c *conversation) readLine() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := c.reader.ReadString('\n')
	require.NoError(c.t, err)
	return strings.TrimRight(line, "\r\n")
}

// expect reads one full reply and checks the code of its final line.
func (c *conversation) expect(code string) string {
	c.t.Helper()
	for {
		line := c.readLine()
		require.GreaterOrEqual(c.t, len(line), 3, "reply line too short: %q", line)
		if len(line) > 3 && line[3] == '-' {
			continue
		}
		require.Equal(c.t, code, line[:3], "reply %q", line)
		return line
	}
}

func (c *conversation) send(line string) {
	c.t.Helper()
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(c.t, err)
}

// startTestServer serves one session on a net.Pipe and returns the client side.
func startTestServer(t *testing.T, opts ...Option) (*conversation, *Server) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	srv := NewServer(append([]Option{WithHostname("mx.test.example")}, opts...)...)
	go srv.ServeConn(serverConn)
	t.Cleanup(func() { clientConn.Close() })
	return newConversation(t, clientConn), srv
}

func TestProbeConversation(t *testing.T) {
	c, srv := startTestServer(t, WithRcptHandler(Mailboxes{"alice@example.com"}))

	greeting := c.expect("220")
	assert.Equal(t, "220 mx.test.example ESMTP ready", greeting)

	c.send("HELO mx.test.example")
	c.expect("250")
	c.send("MAIL FROM:<noreply@example.com>")
	c.expect("250")
	c.send("RCPT TO:<alice@example.com>")
	c.expect("250")
	c.send("RCPT TO:<bob@example.com>")
	assert.Equal(t, "550 5.1.1 User unknown", c.expect("550"))

	assert.Equal(t, []string{
		"HELO mx.test.example",
		"MAIL FROM:<noreply@example.com>",
		"RCPT TO:<alice@example.com>",
		"RCPT TO:<bob@example.com>",
	}, srv.Commands())
	assert.Equal(t, 1, srv.Connections())
}

func TestBareHELO(t *testing.T) {
	c, _ := startTestServer(t)
	c.expect("220")
	c.send("HELO")
	c.expect("250")
}

func TestMailBeforeHELO(t *testing.T) {
	c, _ := startTestServer(t)
	c.expect("220")
	c.send("MAIL FROM:<a@example.com>")
	c.expect("503")
}

func TestRcptBeforeMail(t *testing.T) {
	c, _ := startTestServer(t)
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("RCPT TO:<a@example.com>")
	c.expect("503")
}

func TestDataRefused(t *testing.T) {
	c, _ := startTestServer(t)
	c.expect("220")
	c.send("DATA")
	c.expect("554")
}

func TestCustomGreeting(t *testing.T) {
	c, _ := startTestServer(t, WithGreeting("220-first.example banner", "220 second line"))
	assert.Equal(t, "220-first.example banner", c.readLine())
	assert.Equal(t, "220 second line", c.readLine())
}

func TestHeloHandler421ClosesConnection(t *testing.T) {
	c, _ := startTestServer(t, WithHeloHandler(HeloFunc(func(context.Context, string) error {
		return emailcheck.Errorf(emailcheck.ReplyServiceNotAvailable, emailcheck.EnhancedCode{}, "Service not available")
	})))
	c.expect("220")
	c.send("HELO client")
	assert.Equal(t, "421 Service not available", c.expect("421"))

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.reader.ReadString('\n')
	assert.Error(t, err, "connection should be closed after 421")
}

func TestRawReply(t *testing.T) {
	c, _ := startTestServer(t, WithMailHandler(MailFunc(func(context.Context, emailcheck.Mailbox) error {
		return RawReply("garbage")
	})))
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("MAIL FROM:<a@example.com>")
	assert.Equal(t, "garbage", c.readLine())
}

func TestMultilineHandlerError(t *testing.T) {
	c, _ := startTestServer(t, WithRcptHandler(RcptFunc(func(context.Context, emailcheck.Mailbox) error {
		return emailcheck.Errorf(emailcheck.ReplyMailboxNotFound, emailcheck.EnhancedCodeBadDest, "No such user\nTry again never")
	})))
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("MAIL FROM:<a@example.com>")
	c.expect("250")
	c.send("RCPT TO:<b@example.com>")
	assert.Equal(t, "550-5.1.1 No such user", c.readLine())
	assert.Equal(t, "550 5.1.1 Try again never", c.readLine())
}

func TestStall(t *testing.T) {
	c, srv := startTestServer(t, WithStall("rcpt"))
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("MAIL FROM:<a@example.com>")
	c.expect("250")
	c.send("RCPT TO:<b@example.com>")

	c.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, err := c.reader.ReadString('\n')
	require.Error(t, err)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())

	assert.Eventually(t, func() bool { return len(srv.Commands()) == 3 }, time.Second, 10*time.Millisecond)
}

func TestRejectList(t *testing.T) {
	c, _ := startTestServer(t, WithRcptHandler(Reject{"Bob@Example.com"}))
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("MAIL FROM:<a@example.com>")
	c.expect("250")
	c.send("RCPT TO:<alice@example.com>")
	c.expect("250")
	c.send("RCPT TO:<bob@example.com>")
	c.expect("550")
}

func TestUnknownCommand(t *testing.T) {
	c, _ := startTestServer(t)
	c.expect("220")
	c.send("FOO")
	c.expect("500")
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		input     string
		allowNull bool
		want      emailcheck.Mailbox
		wantErr   bool
	}{
		{input: "<user@example.com>", want: emailcheck.Mailbox{LocalPart: "user", Domain: "example.com"}},
		{input: " user@example.com ", want: emailcheck.Mailbox{LocalPart: "user", Domain: "example.com"}},
		{input: "<>", allowNull: true},
		{input: "<>", wantErr: true},
		{input: "", wantErr: true},
		{input: "<invalid>", allowNull: true, wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePath(tt.input, tt.allowNull)
		if tt.wantErr {
			assert.Error(t, err, "parsePath(%q, %v)", tt.input, tt.allowNull)
			continue
		}
		require.NoError(t, err, "parsePath(%q, %v)", tt.input, tt.allowNull)
		assert.Equal(t, tt.want, got)
	}
}

func TestNullReversePath(t *testing.T) {
	var from emailcheck.Mailbox
	called := false
	c, _ := startTestServer(t, WithMailHandler(MailFunc(func(_ context.Context, m emailcheck.Mailbox) error {
		from, called = m, true
		return nil
	})))
	c.expect("220")
	c.send("HELO client")
	c.expect("250")
	c.send("MAIL FROM:<>")
	c.expect("250")
	assert.True(t, called)
	assert.True(t, from.IsZero())
}
