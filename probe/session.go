package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/internal/textproto"
)

// ErrSessionClosed is returned by Run on a session that was already closed.
var ErrSessionClosed = errors.New("probe: session closed")

// ErrSessionUsed is returned by Run on a session that already ran a probe.
var ErrSessionUsed = errors.New("probe: session already used")

// Session is a single probe connection to one MX host. It owns the
// connection, the reply channel and the reader goroutine.
type Session struct {
	conn    *textproto.Conn
	netConn net.Conn
	host    string
	opts    *options
	logger  zerolog.Logger

	lines      chan string
	done       chan struct{} // Closed by Close; releases a blocked reader.
	readerDone chan struct{}

	ran       atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Outcome is the result of one probe.
type Outcome struct {
	Status emailcheck.Status

	// Reply is the reply line that decided the outcome, if one was received.
	Reply string

	// Err explains an Error or NotExists status. Negative replies are
	// reported as *emailcheck.SMTPError.
	Err error

	// Transcript holds the exchange in order, client lines prefixed with
	// "C: " and server lines with "S: ".
	Transcript []string
}

// Dial connects to port 25 (see [WithPort]) of the MX host and starts the
// response reader. The connect is bounded by [WithConnectTimeout] and by ctx.
func Dial(ctx context.Context, host string, opts ...Option) (*Session, error) {
	o := newOptions(opts)

	host = strings.TrimSuffix(host, ".")
	addr := net.JoinHostPort(host, strconv.Itoa(o.port))

	ctx, cancel := context.WithTimeout(ctx, o.connectTimeout)
	defer cancel()

	nc, err := o.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("probe: dial %s: %w", addr, err)
	}
	return newSession(nc, host, o), nil
}

// NewSession wraps an established connection whose greeting has not been
// read yet, and starts the response reader.
func NewSession(nc net.Conn, opts ...Option) *Session {
	host := ""
	if ra := nc.RemoteAddr(); ra != nil {
		host = ra.String()
	}
	return newSession(nc, host, newOptions(opts))
}

func newSession(nc net.Conn, host string, o *options) *Session {
	s := &Session{
		conn:       textproto.NewConn(nc),
		netConn:    nc,
		host:       host,
		opts:       o,
		logger:     o.logger.With().Str("mx", host).Logger(),
		lines:      make(chan string, o.readBuffer),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// Host returns the MX host this session is connected to.
func (s *Session) Host() string {
	return s.host
}

// Run drives HELO, MAIL FROM and RCPT TO for target and classifies the
// replies. It does not close the session. A session runs at most once.
func (s *Session) Run(ctx context.Context, target string) Outcome {
	select {
	case <-s.done:
		return Outcome{Status: emailcheck.Error, Err: ErrSessionClosed}
	default:
	}
	if !s.ran.CompareAndSwap(false, true) {
		return Outcome{Status: emailcheck.Error, Err: ErrSessionUsed}
	}

	d := &driver{s: s, ctx: ctx, target: target}
	return d.run()
}

// Close shuts down both directions of the connection where supported,
// closes it and waits for the reader goroutine to exit. Only the first call
// touches the connection; later calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if hc, ok := s.netConn.(halfCloser); ok {
			// Already-shutdown or unsupported directions are not errors here.
			_ = hc.CloseRead()
			_ = hc.CloseWrite()
		}
		s.closeErr = s.netConn.Close()
	})
	<-s.readerDone
	return s.closeErr
}

// halfCloser is implemented by *net.TCPConn and *net.UnixConn.
type halfCloser interface {
	CloseRead() error
	CloseWrite() error
}

// Probe dials host, runs the exchange for target and closes the session
// before returning. Connection failures yield [emailcheck.Error].
func Probe(ctx context.Context, host, target string, opts ...Option) Outcome {
	s, err := Dial(ctx, host, opts...)
	if err != nil {
		return Outcome{Status: emailcheck.Error, Err: err}
	}
	defer s.Close()
	return s.Run(ctx, target)
}
