package smtptest

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/internal/textproto"
)

// Server is a scriptable SMTP peer. It speaks enough of RFC 5321 to answer
// a mailbox probe and records every command it receives.
type Server struct {
	addr         string
	hostname     string
	greeting     []string
	silent       bool
	stall        map[string]bool
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       zerolog.Logger

	connHandler ConnectionHandler
	heloHandler HeloHandler
	mailHandler MailHandler
	rcptHandler RcptHandler

	maxConnections int

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
	mu       sync.Mutex
	connSem  chan struct{} // Semaphore for limiting concurrent connections.

	conns    int
	commands []string
}

// Option configures a Server.
type Option func(*Server)

// NewServer creates a new SMTP peer with the given options.
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:         "127.0.0.1:2525",
		hostname:     "mx.test.example",
		stall:        make(map[string]bool),
		readTimeout:  time.Minute,
		writeTimeout: time.Minute,
		logger:       zerolog.Nop(),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithAddr sets the listen address used by ListenAndServe.
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithHostname sets the hostname announced in the greeting banner.
func WithHostname(hostname string) Option {
	return func(s *Server) { s.hostname = hostname }
}

// WithGreeting replaces the greeting banner with the given raw lines, sent
// as is with CRLF terminators.
func WithGreeting(lines ...string) Option {
	return func(s *Server) { s.greeting = lines }
}

// WithSilentGreeting makes the server accept connections without ever
// sending a greeting.
func WithSilentGreeting() Option {
	return func(s *Server) { s.silent = true }
}

// WithStall makes the server read the given command verb (e.g. "RCPT")
// and never answer it.
func WithStall(verb string) Option {
	return func(s *Server) { s.stall[strings.ToUpper(verb)] = true }
}

// WithReadTimeout sets the timeout for reading client commands.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the timeout for writing replies.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithConnectionHandler sets the handler called on new connections.
func WithConnectionHandler(h ConnectionHandler) Option {
	return func(s *Server) { s.connHandler = h }
}

// WithHeloHandler sets the handler called on EHLO/HELO.
func WithHeloHandler(h HeloHandler) Option {
	return func(s *Server) { s.heloHandler = h }
}

// WithMailHandler sets the handler called on MAIL FROM.
func WithMailHandler(h MailHandler) Option {
	return func(s *Server) { s.mailHandler = h }
}

// WithRcptHandler sets the handler called on RCPT TO.
func WithRcptHandler(h RcptHandler) Option {
	return func(s *Server) { s.rcptHandler = h }
}

// WithMaxConnections sets the maximum number of concurrent connections.
// Zero means unlimited.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConnections = n }
}

// ListenAndServe starts listening on the configured address and serves
// connections. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on the given listener and serves them.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	if s.maxConnections > 0 {
		s.connSem = make(chan struct{}, s.maxConnections)
	}
	s.mu.Unlock()

	s.logger.Info().Stringer("addr", ln.Addr()).Msg("smtp peer listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.logger.Error().Err(err).Msg("accept error")
				continue
			}
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			default:
				tc := textproto.NewConn(conn)
				tc.WriteReply(int(emailcheck.ReplyServiceNotAvailable), "4.7.0 Too many connections, try again later")
				conn.Close()
				continue
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if s.connSem != nil {
				defer func() { <-s.connSem }()
			}
			s.ServeConn(conn)
		}()
	}
}

// Start listens on an ephemeral loopback port and serves in the background.
// It returns the listening address.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	go s.Serve(ln)
	return ln.Addr().String(), nil
}

// Addr returns the listener's address, or nil if not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connections returns the number of connections served so far.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Commands returns every command line received, across all connections,
// in arrival order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *Server) record(line string) {
	s.mu.Lock()
	s.commands = append(s.commands, line)
	s.mu.Unlock()
}

// Shutdown stops accepting new connections, closes the open ones and waits
// for their sessions to finish, respecting the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately closes the listener and all connections.
func (s *Server) Close() error {
	return s.stop()
}

func (s *Server) stop() error {
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln.Close()
	}
	return nil
}
