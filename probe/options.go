package probe

import (
	"net"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for a probe session.
const (
	DefaultPort           = 25
	DefaultSender         = "noreply@example.com"
	DefaultReplyTimeout   = 3000 * time.Millisecond
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadBuffer     = 100
)

// Option configures a Session.
type Option func(*options)

type options struct {
	dialer         Dialer
	port           int
	sender         string
	heloName       string
	replyTimeout   time.Duration
	connectTimeout time.Duration
	readBuffer     int
	logger         zerolog.Logger
}

func newOptions(opts []Option) *options {
	o := &options{
		dialer:         &net.Dialer{},
		port:           DefaultPort,
		sender:         DefaultSender,
		replyTimeout:   DefaultReplyTimeout,
		connectTimeout: DefaultConnectTimeout,
		readBuffer:     DefaultReadBuffer,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithDialer sets the dialer used to reach the MX host. See [NewProxyDialer].
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithPort sets the SMTP port. Defaults to 25.
func WithPort(port int) Option {
	return func(o *options) {
		if port > 0 {
			o.port = port
		}
	}
}

// WithSender sets the envelope sender used in MAIL FROM.
func WithSender(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.sender = addr
		}
	}
}

// WithHeloName fixes the identity sent with HELO. By default the identity
// is taken from the server's greeting banner, and a bare HELO is sent when
// the banner carries none.
func WithHeloName(name string) Option {
	return func(o *options) { o.heloName = name }
}

// WithReplyTimeout bounds the wait for each reply, including the greeting.
func WithReplyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.replyTimeout = d
		}
	}
}

// WithConnectTimeout bounds the TCP connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithReadBuffer sets the capacity of the channel between the response
// reader and the driver. When it is full the reader blocks.
func WithReadBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readBuffer = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}
