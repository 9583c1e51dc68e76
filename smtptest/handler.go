package smtptest

import (
	"context"
	"net"
	"strings"

	"github.com/alexisbouchez/emailcheck.go"
)

// ConnectionHandler is called when a new client connects. Return a non-nil
// error to refuse the connection with that reply.
type ConnectionHandler interface {
	OnConnect(ctx context.Context, remote net.Addr) error
}

// HeloHandler is called when the client sends EHLO or HELO. The hostname is
// empty for a bare HELO.
type HeloHandler interface {
	OnHelo(ctx context.Context, hostname string) error
}

// MailHandler is called for MAIL FROM commands. The null reverse-path
// arrives as the zero Mailbox.
type MailHandler interface {
	OnMail(ctx context.Context, from emailcheck.Mailbox) error
}

// RcptHandler is called for RCPT TO commands.
type RcptHandler interface {
	OnRcpt(ctx context.Context, to emailcheck.Mailbox) error
}

// HeloFunc adapts a function to a HeloHandler.
type HeloFunc func(ctx context.Context, hostname string) error

func (f HeloFunc) OnHelo(ctx context.Context, hostname string) error { return f(ctx, hostname) }

// MailFunc adapts a function to a MailHandler.
type MailFunc func(ctx context.Context, from emailcheck.Mailbox) error

func (f MailFunc) OnMail(ctx context.Context, from emailcheck.Mailbox) error { return f(ctx, from) }

// RcptFunc adapts a function to a RcptHandler.
type RcptFunc func(ctx context.Context, to emailcheck.Mailbox) error

func (f RcptFunc) OnRcpt(ctx context.Context, to emailcheck.Mailbox) error { return f(ctx, to) }

// RawReply is a handler error that is written to the client verbatim,
// followed by CRLF. It lets a test script replies that are not valid SMTP.
type RawReply string

func (r RawReply) Error() string { return "smtptest: raw reply " + string(r) }

// Mailboxes is a RcptHandler that accepts only the listed addresses
// (compared case-insensitively) and answers 550 5.1.1 for every other one.
type Mailboxes []string

func (m Mailboxes) OnRcpt(_ context.Context, to emailcheck.Mailbox) error {
	addr := to.String()
	for _, known := range m {
		if strings.EqualFold(known, addr) {
			return nil
		}
	}
	return emailcheck.Errorf(emailcheck.ReplyMailboxNotFound, emailcheck.EnhancedCodeBadDest, "User unknown")
}

// Reject is a RcptHandler that answers 550 5.1.1 for the listed addresses
// and accepts every other one.
type Reject []string

func (r Reject) OnRcpt(_ context.Context, to emailcheck.Mailbox) error {
	addr := to.String()
	for _, bad := range r {
		if strings.EqualFold(bad, addr) {
			return emailcheck.Errorf(emailcheck.ReplyMailboxNotFound, emailcheck.EnhancedCodeBadDest, "User unknown")
		}
	}
	return nil
}
