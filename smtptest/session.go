package smtptest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexisbouchez/emailcheck.go"
	"github.com/alexisbouchez/emailcheck.go/internal/textproto"
)

// sessionState tracks where the session is in the SMTP conversation.
type sessionState int

const (
	stateNew     sessionState = iota // Greeting sent, waiting for HELO.
	stateGreeted                     // EHLO/HELO received.
	stateMail                        // MAIL FROM received.
	stateRcpt                        // At least one RCPT TO received.
)

// session represents a single client connection.
type session struct {
	server *Server
	conn   *textproto.Conn
	ctx    context.Context
	state  sessionState
	logger zerolog.Logger

	clientHostname string
	reversePath    emailcheck.Mailbox
	forwardPaths   []emailcheck.Mailbox
	closing        bool // Set after a 421 reply.
}

// ServeConn runs one SMTP session over nc and closes it when done.
func (s *Server) ServeConn(nc net.Conn) {
	conn := textproto.NewConn(nc)
	remote := nc.RemoteAddr()
	logger := s.logger.With().Str("remote", addrString(remote)).Logger()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch for server shutdown and close the connection to unblock reads.
	go func() {
		select {
		case <-s.quit:
			cancel()
			nc.Close()
		case <-ctx.Done():
		}
	}()

	defer conn.Close()

	if s.connHandler != nil {
		if err := s.connHandler.OnConnect(ctx, remote); err != nil {
			writeError(conn, err)
			return
		}
	}

	sess := &session{
		server: s,
		conn:   conn,
		ctx:    ctx,
		state:  stateNew,
		logger: logger,
	}

	if s.silent {
		// Hold the connection open without a greeting until the client
		// gives up or the server stops.
		for {
			line, err := conn.ReadLine(textproto.MaxCommandLineLen)
			if err != nil {
				return
			}
			s.record(line)
		}
	}

	if err := sess.greet(); err != nil {
		logger.Error().Err(err).Msg("failed to send greeting")
		return
	}

	for !sess.closing {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		line, err := conn.ReadLine(textproto.MaxCommandLineLen)
		if err != nil {
			return // Connection closed or error.
		}
		s.record(line)
		logger.Debug().Str("command", line).Msg("received")

		verb, args := parseCommand(line)
		if s.stall[verb] {
			continue
		}

		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		switch verb {
		case "EHLO", "HELO":
			sess.handleHELO(args)
		case "MAIL":
			sess.handleMAIL(args)
		case "RCPT":
			sess.handleRCPT(args)
		case "RSET":
			sess.resetTransaction()
			sess.reply(emailcheck.ReplyOK, emailcheck.EnhancedCodeOK, "Reset ok")
		case "NOOP":
			sess.reply(emailcheck.ReplyOK, emailcheck.EnhancedCodeOK, "OK")
		case "QUIT":
			sess.reply(emailcheck.ReplyServiceClosing, emailcheck.EnhancedCodeOK, fmt.Sprintf("%s closing connection", s.hostname))
			return
		case "DATA", "BDAT":
			sess.reply(emailcheck.ReplyTransactionFailed, emailcheck.EnhancedCodePolicy, "No mail accepted here")
		default:
			sess.reply(emailcheck.ReplySyntaxError, emailcheck.EnhancedCodeInvalidCommand, "Command not recognized")
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// parseCommand splits an SMTP command line into verb and argument string.
func parseCommand(line string) (verb string, args string) {
	verb, args, _ = strings.Cut(line, " ")
	verb = strings.ToUpper(verb)
	return
}

func (s *session) greet() error {
	if len(s.server.greeting) == 0 {
		return s.conn.WriteReply(int(emailcheck.ReplyServiceReady), fmt.Sprintf("%s ESMTP ready", s.server.hostname))
	}
	for _, line := range s.server.greeting {
		if err := s.conn.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// reply sends a single-line reply with optional enhanced status code.
func (s *session) reply(code emailcheck.ReplyCode, enhanced emailcheck.EnhancedCode, msg string) {
	line := msg
	if !enhanced.IsZero() {
		line = fmt.Sprintf("%s %s", enhanced, msg)
	}
	s.conn.WriteReply(int(code), line)
}

// fail answers a rejected command with the handler's error. A 421 reply
// ends the session, as RFC 5321 §3.8 requires.
func (s *session) fail(err error) {
	if writeError(s.conn, err) == emailcheck.ReplyServiceNotAvailable {
		s.closing = true
	}
}

// writeError writes err as a reply and returns the code that was sent.
func writeError(conn *textproto.Conn, err error) emailcheck.ReplyCode {
	var raw RawReply
	if errors.As(err, &raw) {
		conn.WriteLine(string(raw))
		code, _ := emailcheck.ParseReplyCode(string(raw))
		return code
	}
	var smtpErr *emailcheck.SMTPError
	if errors.As(err, &smtpErr) {
		conn.WriteRaw(smtpErr.WireLines())
		return smtpErr.Code
	}
	conn.WriteReply(int(emailcheck.ReplyLocalError), fmt.Sprintf("%s Internal error", emailcheck.EnhancedCodeOtherNetwork))
	return emailcheck.ReplyLocalError
}

// handleHELO processes EHLO and HELO. A bare HELO is accepted, so a client
// that could not learn a name from the greeting still gets through.
func (s *session) handleHELO(args string) {
	if s.server.heloHandler != nil {
		if err := s.server.heloHandler.OnHelo(s.ctx, args); err != nil {
			s.fail(err)
			return
		}
	}

	s.resetTransaction()
	s.clientHostname = args
	s.state = stateGreeted

	s.reply(emailcheck.ReplyOK, emailcheck.EnhancedCodeOK, fmt.Sprintf("%s Hello %s", s.server.hostname, args))
}

// handleMAIL processes the MAIL FROM command (RFC 5321 §4.1.1.2).
func (s *session) handleMAIL(args string) {
	if s.state < stateGreeted {
		s.reply(emailcheck.ReplyBadSequence, emailcheck.EnhancedCodeInvalidCommand, "Send EHLO/HELO first")
		return
	}
	if s.state >= stateMail {
		s.reply(emailcheck.ReplyBadSequence, emailcheck.EnhancedCodeInvalidCommand, "MAIL already specified")
		return
	}

	upper := strings.ToUpper(args)
	if !strings.HasPrefix(upper, "FROM:") {
		s.reply(emailcheck.ReplySyntaxParamError, emailcheck.EnhancedCodeSyntaxError, "Syntax: MAIL FROM:<address>")
		return
	}

	pathStr, _, _ := strings.Cut(args[5:], " ")
	reversePath, err := parsePath(pathStr, true)
	if err != nil {
		s.reply(emailcheck.ReplySyntaxParamError, emailcheck.EnhancedCodeBadSenderSyntax, "Invalid sender address")
		return
	}

	if s.server.mailHandler != nil {
		if err := s.server.mailHandler.OnMail(s.ctx, reversePath); err != nil {
			s.fail(err)
			return
		}
	}

	s.reversePath = reversePath
	s.forwardPaths = nil
	s.state = stateMail

	s.reply(emailcheck.ReplyOK, emailcheck.EnhancedCodeOtherAddress, "Originator ok")
}

// handleRCPT processes the RCPT TO command (RFC 5321 §4.1.1.3).
func (s *session) handleRCPT(args string) {
	if s.state < stateMail {
		s.reply(emailcheck.ReplyBadSequence, emailcheck.EnhancedCodeInvalidCommand, "Send MAIL first")
		return
	}

	upper := strings.ToUpper(args)
	if !strings.HasPrefix(upper, "TO:") {
		s.reply(emailcheck.ReplySyntaxParamError, emailcheck.EnhancedCodeSyntaxError, "Syntax: RCPT TO:<address>")
		return
	}

	pathStr, _, _ := strings.Cut(args[3:], " ")
	forwardPath, err := parsePath(pathStr, false)
	if err != nil {
		s.reply(emailcheck.ReplySyntaxParamError, emailcheck.EnhancedCodeBadDestSyntax, "Invalid recipient address")
		return
	}

	if s.server.rcptHandler != nil {
		if err := s.server.rcptHandler.OnRcpt(s.ctx, forwardPath); err != nil {
			s.fail(err)
			return
		}
	}

	s.forwardPaths = append(s.forwardPaths, forwardPath)
	s.state = stateRcpt

	s.reply(emailcheck.ReplyOK, emailcheck.EnhancedCodeDestValid, "Recipient ok")
}

// resetTransaction clears the current mail transaction state.
func (s *session) resetTransaction() {
	s.reversePath = emailcheck.Mailbox{}
	s.forwardPaths = nil
	if s.state > stateGreeted {
		s.state = stateGreeted
	}
}

// parsePath parses the <path> argument of MAIL or RCPT. Brackets are
// optional. The null path <> is allowed only when allowNull is set and comes
// back as the zero Mailbox.
func parsePath(s string, allowNull bool) (emailcheck.Mailbox, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<") && strings.HasSuffix(s, ">") {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		if allowNull {
			return emailcheck.Mailbox{}, nil
		}
		return emailcheck.Mailbox{}, errors.New("smtptest: empty forward path")
	}
	return emailcheck.ParseMailbox(s)
}
