package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexisbouchez/emailcheck.go"
)

// ErrNoReply is reported when a reply does not arrive within the reply
// timeout, including when the peer closed the connection.
var ErrNoReply = errors.New("probe: no reply")

// ErrMalformedReply is reported when a reply line carries no valid code.
var ErrMalformedReply = errors.New("probe: malformed reply")

type state int

const (
	stateStart state = iota
	stateHeloSent
	stateMailFromSent
	stateRcptToSent
	stateDone
)

var stateNames = [...]string{
	stateStart:        "start",
	stateHeloSent:     "helo-sent",
	stateMailFromSent: "mail-from-sent",
	stateRcptToSent:   "rcpt-to-sent",
	stateDone:         "done",
}

func (st state) String() string {
	if int(st) < len(stateNames) {
		return stateNames[st]
	}
	return fmt.Sprintf("state(%d)", int(st))
}

// stepResult is either the next state or a terminal outcome.
type stepResult struct {
	next  state
	final bool

	status emailcheck.Status
	reply  string
	err    error
}

func advance(next state, reply string) stepResult {
	return stepResult{next: next, reply: reply}
}

func terminal(status emailcheck.Status, reply string, err error) stepResult {
	return stepResult{final: true, status: status, reply: reply, err: err}
}

// driver runs one exchange over a session. It is used by a single goroutine.
type driver struct {
	s      *Session
	ctx    context.Context
	target string

	state      state
	reply      string
	transcript []string
}

func (d *driver) run() Outcome {
	for {
		var r stepResult
		switch d.state {
		case stateStart:
			r = d.helo()
		case stateHeloSent:
			d.clear()
			r = d.exchange("MAIL FROM:<"+d.s.opts.sender+">", stateMailFromSent, emailcheck.Error)
		case stateMailFromSent:
			d.clear()
			r = d.exchange("RCPT TO:<"+d.target+">", stateRcptToSent, emailcheck.NotExists)
		case stateRcptToSent:
			r = terminal(emailcheck.Exists, d.reply, nil)
		default:
			r = terminal(emailcheck.Error, d.reply, ErrSessionUsed)
		}
		if r.final {
			return d.finish(r)
		}
		d.state, d.reply = r.next, r.reply
	}
}

// helo waits for the greeting and answers it. The greeting code is not
// classified; a server that refuses us says so again in reply to HELO.
func (d *driver) helo() stepResult {
	banner, _, err := d.await()
	if err != nil {
		return terminal(emailcheck.Error, "", err)
	}
	d.clear()
	return d.exchange(d.heloCommand(banner), stateHeloSent, emailcheck.Error)
}

// exchange sends cmd and classifies its reply. A negative reply ends the
// probe with the given status.
func (d *driver) exchange(cmd string, next state, negative emailcheck.Status) stepResult {
	if err := d.send(cmd); err != nil {
		return terminal(emailcheck.Error, "", err)
	}
	_, line, err := d.await()
	if err != nil {
		return terminal(emailcheck.Error, "", err)
	}

	switch emailcheck.Classify(line) {
	case emailcheck.VerdictContinue:
		return advance(next, line)
	case emailcheck.VerdictNegative:
		return terminal(negative, line, emailcheck.ReplyError(line))
	default:
		return terminal(emailcheck.Error, line, fmt.Errorf("%w: %q", ErrMalformedReply, line))
	}
}

func (d *driver) finish(r stepResult) Outcome {
	d.event(r.status).Str("state", d.state.String()).Err(r.err).Msg("probe finished")
	d.state = stateDone
	return Outcome{
		Status:     r.status,
		Reply:      r.reply,
		Err:        r.err,
		Transcript: d.transcript,
	}
}

func (d *driver) event(status emailcheck.Status) *zerolog.Event {
	if status == emailcheck.Error {
		return d.s.logger.Debug().Str("status", status.String())
	}
	return d.s.logger.Trace().Str("status", status.String())
}

// heloCommand builds HELO with the configured name, else the first word of
// the greeting text.
func (d *driver) heloCommand(banner string) string {
	name := d.s.opts.heloName
	if name == "" && len(banner) > 4 {
		if fields := strings.Fields(banner[4:]); len(fields) > 0 {
			name = fields[0]
		}
	}
	if name == "" {
		return "HELO"
	}
	return "HELO " + name
}

// send writes one command line. A command carrying CR or LF (from an
// unchecked target or sender) is refused by the connection before any byte
// is written, and is left out of the transcript.
func (d *driver) send(cmd string) error {
	if err := d.s.conn.SetWriteDeadline(time.Now().Add(d.s.opts.replyTimeout)); err != nil {
		return fmt.Errorf("probe: %s: %w", verb(cmd), err)
	}
	if err := d.s.conn.WriteLine(cmd); err != nil {
		return fmt.Errorf("probe: %s: %w", verb(cmd), err)
	}
	d.transcript = append(d.transcript, "C: "+cmd)
	return nil
}

// await returns the first and final lines of the next reply. Continuation
// lines ("250-...") are consumed within the same deadline.
func (d *driver) await() (first, last string, err error) {
	timer := time.NewTimer(d.s.opts.replyTimeout)
	defer timer.Stop()

	for {
		select {
		case line := <-d.s.lines:
			d.transcript = append(d.transcript, "S: "+line)
			if first == "" {
				first = line
			}
			if !isContinuation(line) {
				return first, line, nil
			}
		case <-timer.C:
			return "", "", fmt.Errorf("%w within %s (%s)", ErrNoReply, d.s.opts.replyTimeout, d.state)
		case <-d.ctx.Done():
			return "", "", d.ctx.Err()
		case <-d.s.done:
			return "", "", ErrSessionClosed
		}
	}
}

// clear drops lines already buffered but not yet consumed.
func (d *driver) clear() {
	for {
		select {
		case line := <-d.s.lines:
			d.transcript = append(d.transcript, "S: "+line+" (discarded)")
		default:
			return
		}
	}
}

func isContinuation(line string) bool {
	if len(line) < 4 || line[3] != '-' {
		return false
	}
	_, ok := emailcheck.ParseReplyCode(line[:3])
	return ok
}

func verb(cmd string) string {
	if i := strings.IndexAny(cmd, " :"); i > 0 {
		return cmd[:i]
	}
	return cmd
}
