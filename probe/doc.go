// Package probe drives a partial SMTP transaction against a single MX host to
// learn whether a mailbox exists, without sending a message.
//
// # Quick Start
//
// Use [Probe] to connect, run the exchange and close in one call:
//
//	out := probe.Probe(ctx, "mx1.example.com", "user@example.com",
//	    probe.WithSender("check@mydomain.example"),
//	)
//	fmt.Println(out.Status)
//
// # Session Lifecycle
//
// [Dial] opens the connection and starts the response reader, a goroutine
// that reads reply lines and publishes them on a bounded channel. The driver
// consumes that channel with a per-reply timeout, so a silent or stalled peer
// shows up as a timeout and never blocks the caller indefinitely.
// [Session.Close] half-closes both directions, closes the connection and
// waits for the reader to exit; it is safe to call more than once.
//
// # Exchange
//
// [Session.Run] waits for the greeting, then sends HELO, MAIL FROM and
// RCPT TO, consuming exactly one reply per command. It never sends DATA,
// RSET or QUIT. A non-2xx reply to HELO or MAIL FROM yields
// [emailcheck.Error]; a non-2xx reply to RCPT TO yields
// [emailcheck.NotExists]. A missing or malformed reply at any step yields
// [emailcheck.Error].
package probe
