// Package smtptest provides a scriptable SMTP peer for exercising mailbox
// probes without touching real mail servers.
//
// # Quick Start
//
//	srv := smtptest.NewServer(
//	    smtptest.WithRcptHandler(smtptest.Mailboxes{"alice@example.com"}),
//	)
//	addr, err := srv.Start()
//	defer srv.Close()
//
// # Scripting
//
// Handlers decide the reply to HELO, MAIL FROM and RCPT TO. Return an
// [emailcheck.SMTPError] to send a negative reply, or a [RawReply] to send
// an arbitrary line, including one that is not valid SMTP. A 421 reply
// closes the connection. [WithGreeting], [WithSilentGreeting] and
// [WithStall] shape the peer's timing for timeout tests.
//
// Every command received is recorded and available from [Server.Commands].
package smtptest
