// Package emailcheck provides the shared types for probing whether an email
// address is deliverable without sending a message.
//
// A check validates the address syntax, resolves the domain's MX hosts and
// drives a partial SMTP transaction (HELO, MAIL FROM, RCPT TO) against the
// top-priority host, stopping before DATA. The reply to RCPT TO decides the
// outcome. The probing itself lives in [github.com/alexisbouchez/emailcheck.go/probe]
// and the pooled pipeline in [github.com/alexisbouchez/emailcheck.go/checker].
//
// # Outcomes
//
// [Status] is the caller-facing taxonomy: [Invalid], [Error], [NoMxRecords],
// [Exists] and [NotExists]. Only NotExists, NoMxRecords and Invalid are safe
// reasons not to send mail; Error and Exists both need a real delivery to be
// sure. See [Status.SafeToSkip].
//
// # Addresses
//
// [ParseAddress] is the syntax gate. It builds on [ParseMailbox], which
// implements RFC 5321 local-part and domain rules, and additionally requires
// a dotted DNS domain since address literals have no MX records. Accepted
// addresses are ASCII only: internationalized domains come back as A-labels.
//
// # Reply Classification
//
// [Classify] maps a raw reply line to a [Verdict]. [ReplyCode] constants
// cover the standard SMTP reply codes, and [SMTPError] carries a code,
// optional [EnhancedCode] and message.
package emailcheck
