package emailcheck

import "strings"

// ReplyCode represents a three-digit SMTP reply code as defined in RFC 5321 §4.2.
type ReplyCode int

// Reply code classes (RFC 5321 §4.2.1).
const (
	ClassPositiveCompletion   = 2 // 2xx
	ClassPositiveIntermediate = 3 // 3xx
	ClassTransientNegative    = 4 // 4xx
	ClassPermanentNegative    = 5 // 5xx
)

// Reply codes a probe commonly meets (RFC 5321 §4.2.2, §4.2.3).
const (
	ReplyServiceReady   ReplyCode = 220
	ReplyServiceClosing ReplyCode = 221
	ReplyOK             ReplyCode = 250
	ReplyStartMailInput ReplyCode = 354

	ReplyServiceNotAvailable ReplyCode = 421
	ReplyMailboxBusy         ReplyCode = 450
	ReplyLocalError          ReplyCode = 451
	ReplyInsufficientStorage ReplyCode = 452

	ReplySyntaxError       ReplyCode = 500
	ReplySyntaxParamError  ReplyCode = 501
	ReplyCommandNotImpl    ReplyCode = 502
	ReplyBadSequence       ReplyCode = 503
	ReplyMailboxNotFound   ReplyCode = 550
	ReplyExceededStorage   ReplyCode = 552
	ReplyMailboxNameError  ReplyCode = 553
	ReplyTransactionFailed ReplyCode = 554
)

// Class returns the reply class (first digit): 2, 3, 4, or 5.
func (c ReplyCode) Class() int {
	return int(c) / 100
}

// IsPositive returns true for 2xx and 3xx reply codes.
func (c ReplyCode) IsPositive() bool {
	cl := c.Class()
	return cl == ClassPositiveCompletion || cl == ClassPositiveIntermediate
}

// IsTransient returns true for 4xx reply codes (temporary failures).
func (c ReplyCode) IsTransient() bool {
	return c.Class() == ClassTransientNegative
}

// IsPermanent returns true for 5xx reply codes (permanent failures).
func (c ReplyCode) IsPermanent() bool {
	return c.Class() == ClassPermanentNegative
}

// Bounds of a well-formed reply code. The first digit of an SMTP reply is
// 2 through 5; 1yz is reserved but still parses as a code.
const (
	minReplyCode = 100
	maxReplyCode = 599
)

// ParseReplyCode extracts the reply code from a raw reply line: the first
// three characters of the text before the first space, read as an unsigned
// decimal. It reports false when the line is too short, contains a non-digit
// in those positions, or the code lies outside 100-599.
func ParseReplyCode(line string) (ReplyCode, bool) {
	head, _, _ := strings.Cut(line, " ")
	if len(head) < 3 {
		return 0, false
	}
	n := 0
	for i := 0; i < 3; i++ {
		c := head[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if n < minReplyCode || n > maxReplyCode {
		return 0, false
	}
	return ReplyCode(n), true
}
