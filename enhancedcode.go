package emailcheck

import (
	"fmt"
	"strconv"
	"strings"
)

// EnhancedCode represents an enhanced mail system status code as defined in
// RFC 3463. Format is class.subject.detail (e.g., 2.1.0).
type EnhancedCode struct {
	Class   int // 2 = success, 4 = transient failure, 5 = permanent failure
	Subject int // Subject sub-code
	Detail  int // Detail sub-code
}

// Common enhanced status codes (RFC 3463, RFC 5248).
var (
	EnhancedCodeOK           = EnhancedCode{2, 0, 0} // Generic success
	EnhancedCodeOtherAddress = EnhancedCode{2, 1, 0} // Other address status (success)
	EnhancedCodeDestValid    = EnhancedCode{2, 1, 5} // Destination address valid

	EnhancedCodeBadDest         = EnhancedCode{5, 1, 1} // Bad destination mailbox address
	EnhancedCodeBadDestSyntax   = EnhancedCode{5, 1, 3} // Bad destination mailbox address syntax
	EnhancedCodeBadSenderSyntax = EnhancedCode{5, 1, 7} // Bad sender's mailbox address syntax

	EnhancedCodeMailboxFull = EnhancedCode{5, 2, 2} // Mailbox full

	EnhancedCodeOtherNetwork   = EnhancedCode{4, 4, 0} // Other network/routing status (transient)
	EnhancedCodeTempCongestion = EnhancedCode{4, 4, 5} // System congestion (transient)

	EnhancedCodeInvalidCommand = EnhancedCode{5, 5, 1} // Invalid command
	EnhancedCodeSyntaxError    = EnhancedCode{5, 5, 2} // Syntax error

	EnhancedCodeTempPolicy = EnhancedCode{4, 7, 0} // Other security/policy status (transient)
	EnhancedCodePolicy     = EnhancedCode{5, 7, 1} // Delivery not authorized, message refused
)

// String returns the enhanced code formatted as "X.Y.Z" (e.g., "2.1.0").
func (e EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Class, e.Subject, e.Detail)
}

// IsZero reports whether the enhanced code is the zero value.
func (e EnhancedCode) IsZero() bool {
	return e.Class == 0 && e.Subject == 0 && e.Detail == 0
}

// ParseEnhancedCode attempts to parse an enhanced status code from the
// beginning of reply text (the part after the three-digit reply code).
// It returns the code and remaining text, or a zero code and the original
// text if no enhanced code is found.
func ParseEnhancedCode(text string) (EnhancedCode, string) {
	code, rest, _ := strings.Cut(text, " ")

	segments := strings.Split(code, ".")
	if len(segments) != 3 {
		return EnhancedCode{}, text
	}

	c, err1 := strconv.Atoi(segments[0])
	s, err2 := strconv.Atoi(segments[1])
	d, err3 := strconv.Atoi(segments[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return EnhancedCode{}, text
	}
	if c < 2 || c > 5 {
		return EnhancedCode{}, text
	}

	return EnhancedCode{Class: c, Subject: s, Detail: d}, rest
}
