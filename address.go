package emailcheck

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// ErrInvalidAddress is wrapped by every error returned from [ParseAddress].
var ErrInvalidAddress = errors.New("emailcheck: invalid address")

// RFC 5321 §4.5.3.1 size limits, in octets.
const (
	maxLocalPartLen = 64
	maxDomainLen    = 255
	maxLabelLen     = 63
)

// Address is a syntactically valid email address accepted for probing.
// Its domain is held in ASCII (A-label) form, so String is safe to place in
// an SMTP command line. The zero value is not a valid address; use
// [ParseAddress].
type Address struct {
	mbox Mailbox
}

// ParseAddress validates s and returns it as an Address. Beyond the
// RFC 5321 mailbox rules of [ParseMailbox], the domain must be a dotted DNS
// name: address literals and single-label hosts cannot be MX-resolved.
// Internationalized domains are converted to their ASCII form with IDNA
// lookup rules. Surrounding whitespace and angle brackets are rejected
// rather than trimmed.
func ParseAddress(s string) (Address, error) {
	m, err := ParseMailbox(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	if strings.HasPrefix(m.Domain, "[") {
		return Address{}, fmt.Errorf("%w: address literal domain %s", ErrInvalidAddress, m.Domain)
	}
	if !strings.Contains(m.Domain, ".") {
		return Address{}, fmt.Errorf("%w: domain %q has no top-level label", ErrInvalidAddress, m.Domain)
	}
	if !isASCII(m.Domain) {
		ascii, err := idna.Lookup.ToASCII(m.Domain)
		if err != nil {
			return Address{}, fmt.Errorf("%w: domain %q: %w", ErrInvalidAddress, m.Domain, err)
		}
		// The A-label form can outgrow the length limits the U-label passed.
		if err := checkDomain(ascii); err != nil {
			return Address{}, fmt.Errorf("%w: domain %q: %w", ErrInvalidAddress, ascii, err)
		}
		m.Domain = ascii
	}
	return Address{mbox: m}, nil
}

// LocalPart returns the part of the address before the last @.
func (a Address) LocalPart() string { return a.mbox.LocalPart }

// Domain returns the ASCII form of the part after the last @.
func (a Address) Domain() string { return a.mbox.Domain }

// Mailbox returns the address as a Mailbox.
func (a Address) Mailbox() Mailbox { return a.mbox }

// String returns the address as "local-part@domain" with an ASCII domain.
func (a Address) String() string { return a.mbox.String() }

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool { return a.mbox.IsZero() }

// Mailbox is an address split at its last @ (RFC 5321 §4.1.2). A zero
// Mailbox stands for the null path <>.
type Mailbox struct {
	LocalPart string
	Domain    string
}

// String returns "local-part@domain", or "" for the zero Mailbox.
func (m Mailbox) String() string {
	if m.IsZero() {
		return ""
	}
	return m.LocalPart + "@" + m.Domain
}

// IsZero reports whether the mailbox is empty.
func (m Mailbox) IsZero() bool {
	return m.LocalPart == "" && m.Domain == ""
}

// ParseMailbox parses "local-part@domain" without angle brackets. The
// local-part is a dot-atom or a quoted string of printable ASCII; the domain
// is a hostname or an address literal. No accepted mailbox contains a
// control character, so its String can be written on one command line.
func ParseMailbox(s string) (Mailbox, error) {
	if s == "" {
		return Mailbox{}, errors.New("emailcheck: empty address")
	}
	at := strings.LastIndexByte(s, '@')
	switch {
	case at < 0:
		return Mailbox{}, errors.New("emailcheck: missing @ in address")
	case at == 0:
		return Mailbox{}, errors.New("emailcheck: empty local-part")
	case at == len(s)-1:
		return Mailbox{}, errors.New("emailcheck: empty domain")
	}

	m := Mailbox{LocalPart: s[:at], Domain: s[at+1:]}
	if err := checkLocalPart(m.LocalPart); err != nil {
		return Mailbox{}, err
	}
	if err := checkDomain(m.Domain); err != nil {
		return Mailbox{}, err
	}
	return m, nil
}

func checkLocalPart(local string) error {
	if len(local) > maxLocalPartLen {
		return errors.New("emailcheck: local-part too long")
	}
	if len(local) >= 2 && local[0] == '"' && local[len(local)-1] == '"' {
		return checkQuotedString(local[1 : len(local)-1])
	}
	if local[0] == '.' || local[len(local)-1] == '.' {
		return errors.New("emailcheck: local-part cannot start or end with a dot")
	}
	if strings.Contains(local, "..") {
		return errors.New("emailcheck: local-part cannot contain consecutive dots")
	}
	for i := 0; i < len(local); i++ {
		if c := local[i]; c != '.' && !isAtext(c) {
			return fmt.Errorf("emailcheck: invalid character %q in local-part", c)
		}
	}
	return nil
}

// checkQuotedString checks the content between the quotes of a quoted
// local-part: qtextSMTP and quoted-pairSMTP only, so every byte is in the
// printable range 32-126.
func checkQuotedString(s string) error {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isPrintable(c) {
			return fmt.Errorf("emailcheck: invalid character %q in quoted local-part", c)
		}
		switch c {
		case '\\':
			i++
			if i >= len(s) {
				return errors.New("emailcheck: trailing backslash in quoted local-part")
			}
			if !isPrintable(s[i]) {
				return fmt.Errorf("emailcheck: invalid escaped character %q in quoted local-part", s[i])
			}
		case '"':
			return errors.New("emailcheck: unescaped quote in quoted local-part")
		}
	}
	return nil
}

// checkDomain accepts a hostname or an address literal ("[...]"). Hostname
// labels may carry UTF-8 for internationalized names; ParseAddress narrows
// those to ASCII.
func checkDomain(domain string) error {
	if len(domain) > maxDomainLen {
		return errors.New("emailcheck: domain too long")
	}
	if domain[0] == '[' {
		return checkAddressLiteral(domain)
	}
	if !utf8.ValidString(domain) {
		return errors.New("emailcheck: invalid UTF-8 in domain")
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" {
			return errors.New("emailcheck: empty label in domain")
		}
		if len(label) > maxLabelLen {
			return errors.New("emailcheck: domain label too long")
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return errors.New("emailcheck: domain label cannot start or end with hyphen")
		}
		for _, r := range label {
			if r < utf8.RuneSelf && !isLetDig(byte(r)) && r != '-' {
				return fmt.Errorf("emailcheck: invalid character %q in domain", r)
			}
		}
	}
	return nil
}

// checkAddressLiteral checks the framing and dtext of "[...]". The literal
// is not parsed as an IP address.
func checkAddressLiteral(domain string) error {
	if len(domain) < 3 || domain[len(domain)-1] != ']' {
		return errors.New("emailcheck: unclosed address literal")
	}
	for i := 1; i < len(domain)-1; i++ {
		if c := domain[i]; c <= ' ' || c > '~' || c == '[' || c == ']' || c == '\\' {
			return fmt.Errorf("emailcheck: invalid character %q in address literal", c)
		}
	}
	return nil
}

func isLetDig(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// isAtext reports whether c is RFC 5322 atext.
func isAtext(c byte) bool {
	return isLetDig(c) || strings.IndexByte("!#$%&'*+-/=?^_`{|}~", c) >= 0
}

func isPrintable(c byte) bool { return c >= ' ' && c <= '~' }

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
