package emailcheck

import "fmt"

// Status is the terminal outcome of a single address check.
type Status int

const (
	// Invalid means the address failed syntax validation. No network
	// activity was performed.
	Invalid Status = iota
	// Error covers every failure that prevented a verdict: malformed or
	// missing replies, timeouts, refused connections, DNS failures and
	// unexpected internal errors.
	Error
	// NoMxRecords means the domain has no mail exchanger.
	NoMxRecords
	// Exists means the server accepted RCPT TO.
	Exists
	// NotExists means the server rejected RCPT TO.
	NotExists
)

var statusNames = [...]string{
	Invalid:     "INVALID",
	Error:       "ERROR",
	NoMxRecords: "NO_MX_RECORDS",
	Exists:      "EXIST",
	NotExists:   "NOT_EXIST",
}

// String returns the upper-case wire name of the status (e.g., "NOT_EXIST").
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("emailcheck: unknown status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("emailcheck: unknown status %q", text)
}

// SafeToSkip reports whether the status is a safe reason not to send mail
// to the address. Error and Exists are not: both require an actual delivery
// attempt to be sure.
func (s Status) SafeToSkip() bool {
	switch s {
	case NotExists, NoMxRecords, Invalid:
		return true
	}
	return false
}
