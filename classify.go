package emailcheck

// Verdict is the classification of a single reply line.
type Verdict int

const (
	// VerdictError means the reply could not be parsed: it was empty, too
	// short, or did not start with a valid three-digit code.
	VerdictError Verdict = iota
	// VerdictContinue means a 2xx reply; the transaction may proceed.
	VerdictContinue
	// VerdictNegative means a well-formed reply outside 2xx. The caller
	// decides what it means at the current step.
	VerdictNegative
)

func (v Verdict) String() string {
	switch v {
	case VerdictContinue:
		return "continue"
	case VerdictNegative:
		return "negative"
	default:
		return "error"
	}
}

// Classify maps a raw reply line to a Verdict. Intermediate 3xx replies are
// negative: a probe never issues a command that expects one.
func Classify(line string) Verdict {
	code, ok := ParseReplyCode(line)
	if !ok {
		return VerdictError
	}
	if code.Class() == ClassPositiveCompletion {
		return VerdictContinue
	}
	return VerdictNegative
}
