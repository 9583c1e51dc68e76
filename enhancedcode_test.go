package emailcheck

import "testing"

func TestEnhancedCode_String(t *testing.T) {
	tests := []struct {
		code EnhancedCode
		want string
	}{
		{EnhancedCodeOK, "2.0.0"},
		{EnhancedCodeDestValid, "2.1.5"},
		{EnhancedCodeBadDest, "5.1.1"},
		{EnhancedCodeMailboxFull, "5.2.2"},
		{EnhancedCodeInvalidCommand, "5.5.1"},
		{EnhancedCode{4, 4, 5}, "4.4.5"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("EnhancedCode%v.String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestEnhancedCode_IsZero(t *testing.T) {
	if !((EnhancedCode{}).IsZero()) {
		t.Error("zero EnhancedCode should be zero")
	}
	if EnhancedCodeOK.IsZero() {
		t.Error("EnhancedCodeOK should not be zero")
	}
}

func TestParseEnhancedCode(t *testing.T) {
	tests := []struct {
		text     string
		want     EnhancedCode
		wantRest string
	}{
		{"2.0.0 OK", EnhancedCode{2, 0, 0}, "OK"},
		{"5.1.1 User unknown", EnhancedCode{5, 1, 1}, "User unknown"},
		{"4.4.5 System congestion", EnhancedCode{4, 4, 5}, "System congestion"},
		{"OK", EnhancedCode{}, "OK"},
		{"bad.code here", EnhancedCode{}, "bad.code here"},
		{"2.0.0", EnhancedCode{2, 0, 0}, ""},
		{"1.0.0 Invalid class", EnhancedCode{}, "1.0.0 Invalid class"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, rest := ParseEnhancedCode(tt.text)
			if got != tt.want {
				t.Errorf("ParseEnhancedCode(%q) code = %v, want %v", tt.text, got, tt.want)
			}
			if rest != tt.wantRest {
				t.Errorf("ParseEnhancedCode(%q) rest = %q, want %q", tt.text, rest, tt.wantRest)
			}
		})
	}
}
