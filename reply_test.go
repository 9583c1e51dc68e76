package emailcheck

import "testing"

func TestReplyCodePredicates(t *testing.T) {
	tests := []struct {
		code      ReplyCode
		class     int
		positive  bool
		transient bool
		permanent bool
	}{
		{ReplyServiceReady, 2, true, false, false},
		{ReplyOK, 2, true, false, false},
		{ReplyStartMailInput, 3, true, false, false},
		{ReplyServiceNotAvailable, 4, false, true, false},
		{ReplyMailboxBusy, 4, false, true, false},
		{ReplyLocalError, 4, false, true, false},
		{ReplySyntaxError, 5, false, false, true},
		{ReplyMailboxNotFound, 5, false, false, true},
		{ReplyTransactionFailed, 5, false, false, true},
	}
	for _, tt := range tests {
		if got := tt.code.Class(); got != tt.class {
			t.Errorf("ReplyCode(%d).Class() = %d, want %d", tt.code, got, tt.class)
		}
		if got := tt.code.IsPositive(); got != tt.positive {
			t.Errorf("ReplyCode(%d).IsPositive() = %v, want %v", tt.code, got, tt.positive)
		}
		if got := tt.code.IsTransient(); got != tt.transient {
			t.Errorf("ReplyCode(%d).IsTransient() = %v, want %v", tt.code, got, tt.transient)
		}
		if got := tt.code.IsPermanent(); got != tt.permanent {
			t.Errorf("ReplyCode(%d).IsPermanent() = %v, want %v", tt.code, got, tt.permanent)
		}
	}
}
