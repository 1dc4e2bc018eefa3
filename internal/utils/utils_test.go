package utils

import (
	"fmt"
	"testing"
	"time"
)

func TestConvertStrToInt(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0x1000", 0x1000},
		{"1000", 1000},
		{"deadbeef", 0xdeadbeef},
	}
	for _, tt := range tests {
		got, err := ConvertStrToInt(tt.in)
		if err != nil {
			t.Fatalf("ConvertStrToInt(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ConvertStrToInt(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	err := Retry(3, time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return fmt.Errorf("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("Retry() made %d calls, want 2", calls)
	}
}

func TestPad(t *testing.T) {
	if got := Pad(3); got != "   " {
		t.Errorf("Pad(3) = %q, want 3 spaces", got)
	}
	if got := Pad(0); got != " " {
		t.Errorf("Pad(0) = %q, want single space", got)
	}
}
