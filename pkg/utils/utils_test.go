package utils

import (
	"testing"
)

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		length   int
		expected string
	}{
		{"hello world", 5, "he..."},
		{"short", 10, "short"},
		{"exact", 5, "exact"},
		{"", 5, ""},
		{"abc", 2, "ab"},
		{"abc", 3, "abc"},
	}

	for _, tt := range tests {
		result := TruncateString(tt.input, tt.length)
		if result != tt.expected {
			t.Errorf("TruncateString(%q, %d) = %q; want %q", tt.input, tt.length, result, tt.expected)
		}
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"123", "123"},
		{"1234", "1,234"},
		{"123456", "123,456"},
		{"1234567", "1,234,567"},
		{"1234.56", "1,234.56"},
		{"-1234", "-1,234"},
		{"", ""},
	}

	for _, tt := range tests {
		result := AddCommas(tt.input)
		if result != tt.expected {
			t.Errorf("AddCommas(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestReduceAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B", "0xAb58***eC9B"},
		{"f1abjxfbp274xpdqcpuaykwkfb43omjotacm2p3za", "f1ab***p3za"},
		{"short", "short"},
	}

	for _, tt := range tests {
		result := ReduceAddress(tt.input)
		if result != tt.expected {
			t.Errorf("ReduceAddress(%q) = %q; want %q", tt.input, result, tt.expected)
		}
	}
}

func TestEqualAddress(t *testing.T) {
	if !EqualAddress("0xabc", "0xABC") {
		t.Error("expected hex addresses to compare case-insensitively")
	}
	if EqualAddress("AbC", "abc") {
		t.Error("expected base58 addresses to compare case-sensitively")
	}
}
