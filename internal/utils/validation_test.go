package utils

import (
	"testing"
	"time"
)

// TestParseDateFlagAbsolute verifies absolute dates normalize unchanged
func TestParseDateFlagAbsolute(t *testing.T) {
	tests := []string{"2026-01-15", "2025-12-31", "2024-06-01"}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			result, err := ParseDateFlag(input)
			if err != nil {
				t.Fatalf("ParseDateFlag(%q) error = %v", input, err)
			}
			if result != input {
				t.Errorf("ParseDateFlag(%q) = %q, want %q", input, result, input)
			}
		})
	}
}

// TestParseDateFlagRelative verifies relative date keywords and offsets
func TestParseDateFlagRelative(t *testing.T) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	tests := []struct {
		input string
		want  time.Time
	}{
		{"today", today},
		{"Tomorrow", today.AddDate(0, 0, 1)},
		{"yesterday", today.AddDate(0, 0, -1)},
		{"+7d", today.AddDate(0, 0, 7)},
		{"-3d", today.AddDate(0, 0, -3)},
		{"+2w", today.AddDate(0, 0, 14)},
		{"+1m", today.AddDate(0, 1, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDateFlag(tt.input)
			if err != nil {
				t.Fatalf("ParseDateFlag(%q) error = %v", tt.input, err)
			}
			want := tt.want.Format("2006-01-02")
			if result != want {
				t.Errorf("ParseDateFlag(%q) = %q, want %q", tt.input, result, want)
			}
		})
	}
}

// TestParseDateFlagEmpty verifies empty input clears the date
func TestParseDateFlagEmpty(t *testing.T) {
	result, err := ParseDateFlag("")
	if err != nil {
		t.Fatalf("ParseDateFlag(\"\") error = %v", err)
	}
	if result != "" {
		t.Errorf("ParseDateFlag(\"\") = %q, want empty", result)
	}
}

// TestParseDateFlagInvalid verifies malformed dates are rejected
func TestParseDateFlagInvalid(t *testing.T) {
	invalid := []string{"not-a-date", "15-01-2026", "2026/01/15", "+d", "7d", "+5y"}

	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseDateFlag(input); err == nil {
				t.Errorf("ParseDateFlag(%q) = nil error, want error", input)
			}
		})
	}
}

// TestParseTimeFlag verifies HH:MM normalization and rejection
func TestParseTimeFlag(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"09:30", "09:30", false},
		{"23:59", "23:59", false},
		{"00:00", "00:00", false},
		{"", "", false},
		{"9am", "", true},
		{"25:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseTimeFlag(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTimeFlag(%q) = nil error, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeFlag(%q) error = %v", tt.input, err)
			}
			if result != tt.want {
				t.Errorf("ParseTimeFlag(%q) = %q, want %q", tt.input, result, tt.want)
			}
		})
	}
}
