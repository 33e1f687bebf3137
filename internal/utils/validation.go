package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// relativePattern matches relative date formats like +7d, -3d, +2w, +1m
var relativePattern = regexp.MustCompile(`^([+-])(\d+)([dwm])$`)

// parseRelativeDate parses relative date strings like "today", "tomorrow",
// "yesterday", "+7d", "-3d", "+2w", "+1m".
// Returns nil if the string is not a relative date format.
func parseRelativeDate(dateStr string) *time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	lower := strings.ToLower(dateStr)

	switch lower {
	case "today":
		return &today
	case "tomorrow":
		t := today.AddDate(0, 0, 1)
		return &t
	case "yesterday":
		t := today.AddDate(0, 0, -1)
		return &t
	}

	matches := relativePattern.FindStringSubmatch(lower)
	if matches == nil {
		return nil
	}

	num, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil
	}
	if matches[1] == "-" {
		num = -num
	}

	var result time.Time
	switch matches[3] {
	case "d":
		result = today.AddDate(0, 0, num)
	case "w":
		result = today.AddDate(0, 0, num*7)
	case "m":
		result = today.AddDate(0, num, 0)
	}

	return &result
}

// ParseDateFlag normalizes a date flag to the YYYY-MM-DD form tasks store.
// Supported relative formats: today, tomorrow, yesterday, +Nd, -Nd, +Nw, +Nm.
// Supported absolute format: YYYY-MM-DD.
// Returns "" for an empty string (clear date).
func ParseDateFlag(dateStr string) (string, error) {
	if dateStr == "" {
		return "", nil
	}

	if t := parseRelativeDate(dateStr); t != nil {
		return t.Format("2006-01-02"), nil
	}

	parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return "", ErrInvalidDate(dateStr)
	}

	return parsed.Format("2006-01-02"), nil
}

// ParseTimeFlag normalizes a time flag to the 24-hour HH:MM form tasks store.
// Returns "" for an empty string (clear time).
func ParseTimeFlag(timeStr string) (string, error) {
	if timeStr == "" {
		return "", nil
	}

	parsed, err := time.Parse("15:04", timeStr)
	if err != nil {
		return "", ErrInvalidTime(timeStr)
	}

	return parsed.Format("15:04"), nil
}
