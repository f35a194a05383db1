package utils

import (
	"strconv"
	"strings"
	"time"
)

var unitMap = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseStringTime parses config durations such as "10s", "20M", "48h" or "2d".
// Anything else is handed to time.ParseDuration. Empty or invalid input
// yields fallback.
func ParseStringTime(timeString string, fallback time.Duration) time.Duration {
	timeString = strings.ToLower(strings.TrimSpace(timeString))
	if timeString == "" {
		return fallback
	}

	unit, ok := unitMap[timeString[len(timeString)-1]]
	if ok {
		if number, err := strconv.Atoi(timeString[:len(timeString)-1]); err == nil && number >= 0 {
			return time.Duration(number) * unit
		}
	}

	duration, err := time.ParseDuration(timeString)
	if err != nil || duration < 0 {
		return fallback
	}
	return duration
}
