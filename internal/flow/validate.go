package flow

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	datePattern    = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](20\d{2})$`)
	time12hPattern = regexp.MustCompile(`^(0?[1-9]|1[0-2]):([0-5][0-9])\s*(AM|PM)$`)
	time24hPattern = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):([0-5][0-9])$`)
)

// ValidDate reports whether s is a DD/MM/YYYY date (MM/DD/YYYY accepted as a
// fallback, '-' accepted as separator) that is not in the past.
func ValidDate(s string) bool {
	s = strings.TrimSpace(s)
	match := datePattern.FindStringSubmatch(s)
	if match == nil {
		return false
	}

	first, _ := strconv.Atoi(match[1])
	second, _ := strconv.Atoi(match[2])
	year, _ := strconv.Atoi(match[3])

	// Local midnight, not Truncate: truncation snaps to the UTC epoch grid
	// and misjudges today in any zone offset from UTC.
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)

	// DD/MM/YYYY first, then the MM/DD/YYYY fallback.
	if date, ok := buildDate(year, second, first); ok && !date.Before(today) {
		return true
	}
	if date, ok := buildDate(year, first, second); ok && !date.Before(today) {
		return true
	}
	return false
}

func buildDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	// time.Date normalizes overflow (e.g. Feb 31), so round-trip check it.
	if date.Day() != day || date.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return date, true
}

// ValidTime reports whether s is a 12-hour (with AM/PM) or 24-hour time.
func ValidTime(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return time12hPattern.MatchString(s) || time24hPattern.MatchString(s)
}
