package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// In-body date shapes seen across bank templates: "on 03Dec25",
// "on date 03Dec25", "on 03-12-25", "on 03/12/2025", "on 03-Dec-25",
// "dated 03-12-25". Months are numeric or 3-letter abbreviations,
// two-digit years are assumed in the 2000s.
var (
	monthNameDateRe = regexp.MustCompile(`(?i)\bon\s+(?:date\s+)?(\d{1,2})\s*([A-Za-z]{3})\s*(\d{2}|\d{4})\b`)
	numericDateRe   = regexp.MustCompile(`(?i)\bon\s+(\d{1,2})[-/](\d{1,2}|[A-Za-z]{3})[-/](\d{2}|\d{4})\b`)
	datedDateRe     = regexp.MustCompile(`(?i)\bdated\s+(\d{1,2})[-/](\d{1,2}|[A-Za-z]{3})[-/](\d{2}|\d{4})\b`)
)

var monthAbbrevs = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Date scans the body for an explicit date substring. When none matches, or
// the matched substring does not form a real date, the message timestamp is
// returned. That fallback is the expected common case, not an error.
func Date(body string, ts time.Time) time.Time {
	for _, re := range []*regexp.Regexp{monthNameDateRe, numericDateRe, datedDateRe} {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if parsed, ok := buildDate(m[1], m[2], m[3]); ok {
			return parsed
		}
	}
	return ts
}

func buildDate(dayStr, monthStr, yearStr string) (time.Time, bool) {
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	var month time.Month
	if n, err := strconv.Atoi(monthStr); err == nil {
		if n < 1 || n > 12 {
			return time.Time{}, false
		}
		month = time.Month(n)
	} else {
		abbrev, ok := monthAbbrevs[strings.ToUpper(monthStr)]
		if !ok {
			return time.Time{}, false
		}
		month = abbrev
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}

	parsed := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject overflowed days like 31 Feb, which time.Date normalizes silently.
	if parsed.Day() != day || parsed.Month() != month {
		return time.Time{}, false
	}
	return parsed, true
}
