package core

// convert.go provides type conversion functions for raw spreadsheet cells.
//
// These functions handle the messy reality of hand-maintained extracts:
//   - Multiple date formats (ISO, slash-delimited, 2024年01月02日, Excel serials)
//   - Thousand separators and currency symbols in numbers
//   - Various boolean representations (是/否, yes/no, 1/0)
//   - Excel formula prefixes (="value")
//   - Blank-like tokens exported by other tools (NULL, None, NaN)
//
// All Parse* functions report ok=false for unparsable input instead of failing.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// blankTokens are cell values treated as an explicit null.
var blankTokens = map[string]bool{
	"":     true,
	"NULL": true,
	"null": true,
	"None": true,
	"NaN":  true,
	"nan":  true,
	"#N/A": true,
	"N/A":  true,
	"n/a":  true,
}

// dateLayouts are tried in order; the first successful match wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-1-2",
	"2006/01/02",
	"2006/1/2",
	"2006/01/02 15:04:05",
	"2006/1/2 15:04:05",
	"2006/1/2 15:04",
	"2006.01.02",
	"2006.1.2",
	"2006年01月02日",
	"2006年1月2日",
	"20060102",
}

// periodLayouts cover year-month values without a day.
var periodLayouts = []string{
	"2006-01",
	"2006-1",
	"2006/01",
	"2006/1",
	"2006.01",
	"2006年01月",
	"2006年1月",
	"200601",
}

// Excel stores dates as day counts; anything in this range that is not
// matched by a layout is treated as a serial date. The lower bound (1927)
// keeps bare years like "2024" from reading as serials.
const (
	minExcelSerial = 10000
	maxExcelSerial = 2958465 // 9999-12-31
)

// CleanCell removes common spreadsheet artifacts from a cell value:
// - Trims whitespace (including full-width spaces)
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "　", " "))

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// NormalizeCell cleans a raw cell and maps blank-like tokens to nil.
func NormalizeCell(s string) any {
	s = CleanCell(s)
	if blankTokens[s] {
		return nil
	}
	return s
}

// IsBlank reports whether a value counts as absent for merge purposes.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return blankTokens[strings.TrimSpace(t)]
	case float64:
		return math.IsNaN(t)
	case []SubRecord:
		return len(t) == 0
	default:
		return false
	}
}

// ParseDate parses a date using the accepted layouts, then Excel serials.
func ParseDate(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= minExcelSerial && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return truncateDay(t), true
		}
	}

	return time.Time{}, false
}

// ParsePeriod parses a year-month (or full date) and returns the first day
// of that month.
func ParsePeriod(s string) (time.Time, bool) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return monthStart(t), true
		}
	}

	if t, ok := ParseDate(s); ok {
		return monthStart(t), true
	}
	return time.Time{}, false
}

// ParseNumber converts a string to float64.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative).
func ParseNumber(s string) (float64, bool) {
	s = CleanCell(s)
	if s == "" {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer(
		",", "",
		"，", "",
		"$", "",
		"¥", "",
		"￥", "",
		"元", "",
		"€", "",
		"£", "",
	).Replace(s)
	s = strings.TrimSpace(s)

	if isNegative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseBool accepts various representations: 是/否, 已完成/未完成,
// true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	s = strings.ToLower(CleanCell(s))

	switch s {
	case "true", "t", "yes", "y", "1", "是", "已完成", "完成", "√":
		return true, true
	case "false", "f", "no", "n", "0", "否", "未完成", "×":
		return false, true
	default:
		return false, false
	}
}

// PeriodOf extracts the YYYY-MM period of a date-like value.
// Strings contribute their first seven characters.
func PeriodOf(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01")
	case string:
		s := strings.TrimSpace(t)
		if p, ok := ParsePeriod(s); ok {
			return p.Format("2006-01")
		}
		if len(s) >= 7 {
			return s[:7]
		}
		return s
	default:
		return ""
	}
}

// ExpectedPeriod returns the year-month of the calendar month preceding now.
func ExpectedPeriod(now time.Time) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return first.AddDate(0, -1, 0).Format("2006-01")
}

// round2 rounds to two decimal places.
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// toFloat reads a numeric record value; blanks and unparsable text are 0.
func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case string:
		f, _ := ParseNumber(t)
		return f
	default:
		return 0
	}
}
