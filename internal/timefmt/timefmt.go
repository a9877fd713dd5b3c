// Package timefmt validates strftime-style date/time format strings and
// checks them against sample values.
package timefmt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

var (
	// ErrInvalidFormat wraps every grammar violation reported by Validate.
	ErrInvalidFormat = errors.New("invalid date format")

	// ErrNoGoLayout is returned by Layout for directives Go layouts cannot express.
	ErrNoGoLayout = errors.New("format has no Go layout equivalent")
)

// directives is the C89/POSIX/ISO 8601 strftime conversion set.
var directives = map[byte]string{
	'a': "abbreviated weekday", 'A': "weekday",
	'w': "weekday number", 'u': "ISO weekday number",
	'd': "day of month", 'e': "space padded day of month",
	'b': "abbreviated month", 'h': "abbreviated month", 'B': "month name",
	'm': "month number",
	'y': "two digit year", 'Y': "year", 'C': "century",
	'G': "ISO year", 'g': "two digit ISO year",
	'H': "hour (24h)", 'I': "hour (12h)", 'p': "AM/PM",
	'M': "minute", 'S': "second", 'f': "microsecond",
	'z': "UTC offset", 'Z': "time zone name",
	'j': "day of year",
	'U': "week of year (Sunday)", 'W': "week of year (Monday)", 'V': "ISO week",
	'c': "locale date and time", 'x': "locale date", 'X': "locale time",
	'D': "%m/%d/%y", 'F': "%Y-%m-%d", 'T': "%H:%M:%S", 'R': "%H:%M",
	's': "seconds since epoch",
	'n': "newline", 't': "tab", '%': "literal percent",
}

// Validate checks that format is a single-line strftime pattern containing
// at least one conversion and no unknown ones. A '-' flag (no padding) is
// accepted before a conversion character.
func Validate(format string) error {
	if strings.TrimSpace(format) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidFormat)
	}
	if strings.ContainsAny(format, "\r\n") {
		return fmt.Errorf("%w: %q spans multiple lines", ErrInvalidFormat, format)
	}

	conversions := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i < len(format) && format[i] == '-' {
			i++
		}
		if i >= len(format) {
			return fmt.Errorf("%w: %q ends with a bare %%", ErrInvalidFormat, format)
		}
		if _, ok := directives[format[i]]; !ok {
			return fmt.Errorf("%w: %q has unknown directive %%%c", ErrInvalidFormat, format, format[i])
		}
		if format[i] != '%' {
			conversions++
		}
	}
	if conversions == 0 {
		return fmt.Errorf("%w: %q has no date/time directive", ErrInvalidFormat, format)
	}
	return nil
}

// Layout converts a valid strftime pattern into a Go time layout.
func Layout(format string) (string, error) {
	if err := Validate(format); err != nil {
		return "", err
	}
	layout, err := strftime.Layout(strings.ReplaceAll(format, "%-", "%"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoGoLayout, err)
	}
	return layout, nil
}

// Example renders a reference instant with format, for prompts and logs.
func Example(format string) string {
	return strftime.Format(format, time.Date(2024, time.January, 15, 13, 4, 5, 0, time.UTC))
}

// Mismatch is a sample value that does not parse with a format.
type Mismatch struct {
	Value string
	Err   error
}

// CheckSamples parses every non-empty sample with format and returns the
// values that fail. Formats without a Go layout are reported through the
// error and no samples are checked.
func CheckSamples(format string, samples []string) ([]Mismatch, error) {
	layout, err := Layout(format)
	if err != nil {
		return nil, err
	}
	var out []Mismatch
	for _, v := range samples {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, err := time.Parse(layout, v); err != nil {
			out = append(out, Mismatch{Value: v, Err: err})
		}
	}
	return out, nil
}

// StripQuotes removes quote characters (' " `) and whitespace from both
// ends, paired or not, e.g. "'%Y'" and "'%Y" both become "%Y". Quotes
// inside the pattern are kept.
func StripQuotes(s string) string {
	return strings.Trim(s, " \t\r\n'\"`")
}
