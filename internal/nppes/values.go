package nppes

import (
	"strings"
	"time"
)

// DateLayout is the feed's fixed date format (MM/DD/YYYY).
const DateLayout = "01/02/2006"

// DefaultIdentifierType is stored when an identifier slot carries a value but
// no type code. Code 01 is "Other" in the NPPES code set.
const DefaultIdentifierType = "01"

// ParseDate parses a feed date. Blank or malformed input yields nil.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		// Tolerate missing zero padding, e.g. 1/2/2006.
		t, err = time.Parse("1/2/2006", raw)
		if err != nil {
			return nil
		}
	}
	return &t
}

// ParseGender maps the feed sex code onto M, F or X. Anything else is "".
func ParseGender(raw string) string {
	switch g := strings.ToUpper(strings.TrimSpace(raw)); g {
	case "M", "F", "X":
		return g
	default:
		return ""
	}
}

// ParseFlag reads a Y/N switch. Only "Y" is true.
func ParseFlag(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), "Y")
}

// Nullable returns nil for a blank string so it is stored as SQL NULL.
func Nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
