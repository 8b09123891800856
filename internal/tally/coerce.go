// =============================================================================
// Tally Import - Field Coercion
// =============================================================================
//
// Pure functions that turn raw leaf values into typed values. None of them
// panic or return errors: malformed input degrades to the documented
// "absent" value of each function.
//
//   Text      -> trimmed string, "" when absent
//   Number    -> decimal, ok=false when absent or non-numeric
//   Quantity  -> decimal, 0 when unparseable
//   Date      -> "YYYY-MM-DD", "" when unparseable
//
// =============================================================================

package tally

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayout is the canonical output format.
const dateLayout = "2006-01-02"

var (
	// numericPrefix matches the leading number of a value such as
	// "100.00/Nos" or "-2500.00".
	numericPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

	compactDate = regexp.MustCompile(`^\d{8}$`)
	dashedDate  = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)
	slashedDate = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// fallbackDateLayouts are tried, in order, when none of the Tally specific
// shapes match.
var fallbackDateLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2-Jan-2006",
	"2-Jan-06",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006/01/02",
}

// Text unwraps a leaf value and trims it.
func Text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case *Node:
		if s, ok := t.Get(TextKey).(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Number parses a monetary or numeric value. Thousands separators are
// dropped and any trailing unit text is ignored.
func Number(v any) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(Text(v), ",", ""))
	if cleaned == "" {
		return decimal.Zero, false
	}
	m := numericPrefix.FindString(cleaned)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Quantity parses the leading token of a quantity such as "10 Nos".
func Quantity(v any) decimal.Decimal {
	fields := strings.Fields(Text(v))
	if len(fields) == 0 {
		return decimal.Zero
	}
	q, ok := Number(fields[0])
	if !ok {
		return decimal.Zero
	}
	return q
}

// Date normalizes a date to YYYY-MM-DD.
//
// Shapes, in priority order: YYYYMMDD, DD-MM-YYYY, DD/MM/YYYY, then a fixed
// list of general layouts. Two-part numeric dates are always day first, the
// convention of the exporting ERP. Dates that do not exist on the calendar
// return "".
func Date(v any) string {
	raw := Text(v)
	if raw == "" {
		return ""
	}

	var layouts []string
	switch {
	case compactDate.MatchString(raw):
		layouts = []string{"20060102"}
	case dashedDate.MatchString(raw):
		layouts = []string{"02-01-2006"}
	case slashedDate.MatchString(raw):
		layouts = []string{"02/01/2006"}
	default:
		layouts = fallbackDateLayouts
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout)
		}
	}
	return ""
}

// firstText returns the first non-empty Text among the given keys of node.
func firstText(node any, keys ...string) string {
	for _, k := range keys {
		if s := Text(field(node, k)); s != "" {
			return s
		}
	}
	return ""
}

// isYes reports whether a flag field is "yes" in any case.
func isYes(node any, key string) bool {
	return strings.EqualFold(Text(field(node, key)), "yes")
}
