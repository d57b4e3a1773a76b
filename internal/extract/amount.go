package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reAmountChars     = regexp.MustCompile(`[^0-9.,\-]`)
	reTrailingDecimal = regexp.MustCompile(`([.,])(\d{2})$`)
	reAmountToken     = regexp.MustCompile(`-?\d[\d.,]*`)
)

// ParseAmount normalizes a numeric-looking token into a monetary value.
// The mark (. or ,) in front of a trailing two-digit group is the decimal
// separator; the other mark is treated as thousands grouping and dropped.
// Tokens without a two-digit decimal group ("1.234", "42") have no value.
func ParseAmount(token string) (float64, bool) {
	s := reAmountChars.ReplaceAllString(token, "")
	m := reTrailingDecimal.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	dec := m[1]
	thousands := ","
	if dec == "," {
		thousands = "."
	}
	s = strings.ReplaceAll(s, thousands, "")
	if dec == "," {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// amountsIn returns every parseable amount on line, left to right.
// Tokens directly followed by '%' are rates, not amounts.
func amountsIn(line string) []float64 {
	var out []float64
	for _, loc := range reAmountToken.FindAllStringIndex(line, -1) {
		if loc[1] < len(line) && line[loc[1]] == '%' {
			continue
		}
		tok := strings.TrimRight(line[loc[0]:loc[1]], ".,")
		if v, ok := ParseAmount(tok); ok {
			out = append(out, v)
		}
	}
	return out
}

// firstAmount returns the leftmost amount on line.
func firstAmount(line string) (float64, bool) {
	if a := amountsIn(line); len(a) > 0 {
		return a[0], true
	}
	return 0, false
}

// parseLooseNumber parses plain numbers such as rates ("6", "7,5").
func parseLooseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
