package extract

import (
	"regexp"
	"strings"
)

var (
	reSubtotal = regexp.MustCompile(`SUBTOTAL|SUB-TOTAL|SUBTOT`)
	reTax      = regexp.MustCompile(`\b(SALES TAX|SERVICE CHARGE|TAX|VAT|GST|IVA|LEVY|SURCHARGE|INCLUDED)\b`)
	rePercent  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
)

func isSubtotalLine(line string) bool {
	return reSubtotal.MatchString(strings.ToUpper(line))
}

func isTotalLine(line string) bool {
	return strings.Contains(strings.ToUpper(line), "TOTAL") && !isSubtotalLine(line)
}

func isSummaryLine(line string) bool {
	return isTotalLine(line) || isSubtotalLine(line)
}

func isTaxLine(line string) bool {
	return reTax.MatchString(strings.ToUpper(line))
}

// percentIn returns the first "N%" on line as a ratio (6% -> 0.06).
func percentIn(line string) (float64, bool) {
	m := rePercent.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, ok := parseLooseNumber(m[1])
	if !ok {
		return 0, false
	}
	return v / 100, true
}

// neighbours returns the indexes to inspect around i: the line itself, then next, then previous.
func neighbours(i, n int) []int {
	idx := []int{i}
	if i+1 < n {
		idx = append(idx, i+1)
	}
	if i-1 >= 0 {
		idx = append(idx, i-1)
	}
	return idx
}
