package extract

// Total finds the receipt total.
//
// TOTAL lines are tried top-down; the amount is taken from the labelled line or,
// failing that, the line right after it. Subtotal lines are never totals but
// their amount is kept as a lower bound for the fallback, which picks the
// largest amount on the receipt.
func Total(lines []string) (float64, bool) {
	var hint *float64
	for i, line := range lines {
		if isSubtotalLine(line) {
			if hint == nil {
				if v, ok := firstAmount(line); ok {
					hint = &v
				}
			}
			continue
		}
		if !isTotalLine(line) {
			continue
		}
		if v, ok := labelledAmount(lines, i); ok {
			return v, true
		}
	}
	return largestAmount(lines, hint)
}

// labelledAmount reads the amount for the label on lines[i].
func labelledAmount(lines []string, i int) (float64, bool) {
	if v, ok := firstAmount(lines[i]); ok {
		return v, true
	}
	if i+1 < len(lines) {
		return firstAmount(lines[i+1])
	}
	return 0, false
}

// largestAmount is the numeric fallback. With a subtotal hint it prefers the
// largest amount strictly above the hint, since a total exceeds its subtotal.
func largestAmount(lines []string, hint *float64) (float64, bool) {
	var (
		best, above       float64
		haveBest, haveAbv bool
	)
	for _, line := range lines {
		for _, v := range amountsIn(line) {
			if !haveBest || v > best {
				best, haveBest = v, true
			}
			if hint != nil && v > *hint && (!haveAbv || v > above) {
				above, haveAbv = v, true
			}
		}
	}
	if haveAbv {
		return above, true
	}
	return best, haveBest
}
