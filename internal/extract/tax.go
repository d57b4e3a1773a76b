package extract

// TaxEntry is one tax line's contribution.
type TaxEntry struct {
	Line   int
	Amount float64
	Rate   *float64
}

// TaxSummary is the tax/subtotal view of a receipt.
type TaxSummary struct {
	Subtotal *float64
	Tax      *float64
	Rate     *float64
	Entries  []TaxEntry
}

// Subtotal returns the amount on the first subtotal line that carries one.
func Subtotal(lines []string) (float64, bool) {
	for _, line := range lines {
		if !isSubtotalLine(line) {
			continue
		}
		if v, ok := firstAmount(line); ok {
			return v, true
		}
	}
	return 0, false
}

// TaxAndSubtotal scans tax-keyword lines and their neighbours.
func TaxAndSubtotal(lines []string) TaxSummary {
	var sum TaxSummary
	if v, ok := Subtotal(lines); ok {
		sum.Subtotal = &v
	}

	used := make(map[int]bool)
	var rateOnly *float64
	for i, line := range lines {
		if !isTaxLine(line) || isSubtotalLine(line) {
			continue
		}
		entry, ok := taxEntryAt(lines, i, used)
		if !ok {
			if rateOnly == nil {
				rateOnly = entry.Rate
			}
			continue
		}
		sum.Entries = append(sum.Entries, entry)
	}
	if len(sum.Entries) == 0 {
		sum.Rate = rateOnly
		return sum
	}

	var total float64
	for _, e := range sum.Entries {
		total += e.Amount
		if sum.Rate == nil && e.Rate != nil {
			r := *e.Rate
			sum.Rate = &r
		}
	}
	sum.Tax = &total
	if sum.Rate == nil && sum.Subtotal != nil && *sum.Subtotal > 0 {
		r := total / *sum.Subtotal
		sum.Rate = &r
	}
	return sum
}

// taxEntryAt looks for an amount and, independently, a percentage on line i
// or its neighbours. The nearest line carrying an amount decides; if another
// tax line already counted that amount the entry has none. Neighbouring
// total and subtotal lines never lend their amount. ok is false when no
// amount was found; entry.Rate may still be set.
func taxEntryAt(lines []string, i int, used map[int]bool) (entry TaxEntry, ok bool) {
	entry = TaxEntry{Line: -1}
	found := false
	for _, j := range neighbours(i, len(lines)) {
		if !found && (j == i || !isSummaryLine(lines[j])) {
			if v, ok := firstAmount(lines[j]); ok {
				found = true
				if !used[j] {
					entry.Line, entry.Amount = j, v
				}
			}
		}
		if entry.Rate == nil {
			if r, ok := percentIn(lines[j]); ok {
				entry.Rate = &r
			}
		}
	}
	if entry.Line < 0 {
		return entry, false
	}
	used[entry.Line] = true
	return entry, true
}
