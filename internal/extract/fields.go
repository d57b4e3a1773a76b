package extract

// Fields are the raw candidates read from one document's OCR lines,
// before reconciliation.
type Fields struct {
	Vendor   string
	Total    *float64
	Subtotal *float64
	Tax      *float64
	TaxRate  *float64
	Date     *string // YYYY-MM-DD
}

// FromLines runs every extractor over lines.
func FromLines(lines []string) Fields {
	f := Fields{Vendor: Vendor(lines)}
	if v, ok := Total(lines); ok {
		f.Total = &v
	}
	if d, ok := Date(lines); ok {
		f.Date = &d
	}
	ts := TaxAndSubtotal(lines)
	f.Subtotal, f.Tax, f.TaxRate = ts.Subtotal, ts.Tax, ts.Rate
	return f
}
