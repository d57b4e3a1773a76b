package extract

import (
	"math"
	"testing"
)

var superstoreReceipt = []string{
	"SUPERSTORE MART INC.",
	"Subtotal 12.00",
	"Tax 6% 0.72",
	"Total 12.72",
}

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}

func TestVendor(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
	}{
		{"suffixes stripped", superstoreReceipt, "Mart"},
		{"skips blank lines", []string{"", "   ", "walmart supercenter", "Total 1.00"}, "Walmart"},
		{"hyphens collapsed", []string{"BEST-BUY STORE #12"}, "Best Buy #12"},
		{"numeric header skipped", []string{"12/03/2024", "corner   cafe"}, "Corner Cafe"},
		{"noise-only line skipped", []string{"STORE", "Joe's Deli LLC."}, "Joe's Deli"},
		{"empty", nil, UnknownVendor},
		{"only first five non-empty lines", []string{"1", "2", "3", "4", "5", "Late Name"}, UnknownVendor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Vendor(tc.lines); got != tc.want {
				t.Errorf("Vendor() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTotal(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  float64
		ok    bool
	}{
		{"labelled", superstoreReceipt, 12.72, true},
		{"first total wins", []string{"TOTAL 10.00", "CASH 20.00", "TOTAL 10.05"}, 10.00, true},
		{"amount on next line", []string{"TOTAL", "$ 25.40", "CASH 30.00"}, 25.40, true},
		{"later total when first has none", []string{"TOTAL", "THANK YOU", "GRAND TOTAL 9.99"}, 9.99, true},
		{"fallback above subtotal", []string{"SUBTOTAL 20.00", "TAX 1.60", "AMOUNT DUE 21.60"}, 21.60, true},
		{"fallback nothing above subtotal", []string{"SUBTOTAL 20.00", "CHANGE 5.00"}, 20.00, true},
		{"fallback global max", []string{"CASH 50.00", "ITEM 12.34"}, 50.00, true},
		{"sub-total spelling skipped", []string{"SUB-TOTAL 8.00", "TOTAL 8.64"}, 8.64, true},
		{"nothing", []string{"hello"}, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Total(tc.lines)
			if ok != tc.ok {
				t.Fatalf("Total() ok=%v, want %v", ok, tc.ok)
			}
			if ok && math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("Total() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDate(t *testing.T) {
	cases := []struct {
		name  string
		lines []string
		want  string
		ok    bool
	}{
		{"day first", []string{"Date: 12/03/2024"}, "2024-03-12", true},
		{"dash separators", []string{"07-08-2023 14:02"}, "2023-08-07", true},
		{"two digit year", []string{"05.11.23"}, "2023-11-05", true},
		{"year first", []string{"2024-03-12 10:15"}, "2024-03-12", true},
		{"invalid month skipped", []string{"31/13/2024 then 01/02/2024"}, "2024-02-01", true},
		{"shape order beats line order", []string{"2024/01/05", "07/08/2023"}, "2023-08-07", true},
		{"none", []string{"no date here", "Total 3.00"}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Date(tc.lines)
			if ok != tc.ok || got != tc.want {
				t.Errorf("Date() = %q,%v want %q,%v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestTaxAndSubtotal(t *testing.T) {
	t.Run("explicit rate", func(t *testing.T) {
		s := TaxAndSubtotal(superstoreReceipt)
		approx(t, "subtotal", s.Subtotal, 12.00)
		approx(t, "tax", s.Tax, 0.72)
		approx(t, "rate", s.Rate, 0.06)
	})

	t.Run("derived rate", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"Subtotal 10.00", "VAT 2.00", "Total 12.00"})
		approx(t, "tax", s.Tax, 2.00)
		approx(t, "rate", s.Rate, 0.20)
	})

	t.Run("entries summed", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"Subtotal 100.00", "GST 5.00", "SERVICE CHARGE 10.00", "Total 115.00"})
		if len(s.Entries) != 2 {
			t.Fatalf("entries = %d, want 2", len(s.Entries))
		}
		approx(t, "tax", s.Tax, 15.00)
		approx(t, "rate", s.Rate, 0.15)
	})

	t.Run("amount on next line", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"SALES TAX 8%", "1.60"})
		if s.Subtotal != nil {
			t.Errorf("subtotal = %v, want nil", *s.Subtotal)
		}
		approx(t, "tax", s.Tax, 1.60)
		approx(t, "rate", s.Rate, 0.08)
	})

	t.Run("rate-only line skips total neighbour", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"Subtotal 12.00", "Tax 6%", "Total 12.72"})
		if s.Tax != nil {
			t.Errorf("tax = %v, want nil", *s.Tax)
		}
		approx(t, "subtotal", s.Subtotal, 12.00)
		approx(t, "rate", s.Rate, 0.06)
	})

	t.Run("neighbour amount counted once", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"VAT INCLUDED", "VAT 0.72", "TOTAL 12.72"})
		approx(t, "tax", s.Tax, 0.72)
	})

	t.Run("no tax lines", func(t *testing.T) {
		s := TaxAndSubtotal([]string{"Subtotal 4.00", "Total 4.00"})
		approx(t, "subtotal", s.Subtotal, 4.00)
		if s.Tax != nil || s.Rate != nil {
			t.Errorf("tax=%v rate=%v, want nil", s.Tax, s.Rate)
		}
	})
}

func TestFromLines(t *testing.T) {
	f := FromLines(superstoreReceipt)
	if f.Vendor != "Mart" {
		t.Errorf("vendor = %q, want Mart", f.Vendor)
	}
	approx(t, "total", f.Total, 12.72)
	approx(t, "subtotal", f.Subtotal, 12.00)
	approx(t, "tax", f.Tax, 0.72)
	approx(t, "tax rate", f.TaxRate, 0.06)
	if f.Date != nil {
		t.Errorf("date = %q, want nil", *f.Date)
	}
}
