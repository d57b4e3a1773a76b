package extract

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"$12.72", 12.72, true},
		{"12,50 €", 12.50, true},
		{"1.234.567,89", 1234567.89, true},
		{"-3.50", -3.50, true},
		{"0.72", 0.72, true},
		{"1.234", 0, false}, // thousands grouping only: ambiguous, no value
		{"42", 0, false},
		{"12.3", 0, false},
		{"", 0, false},
		{"TOTAL", 0, false},
		{"1-2.50", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseAmount(tc.in)
			if ok != tc.ok {
				t.Fatalf("ParseAmount(%q) ok=%v, want %v", tc.in, ok, tc.ok)
			}
			if ok && math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("ParseAmount(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseAmountSeparatorSymmetry(t *testing.T) {
	for _, cents := range []int64{1, 99, 1000, 123456, 100000000, 987654321} {
		us := group(cents/100, ",") + "." + fmt.Sprintf("%02d", cents%100)
		eu := group(cents/100, ".") + "," + fmt.Sprintf("%02d", cents%100)

		a, okA := ParseAmount(us)
		b, okB := ParseAmount(eu)
		if !okA || !okB {
			t.Fatalf("cents=%d: us=%q ok=%v eu=%q ok=%v", cents, us, okA, eu, okB)
		}
		want := float64(cents) / 100
		if math.Abs(a-want) > 1e-6 || math.Abs(b-want) > 1e-6 {
			t.Errorf("cents=%d: us=%v eu=%v want %v", cents, a, b, want)
		}
	}
}

func group(n int64, sep string) string {
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func TestAmountsInSkipsRates(t *testing.T) {
	cases := map[string][]float64{
		"Tax 6% 0.72":       {0.72},
		"VAT 20.00% 4.00":   {4.00},
		"Total: $12.72.":    {12.72},
		"Qty 2 @ 3.50 7.00": {3.50, 7.00},
		"Thank you":         nil,
	}
	for line, want := range cases {
		got := amountsIn(line)
		if len(got) != len(want) {
			t.Fatalf("amountsIn(%q) = %v, want %v", line, got, want)
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-9 {
				t.Errorf("amountsIn(%q)[%d] = %v, want %v", line, i, got[i], want[i])
			}
		}
	}
}
