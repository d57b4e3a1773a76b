package extract

import (
	"regexp"
	"strings"
	"unicode"
)

// UnknownVendor is reported when no header line yields a name.
const UnknownVendor = "Unknown Vendor"

const vendorHeaderLines = 5

var (
	reVendorNoise    = regexp.MustCompile(`(^|\s)(SUPERSTORE|SUPERCENTER|STORE|INC\.|LLC\.|CO\.)(\s|$)`)
	reVendorCollapse = regexp.MustCompile(`[\s\-]+`)
)

// Vendor picks the merchant name from the receipt header.
func Vendor(lines []string) string {
	seen := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		seen++
		if seen > vendorHeaderLines {
			break
		}
		if name := cleanVendor(line); name != "" {
			return name
		}
	}
	return UnknownVendor
}

// cleanVendor strips retail suffixes and title-cases the rest.
// A line without any letter is not a name.
func cleanVendor(line string) string {
	s := strings.ToUpper(strings.TrimSpace(line))
	// ReplaceAll does not revisit the shared separator, so repeat until stable.
	for {
		next := reVendorNoise.ReplaceAllString(s, " ")
		if next == s {
			break
		}
		s = next
	}
	s = strings.TrimSpace(reVendorCollapse.ReplaceAllString(s, " "))
	if !strings.ContainsFunc(s, unicode.IsLetter) {
		return ""
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
