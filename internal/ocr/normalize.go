package ocr

import (
	"regexp"
	"strings"
)

var (
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reRuler      = regexp.MustCompile(`^[_\-=*.]{3,}$`)
)

// NormalizeLine collapses tabs and runs of spaces and blanks out ruler lines
// ("-----", "=====") that receipts print between sections.
func NormalizeLine(s string) string {
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if reRuler.MatchString(s) {
		return ""
	}
	return s
}
