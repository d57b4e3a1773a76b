package extract

import (
	"fmt"
	"regexp"
	"strconv"
)

type dateShape struct {
	re             *regexp.Regexp
	day, month, yr int // submatch indexes
	twoDigitYear   bool
}

// Shapes are tried in this order; the first valid match wins.
var dateShapes = []dateShape{
	{re: regexp.MustCompile(`\b(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\b`), day: 1, month: 2, yr: 3},
	{re: regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{2})\b`), day: 1, month: 2, yr: 3, twoDigitYear: true},
	{re: regexp.MustCompile(`\b(\d{4})[/\-.](\d{1,2})[/\-.](\d{1,2})\b`), day: 3, month: 2, yr: 1},
}

// Date returns the first receipt date as YYYY-MM-DD.
func Date(lines []string) (string, bool) {
	for _, shape := range dateShapes {
		for _, line := range lines {
			if d, ok := shape.find(line); ok {
				return d, true
			}
		}
	}
	return "", false
}

func (s dateShape) find(line string) (string, bool) {
	for _, m := range s.re.FindAllStringSubmatch(line, -1) {
		day, _ := strconv.Atoi(m[s.day])
		month, _ := strconv.Atoi(m[s.month])
		year, _ := strconv.Atoi(m[s.yr])
		if s.twoDigitYear {
			year += 2000
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			continue
		}
		return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
	}
	return "", false
}
