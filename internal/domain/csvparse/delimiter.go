package csvparse

import "strings"

// candidates are ordered by precedence when counts tie.
var candidates = []rune{',', '\t', ';', '|'} //nolint:gochecknoglobals // fixed table

// DetectDelimiter picks the candidate occurring most often in line.
// It defaults to a comma when none occurs.
func DetectDelimiter(line string) rune {
	best, bestCount := ',', 0
	for _, d := range candidates {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
