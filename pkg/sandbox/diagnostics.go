package sandbox

import (
	"regexp"
	"strconv"
	"strings"
)

// tscLineRe matches tsc's --pretty false diagnostic line format:
// "src/App.tsx(12,3): error TS2307: Cannot find module './x'."
var tscLineRe = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): error (TS\d+): (.+)$`)

// parseTSDiagnostics extracts one Diagnostic per matched tsc output line;
// non-diagnostic lines (summaries, tool banners) are ignored.
func parseTSDiagnostics(output string) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(output, "\n") {
		m := tscLineRe.FindStringSubmatch(strings.TrimSuffix(line, "\r"))
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		out = append(out, Diagnostic{
			RuleID:   m[4],
			Message:  m[5],
			FilePath: m[1],
			Line:     lineNum,
		})
	}
	return out
}
