package bundle

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	errorPosition = regexp.MustCompile(`:([0-9]+):([0-9]+):`)
	fileMarker    = regexp.MustCompile(`//File: (.*)`)
)

// Remap rewrites the position of every compiler error that points into bundled
// back to the file it originated from, using the markers injected by FileToken.
//
// The reported line is replaced by its distance to the nearest preceding marker,
// which is not the true line within the original file. Errors without a position,
// or without a marker above the reported line, are returned unmodified.
// The input slice is never modified.
func Remap(bundled string, errs []string) []string {
	if bundled == "" || len(errs) == 0 {
		return []string{}
	}
	lines := strings.Split(bundled, "\n")
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = remapOne(lines, e)
	}
	return out
}

func remapOne(lines []string, e string) string {
	loc := errorPosition.FindStringSubmatchIndex(e)
	if loc == nil {
		return e
	}
	line, err := strconv.Atoi(e[loc[2]:loc[3]])
	if err != nil {
		return e
	}
	column := e[loc[4]:loc[5]]
	lineNum := line - 1
	for offset := 1; offset <= lineNum; offset++ {
		idx := lineNum - offset
		if idx >= len(lines) {
			continue
		}
		m := fileMarker.FindStringSubmatch(lines[idx])
		if m == nil {
			continue
		}
		return e[:loc[0]] + m[1] + " :" + strconv.Itoa(offset) + ":" + column + ":" + e[loc[1]:]
	}
	return e
}
