package normalize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	stateCodeRe  = regexp.MustCompile(`(?i)^([a-z]{2})(\s+\d{5}(?:-\d{4})?)?$`)
)

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Name tidies an entity or person name scraped from markup.
func Name(raw string) string {
	return strings.Trim(collapseSpace(raw), " ,;:")
}

// Address joins address parts with ", ", collapsing whitespace, dropping empty
// parts and upper-casing two-letter state codes ("fl 33101" → "FL 33101").
func Address(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		// Parts arrive as lines, comma-joined strings, or both.
		for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '\n' || r == ',' }) {
			seg = collapseSpace(seg)
			if seg == "" {
				continue
			}
			if stateCodeRe.MatchString(seg) {
				seg = strings.ToUpper(seg[:2]) + seg[2:]
			}
			out = append(out, seg)
		}
	}
	return strings.Join(out, ", ")
}
