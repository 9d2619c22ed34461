package resilience

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// FieldSelectors is an ordered list of CSS candidates for one field. Registry
// markup drifts, so parsers keep the current selector first and older
// variants after it.
type FieldSelectors struct {
	Field      string
	raw        []string
	candidates []cascadia.Selector
}

// NewFieldSelectors compiles the candidates. An invalid selector is an error.
func NewFieldSelectors(field string, candidates ...string) (FieldSelectors, error) {
	fs := FieldSelectors{Field: field, raw: candidates}
	for _, c := range candidates {
		sel, err := cascadia.Compile(c)
		if err != nil {
			return FieldSelectors{}, fmt.Errorf("selector %s: %q: %w", field, c, err)
		}
		fs.candidates = append(fs.candidates, sel)
	}
	return fs, nil
}

// MustFieldSelectors is NewFieldSelectors for package-level declarations.
func MustFieldSelectors(field string, candidates ...string) FieldSelectors {
	fs, err := NewFieldSelectors(field, candidates...)
	if err != nil {
		panic(err)
	}
	return fs
}

// Match returns the matches of the first candidate that finds anything under
// s, and that candidate's index. The index is -1 and the selection empty
// when no candidate matches.
func (f FieldSelectors) Match(s *goquery.Selection) (*goquery.Selection, int) {
	for i, sel := range f.candidates {
		if found := s.FindMatcher(sel); found.Length() > 0 {
			return found, i
		}
	}
	return s.Slice(0, 0), -1
}

// Find is Match without the index.
func (f FieldSelectors) Find(s *goquery.Selection) *goquery.Selection {
	found, _ := f.Match(s)
	return found
}

// Text returns the trimmed text of the first matched node, or "".
func (f FieldSelectors) Text(s *goquery.Selection) string {
	return strings.TrimSpace(f.Find(s).First().Text())
}

// Attr returns an attribute of the first matched node, or "".
func (f FieldSelectors) Attr(s *goquery.Selection, name string) string {
	v, _ := f.Find(s).First().Attr(name)
	return strings.TrimSpace(v)
}

// Candidates returns the raw selector strings in priority order.
func (f FieldSelectors) Candidates() []string {
	return append([]string(nil), f.raw...)
}
