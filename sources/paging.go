package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
)

// PageParser parses one results page and returns the next page link, or ""
// on the last page.
type PageParser[T models.Record] func(html, pageURL string) (*engine.Outcome[T], string, error)

// FetchPages follows "next" links from first up to maxPages and merges the
// records. Only a first-page failure is an error; a later failure keeps what
// was already parsed and adds a warning.
func FetchPages[T models.Record](ctx context.Context, f *engine.HTTPFetcher, first engine.FetchRequest, maxPages int, parse PageParser[T]) (*engine.Outcome[T], error) {
	if maxPages < 1 {
		maxPages = 1
	}
	merged := &engine.Outcome[T]{}
	req := first
	for page := 1; page <= maxPages; page++ {
		res, err := f.Fetch(ctx, req)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			merged.Warnings = append(merged.Warnings,
				fmt.Sprintf("page %d skipped: %s", page, models.CodeOf(err, models.ErrCodeUnknown)))
			break
		}
		out, next, err := parse(res.HTML, res.FinalURL)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			merged.Warnings = append(merged.Warnings,
				fmt.Sprintf("page %d skipped: %s", page, models.CodeOf(err, models.ErrCodeParseFailure)))
			break
		}
		merged.Records = append(merged.Records, out.Records...)
		merged.Warnings = append(merged.Warnings, out.Warnings...)
		if out.TotalFound > merged.TotalFound {
			merged.TotalFound = out.TotalFound
		}
		if next == "" {
			break
		}
		if page == maxPages {
			slog.Debug("page cap reached", "url", res.FinalURL, "max_pages", maxPages)
			break
		}
		req = engine.FetchRequest{URL: Resolve(res.FinalURL, next), Headers: first.Headers}
	}
	return merged, nil
}

// Doc parses html, reporting a PARSE_FAILURE on malformed input.
func Doc(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeParseFailure, "malformed html", err)
	}
	return doc, nil
}

// Resolve makes href absolute against base.
func Resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	r, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(r).String()
}

// Text returns the collapsed text of s.
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// SkipRow formats a PARSE_FAILURE warning for a skipped row.
func SkipRow(i int, why string) string {
	return fmt.Sprintf("row %d skipped (%s): %s", i+1, models.ErrCodeParseFailure, why)
}
