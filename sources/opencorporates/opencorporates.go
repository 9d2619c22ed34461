// Package opencorporates searches the OpenCorporates aggregate registry.
// The REST API is used when a token is configured; otherwise the public
// site is fetched over HTTP, with the browser as the last resort when the
// site's bot wall answers instead.
package opencorporates

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

const (
	DefaultAPIURL  = "https://api.opencorporates.com/v0.4"
	DefaultSiteURL = "https://opencorporates.com"
	ManualURL      = "https://opencorporates.com/companies"
)

// New builds the source. Empty URLs fall back to the public endpoints.
func New(deps sources.Deps, apiURL, siteURL string) *sources.Base {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceOpenCorporates,
		Name:         "OpenCorporates",
		Jurisdiction: "multi",
		ManualURL:    ManualURL,
	}, deps.Browser)
	now := deps.Clock()
	maxPages := b.Policy.MaxPages

	if token := deps.Config.OpenCorporatesToken; token != "" && deps.API != nil {
		b.Company[engine.StageAPI] = apiCompanies(deps.API, apiURL, token, now)
		b.Officer[engine.StageAPI] = apiOfficers(deps.API, apiURL, token, now)
	}

	if deps.Fetcher != nil {
		b.Company[engine.StageHTTP] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
			return sources.FetchPages(ctx, deps.Fetcher, engine.FetchRequest{URL: siteLink(siteURL, "companies", q)}, maxPages,
				func(html, pageURL string) (*engine.Outcome[models.ScrapedBusinessEntity], string, error) {
					return ParseCompanies(html, pageURL, now())
				})
		}
		b.Officer[engine.StageHTTP] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
			return sources.FetchPages(ctx, deps.Fetcher, engine.FetchRequest{URL: siteLink(siteURL, "officers", q)}, maxPages,
				func(html, pageURL string) (*engine.Outcome[models.ScrapedOfficer], string, error) {
					return ParseOfficers(html, pageURL, now())
				})
		}
	}

	if deps.Browser != nil {
		b.Company[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedBusinessEntity]{
			Source: models.SourceOpenCorporates,
			Open:   openSearch(siteURL, "companies", "ul#companies", "ul.companies"),
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
				out, _, err := ParseCompanies(html, pageURL, now())
				return out, err
			},
		})
		b.Officer[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedOfficer]{
			Source: models.SourceOpenCorporates,
			Open:   openSearch(siteURL, "officers", "ul#officers", "ul.officers"),
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
				out, _, err := ParseOfficers(html, pageURL, now())
				return out, err
			},
		})
	}
	return b
}

func openSearch(siteURL, kind string, ready ...string) func(models.Query) []browser.Step {
	return func(q models.Query) []browser.Step {
		return []browser.Step{
			browser.Navigate(siteLink(siteURL, kind, q)),
			browser.WaitStable(),
			{Kind: browser.StepWaitAny, Selectors: append(ready, ".no_results", "#page_container"), Timeout: 20 * time.Second},
		}
	}
}

// siteLink builds the public search URL, e.g. /companies?q=acme&type=companies.
func siteLink(siteURL, kind string, q models.Query) string {
	v := url.Values{}
	v.Set("q", q.Term)
	v.Set("type", kind)
	v.Set("utf8", "✓")
	if q.Jurisdiction != "" {
		v.Set("jurisdiction_code", strings.ToLower(q.Jurisdiction))
	}
	if kind == "companies" && !q.IncludeInactive {
		v.Set("inactive", "false")
	}
	return strings.TrimRight(siteURL, "/") + "/" + kind + "?" + v.Encode()
}
