// Package sunbiz scrapes the Florida Division of Corporations search. Result
// pages are server-rendered, so plain HTTP is tried first; the browser only
// steps in when the HTTP stage is challenged or parses nothing.
package sunbiz

import (
	"context"
	"net/url"
	"time"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

// DefaultSearchURL is the results endpoint behind the public search form.
const DefaultSearchURL = "https://search.sunbiz.org/Inquiry/CorporationSearch/SearchResults"

// ManualURL is where a human can repeat the search.
const ManualURL = "https://search.sunbiz.org/Inquiry/CorporationSearch/ByName"

const (
	inquiryEntity  = "EntityName"
	inquiryOfficer = "OfficerRegisteredAgentName"
)

// New builds the source. searchURL overrides DefaultSearchURL when set.
func New(deps sources.Deps, searchURL string) *sources.Base {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceFLSunbiz,
		Name:         "Florida Division of Corporations (Sunbiz)",
		Jurisdiction: jurisdiction,
		ManualURL:    ManualURL,
	}, deps.Browser)
	now := deps.Clock()
	maxPages := b.Policy.MaxPages

	if deps.Fetcher != nil {
		b.Company[engine.StageHTTP] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
			return sources.FetchPages(ctx, deps.Fetcher, engine.FetchRequest{URL: searchLink(searchURL, inquiryEntity, q.Term)}, maxPages,
				func(html, pageURL string) (*engine.Outcome[models.ScrapedBusinessEntity], string, error) {
					return ParseCompanies(html, pageURL, now())
				})
		}
		b.Officer[engine.StageHTTP] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
			return sources.FetchPages(ctx, deps.Fetcher, engine.FetchRequest{URL: searchLink(searchURL, inquiryOfficer, q.Term)}, maxPages,
				func(html, pageURL string) (*engine.Outcome[models.ScrapedOfficer], string, error) {
					return ParseOfficers(html, pageURL, now())
				})
		}
	}

	if deps.Browser != nil {
		b.Company[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedBusinessEntity]{
			Source: models.SourceFLSunbiz,
			Open:   openResults(searchURL, inquiryEntity),
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
				out, _, err := ParseCompanies(html, pageURL, now())
				return out, err
			},
		})
		b.Officer[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedOfficer]{
			Source: models.SourceFLSunbiz,
			Open:   openResults(searchURL, inquiryOfficer),
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
				out, _, err := ParseOfficers(html, pageURL, now())
				return out, err
			},
		})
	}
	return b
}

func openResults(searchURL, inquiry string) func(models.Query) []browser.Step {
	return func(q models.Query) []browser.Step {
		return []browser.Step{
			browser.Navigate(searchLink(searchURL, inquiry, q.Term)),
			browser.WaitStable(),
			{Kind: browser.StepWaitAny, Selectors: []string{"#search-results", "#maincontent"}, Timeout: 20 * time.Second},
		}
	}
}

func searchLink(base, inquiry, term string) string {
	v := url.Values{}
	v.Set("inquiryType", inquiry)
	v.Set("searchNameOrder", term)
	v.Set("searchTerm", term)
	return base + "?" + v.Encode()
}
