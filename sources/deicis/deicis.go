// Package deicis searches the Delaware Division of Corporations entity name
// search. The ASP.NET form is CAPTCHA-gated, so it only runs in the browser
// and leans on the session rotation loop.
package deicis

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/resilience"
	"github.com/use-agent/regscout/sources"
)

const (
	DefaultSearchURL = "https://icis.corp.delaware.gov/ecorp/entitysearch/namesearch.aspx"
	ManualURL        = DefaultSearchURL
	jurisdiction     = "us_de"

	nameInput    = "#ctl00_ContentPlaceHolder1_frmEntityName"
	submitButton = "#ctl00_ContentPlaceHolder1_btnSubmit"
)

var (
	rowSel = resilience.MustFieldSelectors("row",
		"table#tblResults tr",
		"#ctl00_ContentPlaceHolder1_divCountsMsg ~ table tr",
	)
	numberSel = resilience.MustFieldSelectors("file_number",
		"td:nth-child(1)",
	)
	nameSel = resilience.MustFieldSelectors("entity_name",
		"td:nth-child(2) a",
		"td:nth-child(2)",
	)
)

// New builds the source. searchURL overrides DefaultSearchURL when set.
func New(deps sources.Deps, searchURL string) *sources.Base {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceDEICIS,
		Name:         "Delaware Division of Corporations (ICIS)",
		Jurisdiction: jurisdiction,
		ManualURL:    ManualURL,
	}, deps.Browser)
	now := deps.Clock()

	if deps.Browser != nil {
		b.Company[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedBusinessEntity]{
			Source: models.SourceDEICIS,
			Open: func(models.Query) []browser.Step {
				return []browser.Step{
					browser.Navigate(searchURL),
					browser.WaitStable(),
					{Kind: browser.StepWaitAny, Selectors: []string{nameInput}, Timeout: 20 * time.Second},
				}
			},
			Submit: func(q models.Query) []browser.Step {
				return []browser.Step{
					browser.Input(nameInput, q.Term),
					browser.Click(submitButton),
					{Kind: browser.StepWaitAny, Selectors: []string{"#tblResults", "#ctl00_ContentPlaceHolder1_divCountsMsg"}, Timeout: 30 * time.Second},
				}
			},
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
				return ParseCompanies(html, now())
			},
		})
	}
	return b
}

// ParseCompanies parses the results table. The free search shows no status,
// so every record is Pending until verified on the paid status lookup.
func ParseCompanies(html string, now time.Time) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, err
	}
	out := &engine.Outcome[models.ScrapedBusinessEntity]{}
	n := 0
	rowSel.Find(doc.Selection).Each(func(_ int, row *goquery.Selection) {
		if row.Find("td").Length() == 0 {
			return // header
		}
		i := n
		n++
		name := normalize.Name(nameSel.Text(row))
		if name == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing entity name"))
			return
		}
		out.Records = append(out.Records, models.ScrapedBusinessEntity{
			Name:         name,
			EntityNumber: numberSel.Text(row),
			Jurisdiction: jurisdiction,
			Status:       models.StatusPending,
			// Detail pages are postbacks with no stable URL.
			SourceURL: ManualURL,
			Source:    models.SourceDEICIS,
			ScrapedAt: now,
		})
	})
	return out, nil
}
