package sunbiz

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/resilience"
	"github.com/use-agent/regscout/sources"
)

const jurisdiction = "us_fl"

// Current markup first, then the pre-2020 layout that still shows up on
// cached mirrors and the officer search.
var (
	rowSel = resilience.MustFieldSelectors("row",
		"#search-results table tbody tr",
		"table#search-results tr",
		"table.searchResults tr",
	)
	nameSel = resilience.MustFieldSelectors("name",
		"td.large-width a",
		"td:nth-child(1) a",
		"td:nth-child(1)",
	)
	numberSel = resilience.MustFieldSelectors("document_number",
		"td.medium-width",
		"td:nth-child(2)",
	)
	statusSel = resilience.MustFieldSelectors("status",
		"td.small-width",
		"td:nth-child(3)",
	)
	nextSel = resilience.MustFieldSelectors("next",
		`a[title="Next List"]`,
		`.navigationBarPaging a:contains("Next")`,
	)

	officerNameSel = resilience.MustFieldSelectors("officer_name",
		"td.officer-name a",
		"td:nth-child(1) a",
		"td:nth-child(1)",
	)
	officerCompanySel = resilience.MustFieldSelectors("corporate_name",
		"td.corporate-name",
		"td:nth-child(2)",
	)
	officerNumberSel = resilience.MustFieldSelectors("document_number",
		"td.medium-width",
		"td:nth-child(3)",
	)
)

// ParseCompanies parses a Sunbiz entity-name results page.
func ParseCompanies(html, pageURL string, now time.Time) (*engine.Outcome[models.ScrapedBusinessEntity], string, error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, "", err
	}
	out := &engine.Outcome[models.ScrapedBusinessEntity]{}
	dataRows(doc).Each(func(i int, row *goquery.Selection) {
		name := normalize.Name(nameSel.Text(row))
		if name == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing corporate name"))
			return
		}
		link := sources.Resolve(pageURL, nameSel.Attr(row, "href"))
		if link == "" {
			link = pageURL
		}
		out.Records = append(out.Records, models.ScrapedBusinessEntity{
			Name:         name,
			EntityNumber: numberSel.Text(row),
			Jurisdiction: jurisdiction,
			Status:       normalize.Status(statusSel.Text(row)),
			SourceURL:    link,
			Source:       models.SourceFLSunbiz,
			ScrapedAt:    now,
		})
	})
	return out, nextSel.Attr(doc.Selection, "href"), nil
}

// ParseOfficers parses a Sunbiz officer/registered-agent results page.
func ParseOfficers(html, pageURL string, now time.Time) (*engine.Outcome[models.ScrapedOfficer], string, error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, "", err
	}
	out := &engine.Outcome[models.ScrapedOfficer]{}
	dataRows(doc).Each(func(i int, row *goquery.Selection) {
		name := normalize.Name(officerNameSel.Text(row))
		company := normalize.Name(officerCompanySel.Text(row))
		if name == "" || company == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing officer or corporate name"))
			return
		}
		link := sources.Resolve(pageURL, officerNameSel.Attr(row, "href"))
		if link == "" {
			link = pageURL
		}
		o := models.ScrapedOfficer{
			Name:          name,
			Position:      "Officer/Registered Agent",
			CompanyName:   company,
			CompanyNumber: officerNumberSel.Text(row),
			Jurisdiction:  jurisdiction,
			SourceURL:     link,
			Source:        models.SourceFLSunbiz,
			ScrapedAt:     now,
		}
		o.FinalizeCurrent()
		out.Records = append(out.Records, o)
	})
	return out, nextSel.Attr(doc.Selection, "href"), nil
}

// dataRows drops header rows.
func dataRows(doc *goquery.Document) *goquery.Selection {
	return rowSel.Find(doc.Selection).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("td").Length() > 0
	})
}
