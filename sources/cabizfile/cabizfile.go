// Package cabizfile searches California bizfile Online. The search page is a
// client-rendered app with no usable HTML endpoint, so only the browser
// stage is wired.
package cabizfile

import (
	"net/url"
	"regexp"
	"strings"
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
	DefaultSearchURL = "https://bizfileonline.sos.ca.gov/search/business"
	ManualURL        = DefaultSearchURL
	jurisdiction     = "us_ca"
)

var (
	searchBox = []string{"input.search-input", "#root input[type=search]"}

	rowSel = resilience.MustFieldSelectors("row",
		"table.div-table tbody tr",
		".div-table .div-table-row",
		"table tbody tr",
	)
	cellSel = resilience.MustFieldSelectors("cell",
		"td",
		".div-table-cell",
	)

	// "ACME HOLDINGS LLC (201912345678)"
	nameNumberRe = regexp.MustCompile(`^(.*?)\s*\(([A-Z]?\d+)\)\s*$`)
)

// Result grid columns.
const (
	colEntity = iota
	colFiled
	colStatus
	colType
	colFormedIn
	colAgent
	numCols
)

// New builds the source. searchURL overrides DefaultSearchURL when set.
func New(deps sources.Deps, searchURL string) *sources.Base {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceCABizfile,
		Name:         "California Secretary of State (bizfile Online)",
		Jurisdiction: jurisdiction,
		ManualURL:    ManualURL,
	}, deps.Browser)
	now := deps.Clock()

	if deps.Browser != nil {
		b.Company[engine.StageBrowser] = engine.BrowserAttempt(deps.Browser, engine.BrowserPlan[models.ScrapedBusinessEntity]{
			Source: models.SourceCABizfile,
			Open: func(models.Query) []browser.Step {
				return []browser.Step{
					browser.Navigate(searchURL),
					{Kind: browser.StepWaitAny, Selectors: searchBox, Timeout: 20 * time.Second},
				}
			},
			Submit: func(q models.Query) []browser.Step {
				return []browser.Step{
					browser.Input(searchBox[0], q.Term),
					browser.Click("button.search-button"),
					{Kind: browser.StepWaitAny, Selectors: []string{".div-table", "table tbody tr", ".no-results"}, Timeout: 30 * time.Second},
					browser.WaitStable(),
				}
			},
			Parse: func(html, pageURL string, _ models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
				return ParseCompanies(html, pageURL, now())
			},
		})
	}
	return b
}

// ParseCompanies parses the rendered result grid.
func ParseCompanies(html, pageURL string, now time.Time) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, err
	}
	out := &engine.Outcome[models.ScrapedBusinessEntity]{}
	n := 0
	rowSel.Find(doc.Selection).Each(func(_ int, row *goquery.Selection) {
		cells := cellSel.Find(row)
		if cells.Length() == 0 {
			return // header
		}
		i := n
		n++
		if cells.Length() < numCols {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "short row"))
			return
		}
		cell := func(c int) string { return sources.Text(cells.Eq(c)) }

		name, number := splitEntity(cell(colEntity))
		if name == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing entity name"))
			return
		}
		out.Records = append(out.Records, models.ScrapedBusinessEntity{
			Name:              name,
			EntityNumber:      number,
			Jurisdiction:      jurisdiction,
			Status:            normalize.Status(cell(colStatus)),
			IncorporationDate: normalize.ISODate(cell(colFiled)),
			EntityType:        normalize.Name(entityType(cell(colType), cell(colFormedIn))),
			RegisteredAgent:   normalize.Name(cell(colAgent)),
			SourceURL:         detailURL(pageURL, number),
			Source:            models.SourceCABizfile,
			ScrapedAt:         now,
		})
	})
	return out, nil
}

func splitEntity(s string) (string, string) {
	if m := nameNumberRe.FindStringSubmatch(s); m != nil {
		return normalize.Name(m[1]), m[2]
	}
	return normalize.Name(s), ""
}

// entityType appends the formation state for foreign filings.
func entityType(kind, formedIn string) string {
	formedIn = strings.TrimSpace(formedIn)
	if formedIn == "" || strings.EqualFold(formedIn, "california") {
		return kind
	}
	return kind + " (" + formedIn + ")"
}

func detailURL(pageURL, number string) string {
	u, err := url.Parse(pageURL)
	if number == "" || pageURL == "" || err != nil {
		return ManualURL
	}
	v := u.Query()
	v.Set("entity", number)
	u.RawQuery = v.Encode()
	return u.String()
}
