package opencorporates

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/resilience"
	"github.com/use-agent/regscout/sources"
)

var (
	companyRowSel = resilience.MustFieldSelectors("company_row",
		"ul#companies li.search-result",
		"ul.companies li",
		"#results li.company",
	)
	companyLinkSel = resilience.MustFieldSelectors("company_link",
		"a.company_search_result",
		"a.company",
		"a[href*='/companies/']",
	)
	statusSel = resilience.MustFieldSelectors("status",
		"span.status",
		".company_status",
	)
	startSel = resilience.MustFieldSelectors("start_date",
		"span.start_date",
		".incorporation_date",
	)
	endSel = resilience.MustFieldSelectors("end_date",
		"span.end_date",
		".dissolution_date",
	)
	addressSel = resilience.MustFieldSelectors("address",
		"span.address",
		".registered_address",
	)

	officerRowSel = resilience.MustFieldSelectors("officer_row",
		"ul#officers li.search-result",
		"ul.officers li",
	)
	officerLinkSel = resilience.MustFieldSelectors("officer_link",
		"a.officer",
		"a[href*='/officers/']",
	)
	positionSel = resilience.MustFieldSelectors("position",
		"span.position",
		".officer_position",
	)

	nextSel = resilience.MustFieldSelectors("next",
		"a[rel=next]",
		".pagination a.next",
	)

	totalRe = regexp.MustCompile(`(?i)found\s+([\d,]+)\s+(?:companies|officers)`)
)

// ParseCompanies parses an opencorporates.com company search page.
func ParseCompanies(html, pageURL string, now time.Time) (*engine.Outcome[models.ScrapedBusinessEntity], string, error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, "", err
	}
	out := &engine.Outcome[models.ScrapedBusinessEntity]{TotalFound: total(doc)}
	companyRowSel.Find(doc.Selection).Each(func(i int, row *goquery.Selection) {
		link := companyLinkSel.Find(row).First()
		name := normalize.Name(link.Text())
		if name == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing company name"))
			return
		}
		href, _ := link.Attr("href")
		abs := sources.Resolve(pageURL, href)
		jur, number := companyPath(abs)

		// Result lists carry no status text, only an end date and an
		// active/inactive class.
		status := statusSel.Text(row)
		if status == "" {
			switch {
			case endSel.Text(row) != "":
				status = "dissolved"
			case row.HasClass("inactive") || link.HasClass("inactive"):
				status = "inactive"
			case row.HasClass("active") || link.HasClass("active"):
				status = "active"
			}
		}
		out.Records = append(out.Records, models.ScrapedBusinessEntity{
			Name:              name,
			EntityNumber:      number,
			Jurisdiction:      jur,
			Status:            normalize.Status(status),
			IncorporationDate: normalize.ISODate(startSel.Text(row)),
			RegisteredAddress: normalize.Address(addressSel.Text(row)),
			SourceURL:         abs,
			Source:            models.SourceOpenCorporates,
			ScrapedAt:         now,
		})
	})
	return out, nextSel.Attr(doc.Selection, "href"), nil
}

// ParseOfficers parses an opencorporates.com officer search page.
func ParseOfficers(html, pageURL string, now time.Time) (*engine.Outcome[models.ScrapedOfficer], string, error) {
	doc, err := sources.Doc(html)
	if err != nil {
		return nil, "", err
	}
	out := &engine.Outcome[models.ScrapedOfficer]{TotalFound: total(doc)}
	officerRowSel.Find(doc.Selection).Each(func(i int, row *goquery.Selection) {
		person := officerLinkSel.Find(row).First()
		company := companyLinkSel.Find(row).First()
		name := normalize.Name(person.Text())
		companyName := normalize.Name(company.Text())
		if name == "" || companyName == "" {
			out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing officer or company name"))
			return
		}
		personHref, _ := person.Attr("href")
		companyHref, _ := company.Attr("href")
		jur, number := companyPath(sources.Resolve(pageURL, companyHref))

		o := models.ScrapedOfficer{
			Name:          name,
			Position:      normalize.Name(positionSel.Text(row)),
			CompanyName:   companyName,
			CompanyNumber: number,
			Jurisdiction:  jur,
			StartDate:     normalize.ISODate(startSel.Text(row)),
			EndDate:       normalize.ISODate(endSel.Text(row)),
			SourceURL:     sources.Resolve(pageURL, personHref),
			Source:        models.SourceOpenCorporates,
			ScrapedAt:     now,
		}
		o.FinalizeCurrent()
		out.Records = append(out.Records, o)
	})
	return out, nextSel.Attr(doc.Selection, "href"), nil
}

// companyPath splits /companies/{jurisdiction}/{number}.
func companyPath(link string) (string, string) {
	u, err := url.Parse(link)
	if err != nil {
		return "", ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "companies" {
		num, _ := url.PathUnescape(parts[2])
		return parts[1], num
	}
	return "", ""
}

func total(doc *goquery.Document) int {
	m := totalRe.FindStringSubmatch(doc.Text())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	return n
}
