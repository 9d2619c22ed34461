// Package nyopendata searches the New York Department of State active
// corporations dataset on data.ny.gov.
package nyopendata

import (
	"context"
	"fmt"
	"time"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/sources"
	"github.com/use-agent/regscout/sources/socrata"
)

const (
	DefaultBaseURL = "https://data.ny.gov"
	DatasetID      = "n9v6-gdp6"
	ManualURL      = "https://apps.dos.ny.gov/publicInquiry/"
	jurisdiction   = "us_ny"
)

// Row is one record of the active corporations dataset.
type Row struct {
	DOSID                string `json:"dos_id"`
	CurrentEntityName    string `json:"current_entity_name"`
	InitialDOSFilingDate string `json:"initial_dos_filing_date"`
	County               string `json:"county"`
	Jurisdiction         string `json:"jurisdiction"`
	EntityType           string `json:"entity_type"`
	ProcessName          string `json:"dos_process_name"`
	ProcessAddress1      string `json:"dos_process_address_1"`
	ProcessAddress2      string `json:"dos_process_address_2"`
	ProcessCity          string `json:"dos_process_city"`
	ProcessState         string `json:"dos_process_state"`
	ProcessZip           string `json:"dos_process_zip"`
	CEOName              string `json:"ceo_name"`
	RegisteredAgentName  string `json:"registered_agent_name"`
}

// New builds the source. baseURL overrides DefaultBaseURL when set.
func New(deps sources.Deps, baseURL string) *sources.Base {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceNYOpenData,
		Name:         "New York Department of State (Open Data)",
		Jurisdiction: jurisdiction,
		ManualURL:    ManualURL,
	}, deps.Browser)
	if deps.API == nil {
		return b
	}
	ds := socrata.Dataset{API: deps.API, BaseURL: baseURL, ID: DatasetID, AppToken: deps.Config.SocrataAppToken}
	now := deps.Clock()

	b.Company[engine.StageAPI] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
		where := socrata.Like("current_entity_name", q.Term)
		var rows []Row
		limit := socrata.Limit(q)
		if err := ds.Rows(ctx, where, "current_entity_name", limit, &rows); err != nil {
			return nil, err
		}
		out := &engine.Outcome[models.ScrapedBusinessEntity]{}
		ts := now()
		for i, r := range rows {
			e, ok := r.Entity(ts)
			if !ok {
				out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing entity name"))
				continue
			}
			out.Records = append(out.Records, e)
		}
		out.TotalFound = total(ctx, ds, where, len(rows), limit, out)
		return out, nil
	}

	b.Officer[engine.StageAPI] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
		where := socrata.Like("ceo_name", q.Term)
		var rows []Row
		limit := socrata.Limit(q)
		if err := ds.Rows(ctx, where, "ceo_name", limit, &rows); err != nil {
			return nil, err
		}
		out := &engine.Outcome[models.ScrapedOfficer]{}
		ts := now()
		for i, r := range rows {
			o, ok := r.Officer(ts)
			if !ok {
				out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing ceo or entity name"))
				continue
			}
			out.Records = append(out.Records, o)
		}
		out.TotalFound = total(ctx, ds, where, len(rows), limit, out)
		return out, nil
	}
	return b
}

// total asks for the full match count only when the page came back full.
func total[T models.Record](ctx context.Context, ds socrata.Dataset, where string, fetched, limit int, out *engine.Outcome[T]) int {
	if fetched < limit {
		return fetched
	}
	n, err := ds.Count(ctx, where)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("total count unavailable: %s", models.CodeOf(err, models.ErrCodeAPIFailure)))
		return 0
	}
	return n
}

// Entity maps a dataset row. The dataset only lists active corporations.
func (r Row) Entity(now time.Time) (models.ScrapedBusinessEntity, bool) {
	name := normalize.Name(r.CurrentEntityName)
	if name == "" {
		return models.ScrapedBusinessEntity{}, false
	}
	return models.ScrapedBusinessEntity{
		Name:              name,
		EntityNumber:      r.DOSID,
		Jurisdiction:      jurisdiction,
		Status:            models.StatusActive,
		IncorporationDate: normalize.ISODate(r.InitialDOSFilingDate),
		EntityType:        normalize.Name(r.EntityType),
		RegisteredAddress: normalize.Address(r.ProcessAddress1, r.ProcessAddress2, r.ProcessCity, r.ProcessState+" "+r.ProcessZip),
		RegisteredAgent:   normalize.Name(r.RegisteredAgentName),
		SourceURL:         recordURL(r.DOSID),
		Source:            models.SourceNYOpenData,
		ScrapedAt:         now,
	}, true
}

// Officer maps the chief executive named on a row.
func (r Row) Officer(now time.Time) (models.ScrapedOfficer, bool) {
	name := normalize.Name(r.CEOName)
	company := normalize.Name(r.CurrentEntityName)
	if name == "" || company == "" {
		return models.ScrapedOfficer{}, false
	}
	o := models.ScrapedOfficer{
		Name:          name,
		Position:      "Chief Executive Officer",
		CompanyName:   company,
		CompanyNumber: r.DOSID,
		Jurisdiction:  jurisdiction,
		SourceURL:     recordURL(r.DOSID),
		Source:        models.SourceNYOpenData,
		ScrapedAt:     now,
	}
	o.FinalizeCurrent()
	return o, true
}

func recordURL(dosID string) string {
	u := DefaultBaseURL + "/resource/" + DatasetID + ".json"
	if dosID != "" {
		u += "?dos_id=" + dosID
	}
	return u
}
