// Package coopendata searches the Colorado Secretary of State business
// entities dataset on data.colorado.gov.
package coopendata

import (
	"context"
	"strings"
	"time"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/sources"
	"github.com/use-agent/regscout/sources/socrata"
)

const (
	DefaultBaseURL = "https://data.colorado.gov"
	DatasetID      = "4ykn-tg5h"
	ManualURL      = "https://www.coloradosos.gov/biz/BusinessEntityCriteriaExt.do"
	jurisdiction   = "us_co"
)

// Row is one record of the business entities dataset. The jurisdiction
// column name is misspelled upstream.
type Row struct {
	EntityID              string `json:"entityid"`
	EntityName            string `json:"entityname"`
	PrincipalAddress1     string `json:"principaladdress1"`
	PrincipalAddress2     string `json:"principaladdress2"`
	PrincipalCity         string `json:"principalcity"`
	PrincipalState        string `json:"principalstate"`
	PrincipalZip          string `json:"principalzipcode"`
	EntityStatus          string `json:"entitystatus"`
	FormationJurisdiction string `json:"jurisdictonofformation"`
	EntityType            string `json:"entitytype"`
	AgentFirstName        string `json:"agentfirstname"`
	AgentLastName         string `json:"agentlastname"`
	AgentOrganizationName string `json:"agentorganizationname"`
	EntityFormDate        string `json:"entityformdate"`
}

// New builds the source. Colorado publishes no officer data, so only
// company search is wired.
func New(deps sources.Deps, baseURL string) *sources.Base {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	b := sources.NewBase(models.SourceInfo{
		ID:           models.SourceCOOpenData,
		Name:         "Colorado Secretary of State (Open Data)",
		Jurisdiction: jurisdiction,
		ManualURL:    ManualURL,
	}, deps.Browser)
	if deps.API == nil {
		return b
	}
	ds := socrata.Dataset{API: deps.API, BaseURL: baseURL, ID: DatasetID, AppToken: deps.Config.SocrataAppToken}
	now := deps.Clock()

	b.Company[engine.StageAPI] = func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
		where := socrata.Like("entityname", q.Term)
		limit := socrata.Limit(q)
		var rows []Row
		if err := ds.Rows(ctx, where, "entityname", limit, &rows); err != nil {
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
		out.TotalFound = len(rows)
		if len(rows) >= limit {
			if n, err := ds.Count(ctx, where); err == nil {
				out.TotalFound = n
			} else {
				out.Warnings = append(out.Warnings, "total count unavailable: "+models.CodeOf(err, models.ErrCodeAPIFailure))
			}
		}
		return out, nil
	}
	return b
}

// Entity maps a dataset row.
func (r Row) Entity(now time.Time) (models.ScrapedBusinessEntity, bool) {
	name := normalize.Name(r.EntityName)
	if name == "" {
		return models.ScrapedBusinessEntity{}, false
	}
	agent := r.AgentOrganizationName
	if agent == "" {
		agent = strings.TrimSpace(r.AgentFirstName + " " + r.AgentLastName)
	}
	source := "https://www.coloradosos.gov/biz/BusinessEntityDetail.do?masterFileId=" + r.EntityID
	if r.EntityID == "" {
		source = ManualURL
	}
	return models.ScrapedBusinessEntity{
		Name:              name,
		EntityNumber:      r.EntityID,
		Jurisdiction:      jurisdiction,
		Status:            normalize.Status(r.EntityStatus),
		IncorporationDate: normalize.ISODate(r.EntityFormDate),
		EntityType:        normalize.Name(r.EntityType),
		RegisteredAddress: normalize.Address(r.PrincipalAddress1, r.PrincipalAddress2, r.PrincipalCity, r.PrincipalState+" "+r.PrincipalZip),
		RegisteredAgent:   normalize.Name(agent),
		SourceURL:         source,
		Source:            models.SourceCOOpenData,
		ScrapedAt:         now,
	}, true
}
