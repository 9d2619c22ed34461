package opencorporates

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/normalize"
	"github.com/use-agent/regscout/sources"
)

type apiCompany struct {
	Name                    string  `json:"name"`
	CompanyNumber           string  `json:"company_number"`
	JurisdictionCode        string  `json:"jurisdiction_code"`
	IncorporationDate       string  `json:"incorporation_date"`
	DissolutionDate         *string `json:"dissolution_date"`
	CompanyType             string  `json:"company_type"`
	CurrentStatus           string  `json:"current_status"`
	Inactive                *bool   `json:"inactive"`
	RegisteredAddressInFull string  `json:"registered_address_in_full"`
	OpenCorporatesURL       string  `json:"opencorporates_url"`
	AgentName               string  `json:"agent_name"`
}

type apiOfficer struct {
	Name              string `json:"name"`
	Position          string `json:"position"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	OpenCorporatesURL string `json:"opencorporates_url"`
	Company           struct {
		Name             string `json:"name"`
		CompanyNumber    string `json:"company_number"`
		JurisdictionCode string `json:"jurisdiction_code"`
	} `json:"company"`
}

type companySearch struct {
	Results struct {
		Companies []struct {
			Company apiCompany `json:"company"`
		} `json:"companies"`
		TotalCount int `json:"total_count"`
	} `json:"results"`
}

type officerSearch struct {
	Results struct {
		Officers []struct {
			Officer apiOfficer `json:"officer"`
		} `json:"officers"`
		TotalCount int `json:"total_count"`
	} `json:"results"`
}

func perPage(q models.Query) string {
	n := q.Limit
	if n <= 0 || n > 100 {
		n = 100
	}
	return strconv.Itoa(n)
}

func apiParams(q models.Query, token string) map[string]string {
	p := map[string]string{
		"q":         q.Term,
		"per_page":  perPage(q),
		"api_token": token,
		"order":     "score",
	}
	if q.Jurisdiction != "" {
		p["jurisdiction_code"] = strings.ToLower(q.Jurisdiction)
	}
	return p
}

func apiCompanies(api *engine.APIClient, baseURL, token string, now func() time.Time) engine.Attempt[models.ScrapedBusinessEntity] {
	return func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedBusinessEntity], error) {
		var resp companySearch
		err := api.GetJSON(ctx, engine.APIRequest{URL: baseURL + "/companies/search", Params: apiParams(q, token)}, &resp)
		if err != nil {
			return nil, err
		}
		out := &engine.Outcome[models.ScrapedBusinessEntity]{TotalFound: resp.Results.TotalCount}
		ts := now()
		for i, c := range resp.Results.Companies {
			e := c.Company
			name := normalize.Name(e.Name)
			if name == "" {
				out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing company name"))
				continue
			}
			out.Records = append(out.Records, models.ScrapedBusinessEntity{
				Name:              name,
				EntityNumber:      e.CompanyNumber,
				Jurisdiction:      e.JurisdictionCode,
				Status:            apiStatus(e),
				IncorporationDate: normalize.ISODate(e.IncorporationDate),
				EntityType:        normalize.Name(e.CompanyType),
				RegisteredAddress: normalize.Address(e.RegisteredAddressInFull),
				RegisteredAgent:   normalize.Name(e.AgentName),
				SourceURL:         e.OpenCorporatesURL,
				Source:            models.SourceOpenCorporates,
				ScrapedAt:         ts,
			})
		}
		return out, nil
	}
}

// apiStatus prefers the registry's own wording; OpenCorporates only adds
// an inactive flag and a dissolution date when the registry omits it.
func apiStatus(c apiCompany) models.EntityStatus {
	if c.CurrentStatus != "" {
		return normalize.Status(c.CurrentStatus)
	}
	if c.DissolutionDate != nil && *c.DissolutionDate != "" {
		return models.StatusDissolved
	}
	if c.Inactive != nil {
		if *c.Inactive {
			return models.StatusInactive
		}
		return models.StatusActive
	}
	return models.StatusPending
}

func apiOfficers(api *engine.APIClient, baseURL, token string, now func() time.Time) engine.Attempt[models.ScrapedOfficer] {
	return func(ctx context.Context, q models.Query) (*engine.Outcome[models.ScrapedOfficer], error) {
		params := apiParams(q, token)
		delete(params, "order")
		if q.CurrentOnly {
			params["inactive"] = "false"
		}
		var resp officerSearch
		err := api.GetJSON(ctx, engine.APIRequest{URL: baseURL + "/officers/search", Params: params}, &resp)
		if err != nil {
			return nil, err
		}
		out := &engine.Outcome[models.ScrapedOfficer]{TotalFound: resp.Results.TotalCount}
		ts := now()
		for i, o := range resp.Results.Officers {
			off := o.Officer
			name := normalize.Name(off.Name)
			company := normalize.Name(off.Company.Name)
			if name == "" || company == "" {
				out.Warnings = append(out.Warnings, sources.SkipRow(i, "missing officer or company name"))
				continue
			}
			rec := models.ScrapedOfficer{
				Name:          name,
				Position:      normalize.Name(off.Position),
				CompanyName:   company,
				CompanyNumber: off.Company.CompanyNumber,
				Jurisdiction:  off.Company.JurisdictionCode,
				StartDate:     normalize.ISODate(off.StartDate),
				EndDate:       normalize.ISODate(off.EndDate),
				SourceURL:     off.OpenCorporatesURL,
				Source:        models.SourceOpenCorporates,
				ScrapedAt:     ts,
			}
			rec.FinalizeCurrent()
			out.Records = append(out.Records, rec)
		}
		return out, nil
	}
}
