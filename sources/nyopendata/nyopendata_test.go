package nyopendata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

const rowsJSON = `[
  {"dos_id":"5512345","current_entity_name":"ACME  HOLDINGS LLC","initial_dos_filing_date":"2019-03-14T00:00:00.000",
   "entity_type":"DOMESTIC LIMITED LIABILITY COMPANY","dos_process_address_1":"1 Main St","dos_process_city":"Albany",
   "dos_process_state":"ny","dos_process_zip":"12207","ceo_name":"JANE DOE"},
  {"dos_id":"5599999","current_entity_name":"","ceo_name":"NOBODY"},
  {"dos_id":"4400001","current_entity_name":"ACME ROOFING CORP","initial_dos_filing_date":"2001-07-02T00:00:00.000","ceo_name":""}
]`

func newSource(t *testing.T, handler http.HandlerFunc) *sources.Base {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	api := engine.NewAPIClient(config.HTTPConfig{Timeout: 5 * time.Second}, config.ScraperConfig{RetryAttempts: 1}, nil)
	return New(sources.Deps{API: api, Config: config.SourcesConfig{SocrataAppToken: "tok"}}, srv.URL)
}

func TestSearchCompanies(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/n9v6-gdp6.json", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-App-Token"))
		assert.Equal(t, "upper(current_entity_name) like '%ACME%'", r.URL.Query().Get("$where"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(rowsJSON))
	})

	res := src.SearchCompanies(context.Background(), models.Query{Term: "acme", SearchType: models.SearchCompany, Limit: 20})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Data, 2)

	var holdings models.ScrapedBusinessEntity
	for _, e := range res.Data {
		if e.EntityNumber == "5512345" {
			holdings = e
		}
	}
	assert.Equal(t, "ACME HOLDINGS LLC", holdings.Name)
	assert.Equal(t, models.StatusActive, holdings.Status)
	require.NotNil(t, holdings.IncorporationDate)
	assert.Equal(t, "2019-03-14", *holdings.IncorporationDate)
	assert.Equal(t, "1 Main St, Albany, NY 12207", holdings.RegisteredAddress)
	assert.Equal(t, "us_ny", holdings.Jurisdiction)
	assert.Equal(t, 3, res.TotalFound)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "row 2")
}

func TestSearchOfficers(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Query().Get("$where"), "upper(ceo_name)"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(rowsJSON))
	})

	res := src.SearchOfficers(context.Background(), models.Query{Term: "jane doe", SearchType: models.SearchOfficer, Limit: 20})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Data, 1)
	assert.Len(t, res.Warnings, 2)
	assert.Equal(t, "JANE DOE", res.Data[0].Name)
	assert.Equal(t, "ACME HOLDINGS LLC", res.Data[0].CompanyName)
	assert.True(t, res.Data[0].Current)
}

func TestSearchZeroRows(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
	})

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ZZZQX", SearchType: models.SearchCompany, Limit: 20})
	assert.True(t, res.Success)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.TotalFound)
}

func TestSearchCountsFullPage(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("$select") != "" {
			w.Write([]byte(`[{"count":"1234"}]`))
			return
		}
		w.Write([]byte(`[{"dos_id":"1","current_entity_name":"ACME ONE"},{"dos_id":"2","current_entity_name":"ACME TWO"}]`))
	})

	// Limit 1 asks for 2 rows; a full page triggers the count query.
	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 1})
	require.True(t, res.Success)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, 1234, res.TotalFound)
	assert.Equal(t, 1234, res.Found())
}

func TestSearchAPIFailure(t *testing.T) {
	src := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20})
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeAPIFailure, res.Error)
	assert.Empty(t, res.Data)
}

func TestInfoStagesAreAPIOnly(t *testing.T) {
	info := New(sources.Deps{}, "").Info()
	assert.Equal(t, []string{"api"}, info.Stages)
	assert.Empty(t, info.SearchTypes)
}
