package coopendata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

func newSource(t *testing.T, body string) *sources.Base {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resource/4ykn-tg5h.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	api := engine.NewAPIClient(config.HTTPConfig{Timeout: 5 * time.Second}, config.ScraperConfig{RetryAttempts: 1}, nil)
	return New(sources.Deps{API: api}, srv.URL)
}

func TestSearchCompaniesNormalizes(t *testing.T) {
	src := newSource(t, `[
	  {"entityid":"20191234567","entityname":"Acme Rockies LLC","entitystatus":"Good Standing","entitytype":"DLLC",
	   "entityformdate":"2019-03-14T00:00:00.000","principaladdress1":"100 Pearl St","principalcity":"Denver",
	   "principalstate":"co","principalzipcode":"80202","agentfirstname":"Pat","agentlastname":"Smith"},
	  {"entityid":"19871000001","entityname":"Acme Mining Co","entitystatus":"Voluntarily Dissolved",
	   "entityformdate":"1987-01-05T00:00:00.000","agentorganizationname":"Registered Agents Inc"},
	  {"entityid":"20001000002","entityname":"Acme Delinquent Inc","entitystatus":"Delinquent"}
	]`)

	res := src.SearchCompanies(context.Background(), models.Query{Term: "acme", SearchType: models.SearchCompany, Limit: 20, IncludeInactive: true})
	require.True(t, res.Success, res.Error)
	require.Len(t, res.Data, 3)

	byNumber := map[string]models.ScrapedBusinessEntity{}
	for _, e := range res.Data {
		byNumber[e.EntityNumber] = e
	}
	rockies := byNumber["20191234567"]
	assert.Equal(t, models.StatusActive, rockies.Status)
	assert.Equal(t, "Pat Smith", rockies.RegisteredAgent)
	assert.Equal(t, "100 Pearl St, Denver, CO 80202", rockies.RegisteredAddress)
	require.NotNil(t, rockies.IncorporationDate)
	assert.Equal(t, "2019-03-14", *rockies.IncorporationDate)

	assert.Equal(t, models.StatusDissolved, byNumber["19871000001"].Status)
	assert.Equal(t, "Registered Agents Inc", byNumber["19871000001"].RegisteredAgent)
	assert.Equal(t, models.StatusInactive, byNumber["20001000002"].Status)
}

func TestSearchCompaniesDropsInactiveByDefault(t *testing.T) {
	src := newSource(t, `[
	  {"entityid":"1","entityname":"Acme One","entitystatus":"Good Standing"},
	  {"entityid":"2","entityname":"Acme Two","entitystatus":"Administratively Dissolved"}
	]`)

	res := src.SearchCompanies(context.Background(), models.Query{Term: "acme", SearchType: models.SearchCompany, Limit: 20})
	require.True(t, res.Success)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Acme One", res.Data[0].Name)
}

func TestOfficerSearchUnsupported(t *testing.T) {
	src := newSource(t, `[]`)

	res := src.SearchOfficers(context.Background(), models.Query{Term: "Pat", SearchType: models.SearchOfficer})
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeUnsupportedType, res.Error)
	assert.Empty(t, res.Data)
	assert.Equal(t, []models.SearchType{models.SearchCompany}, src.Info().SearchTypes)
}
