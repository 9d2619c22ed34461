package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

type entity = models.ScrapedBusinessEntity

func rows(names ...string) []entity {
	out := make([]entity, len(names))
	for i, n := range names {
		out[i] = entity{Name: n, EntityNumber: n, Jurisdiction: "us_fl", Status: models.StatusActive}
	}
	return out
}

type spy struct {
	calls int
	out   *Outcome[entity]
	err   error
}

func (s *spy) attempt(context.Context, models.Query) (*Outcome[entity], error) {
	s.calls++
	return s.out, s.err
}

func plan(stages []Stage, attempts map[Stage]Attempt[entity]) Plan[entity] {
	return Plan[entity]{
		Source:    models.SourceFLSunbiz,
		Policy:    Policy{Stages: stages},
		Attempts:  attempts,
		ManualURL: "https://search.example.gov",
	}
}

var q = models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20}

func TestRunAPIZeroRowsIsAuthoritative(t *testing.T) {
	api := &spy{out: &Outcome[entity]{}}
	httpStage := &spy{out: &Outcome[entity]{Records: rows("ACME")}}
	res := Run(context.Background(), plan([]Stage{StageAPI, StageHTTP},
		map[Stage]Attempt[entity]{StageAPI: api.attempt, StageHTTP: httpStage.attempt}), q, Env{})

	assert.True(t, res.Success)
	assert.Empty(t, res.Data)
	assert.Equal(t, 0, res.TotalFound)
	assert.Equal(t, 0, httpStage.calls)
}

func TestRunHTTPZeroRowsWithoutBrowserIsEmptySuccess(t *testing.T) {
	httpStage := &spy{out: &Outcome[entity]{}}
	br := &spy{}
	res := Run(context.Background(), plan([]Stage{StageHTTP, StageBrowser},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt, StageBrowser: br.attempt}), q, Env{BrowserAvailable: false})

	assert.True(t, res.Success)
	assert.Empty(t, res.Data)
	assert.Empty(t, res.Error)
	assert.Equal(t, 0, br.calls)
	assert.Contains(t, res.Warnings, "browser unavailable: browser stage skipped")
}

func TestRunHTTPZeroRowsFallsThroughToBrowser(t *testing.T) {
	httpStage := &spy{out: &Outcome[entity]{}}
	br := &spy{out: &Outcome[entity]{Records: rows("ACME LLC")}}
	res := Run(context.Background(), plan([]Stage{StageHTTP, StageBrowser},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt, StageBrowser: br.attempt}), q, Env{BrowserAvailable: true})

	require.True(t, res.Success)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, 1, br.calls)
}

func TestRunCaptchaWithoutBrowserReportsManualURL(t *testing.T) {
	captcha := models.NewScrapeError(models.ErrCodeCaptcha, "sunbiz", resilience.ErrCaptcha)
	httpStage := &spy{err: captcha}
	res := Run(context.Background(), plan([]Stage{StageHTTP, StageBrowser},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt, StageBrowser: (&spy{}).attempt}), q, Env{})

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeCaptcha, res.Error)
	assert.Empty(t, res.Data)
	assert.Contains(t, res.Warnings, "search manually at https://search.example.gov")
}

func TestRunErrorFallsThroughAndWarns(t *testing.T) {
	httpStage := &spy{err: models.NewScrapeError(models.ErrCodeHTTPFailure, "status 500", nil)}
	br := &spy{out: &Outcome[entity]{Records: rows("ACME"), Warnings: []string{"row 3: missing name"}}}
	res := Run(context.Background(), plan([]Stage{StageHTTP, StageBrowser},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt, StageBrowser: br.attempt}), q, Env{BrowserAvailable: true})

	require.True(t, res.Success)
	assert.Equal(t, []string{"http stage failed: HTTP_FAILURE", "row 3: missing name"}, res.Warnings)
}

func TestRunBrowserOnlyUnavailable(t *testing.T) {
	res := Run(context.Background(), plan([]Stage{StageBrowser},
		map[Stage]Attempt[entity]{StageBrowser: (&spy{}).attempt}), q, Env{})

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeBrowserUnavailable, res.Error)
	assert.Equal(t, 0, res.Found())
}

func TestRunAllStagesFail(t *testing.T) {
	api := &spy{err: errors.New("boom")}
	res := Run(context.Background(), plan([]Stage{StageAPI},
		map[Stage]Attempt[entity]{StageAPI: api.attempt}), q, Env{})

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeUnknown, res.Error)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestRunUnconfiguredStageIsSkipped(t *testing.T) {
	httpStage := &spy{out: &Outcome[entity]{Records: rows("ACME")}}
	res := Run(context.Background(), plan([]Stage{StageAPI, StageHTTP},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt}), q, Env{})

	require.True(t, res.Success)
	assert.Empty(t, res.Warnings)
}

func TestRunFiltersRanksDedupesAndLimits(t *testing.T) {
	records := rows("ZENITH PARTNERS", "ACME HOLDINGS", "ACME", "ACME")
	dissolved := entity{Name: "ACME OLD", EntityNumber: "X1", Jurisdiction: "us_fl", Status: models.StatusDissolved}
	records = append(records, dissolved)
	httpStage := &spy{out: &Outcome[entity]{Records: records, TotalFound: 57}}

	limited := q
	limited.Limit = 2
	res := Run(context.Background(), plan([]Stage{StageHTTP},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt}), limited, Env{})

	require.True(t, res.Success)
	require.Len(t, res.Data, 2)
	assert.Equal(t, "ACME", res.Data[0].Name)
	assert.Equal(t, "ACME HOLDINGS", res.Data[1].Name)
	assert.Equal(t, 57, res.TotalFound)

	withInactive := q
	withInactive.IncludeInactive = true
	res = Run(context.Background(), plan([]Stage{StageHTTP},
		map[Stage]Attempt[entity]{StageHTTP: httpStage.attempt}), withInactive, Env{})
	assert.Len(t, res.Data, 4)
}

func TestRunContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &spy{out: &Outcome[entity]{Records: rows("ACME")}}
	res := Run(ctx, plan([]Stage{StageAPI},
		map[Stage]Attempt[entity]{StageAPI: api.attempt}), q, Env{})

	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeNavigationTimeout, res.Error)
	assert.Equal(t, 0, api.calls)
}

func TestPoliciesTable(t *testing.T) {
	for _, src := range []models.Source{
		models.SourceOpenCorporates, models.SourceNYOpenData, models.SourceCOOpenData,
		models.SourceFLSunbiz, models.SourceCABizfile, models.SourceDEICIS,
	} {
		p, ok := PolicyFor(src)
		require.True(t, ok, src)
		assert.NotEmpty(t, p.Stages, src)
	}
	assert.False(t, Policies[models.SourceNYOpenData].Has(StageBrowser))
	assert.Equal(t, []string{"browser"}, Policies[models.SourceDEICIS].Names())
	assert.Equal(t, 3, Policies[models.SourceFLSunbiz].MaxPages)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("acme  llc", "ACME LLC"))
	assert.Greater(t, Similarity("ACME LLC", "ACME"), Similarity("ZENITH", "ACME"))
	assert.Equal(t, 0.0, Similarity("", "ACME"))
}
