package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/sources"
)

// fakeSource returns canned results, optionally blocking or panicking.
type fakeSource struct {
	id       models.Source
	records  int
	total    int
	code     string
	panics   bool
	block    chan struct{}
	started  chan struct{}
	finished chan struct{}

	mu     sync.Mutex
	calls  int
	lastQ  models.Query
	ctxErr error
}

func (f *fakeSource) ID() models.Source { return f.id }

func (f *fakeSource) Info() models.SourceInfo { return models.SourceInfo{ID: f.id} }

func (f *fakeSource) run(ctx context.Context, q models.Query) {
	f.mu.Lock()
	f.calls++
	f.lastQ = q
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
	}
	if f.panics {
		panic("boom")
	}
	if f.block != nil {
		<-f.block
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
	}
	if f.finished != nil {
		close(f.finished)
	}
}

func (f *fakeSource) SearchCompanies(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedBusinessEntity] {
	f.run(ctx, q)
	if f.code != "" {
		return models.NewFailedResult[models.ScrapedBusinessEntity](f.id, q.Term, f.code)
	}
	res := &models.ScraperResult[models.ScrapedBusinessEntity]{Success: true, Source: f.id, Query: q.Term, TotalFound: f.total}
	for i := 0; i < f.records; i++ {
		res.Data = append(res.Data, models.ScrapedBusinessEntity{Name: "ACME", Source: f.id})
	}
	return res
}

func (f *fakeSource) SearchOfficers(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedOfficer] {
	f.run(ctx, q)
	return &models.ScraperResult[models.ScrapedOfficer]{Success: true, Source: f.id, Query: q.Term,
		Data: []models.ScrapedOfficer{{Name: "JANE DOE", Source: f.id}}}
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newOrchestrator(srcs ...sources.Source) *Orchestrator {
	o := New(sources.NewRegistry(nil, srcs...), config.ScraperConfig{SourceTimeout: 5 * time.Second, DefaultLimit: 20})
	o.newID = func() string { return "search-1" }
	return o
}

func TestSearchIsolatesFailures(t *testing.T) {
	ok := &fakeSource{id: models.SourceFLSunbiz, records: 2, total: 57}
	broken := &fakeSource{id: models.SourceDEICIS, code: models.ErrCodeCaptcha}
	panicky := &fakeSource{id: models.SourceCABizfile, panics: true}
	empty := &fakeSource{id: models.SourceNYOpenData}
	o := newOrchestrator(ok, broken, panicky, empty)

	resp, err := o.Search(context.Background(), "  ACME   holdings ", Options{})
	require.NoError(t, err)
	assert.Equal(t, "search-1", resp.ID)
	assert.Equal(t, "ACME holdings", resp.Query)
	assert.Equal(t, models.SearchCompany, resp.SearchType)
	require.Len(t, resp.Results, 4)

	assert.Equal(t, []models.Source{models.SourceFLSunbiz, models.SourceNYOpenData}, resp.Successful)
	assert.Equal(t, []models.Source{models.SourceCABizfile, models.SourceDEICIS}, resp.Failed)
	assert.Equal(t, 57, resp.TotalFound)

	assert.Equal(t, models.ErrCodeCaptcha, resp.Results[models.SourceDEICIS].ErrorCode())
	crashed := resp.Results[models.SourceCABizfile].(*models.ScraperResult[models.ScrapedBusinessEntity])
	assert.Equal(t, models.ErrCodeUnknown, crashed.Error)
	assert.Empty(t, crashed.Data)
	assert.Contains(t, crashed.Warnings[0], "boom")
}

func TestSearchAppliesDefaultsAndRefinements(t *testing.T) {
	src := &fakeSource{id: models.SourceOpenCorporates, records: 1}
	o := newOrchestrator(src)

	_, err := o.Search(context.Background(), "acme", Options{Jurisdiction: "us_fl", IncludeInactive: true})
	require.NoError(t, err)
	assert.Equal(t, models.Query{Term: "acme", SearchType: models.SearchCompany, Limit: 20, Jurisdiction: "us_fl", IncludeInactive: true}, src.lastQ)
}

func TestSearchOfficers(t *testing.T) {
	src := &fakeSource{id: models.SourceOpenCorporates}
	o := newOrchestrator(src)

	resp, err := o.Search(context.Background(), "jane doe", Options{SearchType: models.SearchOfficer, Limit: 5, CurrentOnly: true})
	require.NoError(t, err)
	res, ok := resp.Results[models.SourceOpenCorporates].(*models.ScraperResult[models.ScrapedOfficer])
	require.True(t, ok)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, 1, resp.TotalFound)
	assert.True(t, src.lastQ.CurrentOnly)
}

func TestSearchCallerErrors(t *testing.T) {
	o := newOrchestrator(&fakeSource{id: models.SourceFLSunbiz})

	tests := []struct {
		name string
		term string
		opts Options
		code string
	}{
		{"empty query", "   ", Options{}, models.ErrCodeInvalidInput},
		{"unknown source", "acme", Options{Sources: []models.Source{"tx_sos"}}, models.ErrCodeUnknownSource},
		{"bad search type", "acme", Options{SearchType: "person"}, models.ErrCodeInvalidInput},
		{"negative limit", "acme", Options{Limit: -1}, models.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := o.Search(context.Background(), tt.term, tt.opts)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.Equal(t, tt.code, models.CodeOf(err, ""))
			assert.True(t, models.IsCallerError(err))
		})
	}
}

func TestSearchSelectedSourcesOnly(t *testing.T) {
	a := &fakeSource{id: models.SourceFLSunbiz, records: 1}
	b := &fakeSource{id: models.SourceDEICIS, records: 1}
	o := newOrchestrator(a, b)

	resp, err := o.Search(context.Background(), "acme", Options{Sources: []models.Source{models.SourceDEICIS, models.SourceDEICIS}})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	assert.Equal(t, 0, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestSearchSequentialRunsOneAtATime(t *testing.T) {
	var mu sync.Mutex
	running, peak := 0, 0
	track := func(id models.Source) *trackingSource {
		return &trackingSource{fakeSource: fakeSource{id: id, records: 1}, enter: func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
		}, exit: func() {
			mu.Lock()
			running--
			mu.Unlock()
		}}
	}
	o := newOrchestrator(track(models.SourceFLSunbiz), track(models.SourceDEICIS), track(models.SourceCABizfile))

	resp, err := o.Search(context.Background(), "acme", Options{Sequential: true})
	require.NoError(t, err)
	assert.Len(t, resp.Successful, 3)
	assert.Equal(t, 1, peak)
}

type trackingSource struct {
	fakeSource
	enter, exit func()
}

func (s *trackingSource) SearchCompanies(ctx context.Context, q models.Query) *models.ScraperResult[models.ScrapedBusinessEntity] {
	s.enter()
	defer s.exit()
	time.Sleep(5 * time.Millisecond)
	return s.fakeSource.SearchCompanies(ctx, q)
}

func TestSearchAbandonedSourceKeepsRunning(t *testing.T) {
	fast := &fakeSource{id: models.SourceNYOpenData, records: 1}
	slow := &fakeSource{id: models.SourceDEICIS, records: 1,
		block: make(chan struct{}), started: make(chan struct{}), finished: make(chan struct{})}
	o := newOrchestrator(fast, slow)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-slow.started
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	resp, err := o.Search(ctx, "acme", Options{})
	require.NoError(t, err)
	assert.Equal(t, []models.Source{models.SourceNYOpenData}, resp.Successful)
	assert.Equal(t, []models.Source{models.SourceDEICIS}, resp.Failed)
	abandoned := resp.Results[models.SourceDEICIS].(*models.ScraperResult[models.ScrapedBusinessEntity])
	assert.Equal(t, models.ErrCodeNavigationTimeout, abandoned.Error)
	assert.Contains(t, abandoned.Warnings[0], "abandoned")

	// The source's own context is not cancelled with the caller's.
	close(slow.block)
	select {
	case <-slow.finished:
	case <-time.After(time.Second):
		t.Fatal("abandoned source never finished")
	}
	slow.mu.Lock()
	defer slow.mu.Unlock()
	assert.NoError(t, slow.ctxErr)
}
