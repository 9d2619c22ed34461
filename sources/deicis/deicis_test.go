package deicis

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/browser/browsertest"
	"github.com/use-agent/regscout/engine"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
	"github.com/use-agent/regscout/sources"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

type sleeps struct {
	mu sync.Mutex
	d  []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d = append(s.d, d)
	return nil
}

func newSource(t *testing.T, d browser.Driver, s *sleeps) *sources.Base {
	t.Helper()
	pool := browser.NewPool(d, browser.PoolConfig{})
	t.Cleanup(pool.Close)
	r := &engine.BrowserRunner{
		Pool:    pool,
		Factory: browser.NewFactory(browser.NewGenerator(3), browser.FactoryConfig{}),
		Loop:    resilience.CaptchaLoop{Ceiling: 3, BaseDelay: 2 * time.Second, Sleep: s.sleep},
	}
	return New(sources.Deps{Browser: r}, "")
}

func TestParseCompanies(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out, err := ParseCompanies(fixture(t, "results.html"), now)
	require.NoError(t, err)
	require.Len(t, out.Records, 2)

	assert.Equal(t, "ACME HOLDINGS, INC.", out.Records[0].Name)
	assert.Equal(t, "7654321", out.Records[0].EntityNumber)
	assert.Equal(t, models.StatusPending, out.Records[0].Status)
	assert.Equal(t, "us_de", out.Records[0].Jurisdiction)
	assert.Equal(t, ManualURL, out.Records[0].SourceURL)
	assert.Equal(t, now, out.Records[0].ScrapedAt)

	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "row 3")
}

func TestSearchRotatesPastChallengedForm(t *testing.T) {
	challenge, results := fixture(t, "challenge.html"), fixture(t, "results.html")
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session < 3 {
			return &browsertest.Page{Content: challenge}
		}
		return &browsertest.Page{Content: results}
	}}
	s := &sleeps{}
	src := newSource(t, d, s)

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Data, 2)
	assert.Contains(t, res.Warnings, "captcha cleared after 3 sessions")
	assert.Equal(t, 3, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, s.d)
}

func TestSearchCaptchaCeiling(t *testing.T) {
	challenge := fixture(t, "challenge.html")
	d := &browsertest.Driver{Pages: func(int) *browsertest.Page { return &browsertest.Page{Content: challenge} }}
	s := &sleeps{}
	src := newSource(t, d, s)

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20})
	assert.False(t, res.Success)
	assert.Equal(t, models.ErrCodeCaptcha, res.Error)
	assert.Empty(t, res.Data)
	assert.Equal(t, 4, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, s.d)
	assert.Contains(t, res.Warnings, "browser stage failed: CAPTCHA_DETECTED")
	assert.Contains(t, res.Warnings, "search manually at "+ManualURL)
}

func TestSearchChallengeAfterSubmit(t *testing.T) {
	challenge, results := fixture(t, "challenge.html"), fixture(t, "results.html")
	var page *browsertest.Page
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session > 1 {
			return &browsertest.Page{Content: results}
		}
		reads := 0
		page = &browsertest.Page{HTMLFunc: func(int) (string, error) {
			reads++
			if reads == 1 {
				return `<html><input id="ctl00_ContentPlaceHolder1_frmEntityName"></html>`, nil
			}
			return challenge, nil
		}}
		return page
	}}
	src := newSource(t, d, &sleeps{})

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 2, d.Launches())
	assert.Equal(t, "ACME", page.Inputs()[nameInput])
}

func TestSearchChallengeOnLoad(t *testing.T) {
	challenge, results := fixture(t, "challenge.html"), fixture(t, "results.html")
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session == 1 {
			return &browsertest.Page{Content: challenge, Errs: map[string]error{"WaitAny": context.DeadlineExceeded}}
		}
		return &browsertest.Page{Content: results}
	}}
	s := &sleeps{}
	src := newSource(t, d, s)

	res := src.SearchCompanies(context.Background(), models.Query{Term: "ACME", SearchType: models.SearchCompany, Limit: 20})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Data, 2)
	assert.Equal(t, 2, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second}, s.d)
}
