package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/browser"
	"github.com/use-agent/regscout/browser/browsertest"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

const (
	challengePage = `<html><body><div class="cf-turnstile"></div></body></html>`
	resultsPage   = `<html><body><table id="results"><tr><td class="name">ACME LLC</td></tr></table></body></html>`
)

func testPlan() BrowserPlan[entity] {
	return BrowserPlan[entity]{
		Source: models.SourceDEICIS,
		Open: func(q models.Query) []browser.Step {
			return []browser.Step{browser.Navigate("https://icis.example/search")}
		},
		Submit: func(q models.Query) []browser.Step {
			return []browser.Step{
				browser.Input("#name", q.Term),
				browser.Click("#submit"),
				browser.WaitAny("#results", "#noResults"),
			}
		},
		Parse: func(html, pageURL string, q models.Query) (*Outcome[entity], error) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				return nil, err
			}
			var out Outcome[entity]
			doc.Find("td.name").Each(func(_ int, s *goquery.Selection) {
				out.Records = append(out.Records, entity{Name: s.Text(), Jurisdiction: "us_de", SourceURL: pageURL})
			})
			return &out, nil
		},
	}
}

func runner(d browser.Driver, s *sleeps) *BrowserRunner {
	pool := browser.NewPool(d, browser.PoolConfig{})
	return &BrowserRunner{
		Pool:    pool,
		Factory: browser.NewFactory(browser.NewGenerator(1), browser.FactoryConfig{}),
		Loop:    resilience.CaptchaLoop{Ceiling: 3, BaseDelay: 2 * time.Second, Sleep: s.sleep},
	}
}

func TestBrowserAttemptClearsCaptchaOnThirdSession(t *testing.T) {
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session < 3 {
			return &browsertest.Page{Content: challengePage}
		}
		return &browsertest.Page{Content: resultsPage}
	}}
	s := &sleeps{}
	r := runner(d, s)
	defer r.Pool.Close()

	out, err := BrowserAttempt(r, testPlan())(context.Background(), models.Query{Term: "ACME"})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "ACME LLC", out.Records[0].Name)
	assert.Equal(t, "https://icis.example/search", out.Records[0].SourceURL)
	assert.Contains(t, out.Warnings, "captcha cleared after 3 sessions")

	assert.Equal(t, 3, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, s.all())
	browsers := d.Browsers()
	assert.Equal(t, 1, browsers[0].Closes())
	assert.Equal(t, 1, browsers[1].Closes())
	assert.Equal(t, 0, browsers[2].Closes())

	for _, b := range browsers {
		for _, p := range b.Opened() {
			assert.Equal(t, 1, p.Closes())
		}
	}
}

func TestBrowserAttemptCaptchaCeiling(t *testing.T) {
	d := &browsertest.Driver{Pages: func(int) *browsertest.Page {
		return &browsertest.Page{Content: challengePage}
	}}
	s := &sleeps{}
	r := runner(d, s)
	defer r.Pool.Close()

	_, err := BrowserAttempt(r, testPlan())(context.Background(), models.Query{Term: "ACME"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeCaptcha, models.CodeOf(err, ""))
	assert.Equal(t, 4, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, s.all())
}

func TestBrowserAttemptChallengeAfterSubmit(t *testing.T) {
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session == 1 {
			// The form loads clean; the challenge appears on submit.
			reads := 0
			return &browsertest.Page{HTMLFunc: func(int) (string, error) {
				reads++
				if reads == 1 {
					return "<html><form id=\"search\"></form></html>", nil
				}
				return challengePage, nil
			}, Errs: map[string]error{"WaitAny": context.DeadlineExceeded}}
		}
		return &browsertest.Page{Content: resultsPage}
	}}
	r := runner(d, &sleeps{})
	defer r.Pool.Close()

	out, err := BrowserAttempt(r, testPlan())(context.Background(), models.Query{Term: "ACME"})
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Equal(t, 2, d.Launches())
}

func TestBrowserAttemptChallengeOnLoad(t *testing.T) {
	d := &browsertest.Driver{Pages: func(session int) *browsertest.Page {
		if session == 1 {
			// The challenge replaces the form, so the open wait times out.
			return &browsertest.Page{Content: challengePage, Errs: map[string]error{"WaitAny": context.DeadlineExceeded}}
		}
		return &browsertest.Page{Content: resultsPage}
	}}
	plan := testPlan()
	plan.Open = func(models.Query) []browser.Step {
		return []browser.Step{browser.Navigate("https://icis.example/search"), browser.WaitAny("#name")}
	}
	s := &sleeps{}
	r := runner(d, s)
	defer r.Pool.Close()

	out, err := BrowserAttempt(r, plan)(context.Background(), models.Query{Term: "ACME"})
	require.NoError(t, err)
	assert.Len(t, out.Records, 1)
	assert.Contains(t, out.Warnings, "captcha cleared after 2 sessions")
	assert.Equal(t, 2, d.Launches())
	assert.Equal(t, []time.Duration{2 * time.Second}, s.all())
	assert.Equal(t, 1, d.Browsers()[0].Closes())
}

func TestBrowserAttemptStepFailureReleasesPage(t *testing.T) {
	page := &browsertest.Page{Content: resultsPage, Errs: map[string]error{
		"Click": models.NewScrapeError(models.ErrCodeNavigationTimeout, "click", context.DeadlineExceeded),
	}}
	d := &browsertest.Driver{Pages: func(int) *browsertest.Page { return page }}
	r := runner(d, &sleeps{})
	defer r.Pool.Close()

	_, err := BrowserAttempt(r, testPlan())(context.Background(), models.Query{Term: "ACME"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeNavigationTimeout, models.CodeOf(err, ""))
	assert.Equal(t, 1, page.Closes())
	assert.Equal(t, 0, r.Pool.Stats().ActiveLeases)
	assert.Equal(t, 1, d.Launches())
}

func TestBrowserAttemptUnavailable(t *testing.T) {
	r := runner(browser.Unavailable{Reason: "disabled"}, &sleeps{})
	defer r.Pool.Close()

	_, err := BrowserAttempt(r, testPlan())(context.Background(), models.Query{Term: "ACME"})
	assert.Equal(t, models.ErrCodeBrowserUnavailable, models.CodeOf(err, ""))
}
