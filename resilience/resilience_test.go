package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/regscout/models"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestWithRetryDelays(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		n := n
		t.Run(fmt.Sprintf("attempts=%d", n), func(t *testing.T) {
			sl := &recordingSleeper{}
			calls := 0
			_, err := WithRetry(context.Background(), func(context.Context) (int, error) {
				calls++
				return 0, errors.New("boom")
			}, n, time.Second, WithSleeper(sl.Sleep))

			var re *RetryError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, n, re.Attempts)
			assert.Equal(t, n, calls)
			require.Len(t, sl.delays, n-1)
			for i, d := range sl.delays {
				assert.Equal(t, time.Duration(1000*(1<<i))*time.Millisecond, d)
			}
		})
	}
}

func TestWithRetrySucceedsMidway(t *testing.T) {
	sl := &recordingSleeper{}
	calls := 0
	v, err := WithRetry(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}, 5, time.Second, WithSleeper(sl.Sleep))

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sl.delays)
}

func TestWithRetryPermanent(t *testing.T) {
	sentinel := errors.New("bad request")
	calls := 0
	_, err := WithRetry(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	}, 4, time.Millisecond)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)
	var re *RetryError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 1, re.Attempts)
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithRetry(ctx, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	}, 3, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectCaptcha(t *testing.T) {
	assert.True(t, DetectCaptcha(`<div class="g-recaptcha" data-sitekey="x"></div>`))
	assert.True(t, DetectCaptcha(`<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script>`))
	assert.True(t, DetectCaptcha(`<h1>Please verify you are human</h1>`))
	assert.True(t, DetectCaptcha(`<img id="ctl00_BDC_CaptchaImage">`))
	assert.False(t, DetectCaptcha(`<table><tr><td>ACME LLC</td></tr></table>`))
	assert.ErrorIs(t, CheckCaptcha(`<div class="h-captcha"></div>`), ErrCaptcha)
	assert.NoError(t, CheckCaptcha(`<p>results</p>`))
}

func TestCaptchaLoopClearsOnThirdCheck(t *testing.T) {
	sl := &recordingSleeper{}
	loop := CaptchaLoop{Ceiling: 3, BaseDelay: 2 * time.Second, Sleep: sl.Sleep}

	var sessions []int
	v, n, err := RunCaptchaLoop(context.Background(), loop, func(_ context.Context, attempt int) (string, error) {
		sessions = append(sessions, attempt)
		if attempt < 3 {
			return "", CheckCaptcha(`<div class="g-recaptcha"></div>`)
		}
		return "rows", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "rows", v)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int{1, 2, 3}, sessions)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, sl.delays)
}

func TestCaptchaLoopCeiling(t *testing.T) {
	sl := &recordingSleeper{}
	loop := CaptchaLoop{Ceiling: 3, BaseDelay: 2 * time.Second, Sleep: sl.Sleep}

	calls := 0
	_, n, err := RunCaptchaLoop(context.Background(), loop, func(context.Context, int) (int, error) {
		calls++
		return 0, ErrCaptcha
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptcha)
	assert.Equal(t, models.ErrCodeCaptcha, models.CodeOf(err, ""))
	assert.Equal(t, 4, calls)
	assert.Equal(t, 4, n)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, sl.delays)
}

func TestCaptchaLoopOtherErrorStops(t *testing.T) {
	boom := errors.New("navigation failed")
	calls := 0
	_, _, err := RunCaptchaLoop(context.Background(), DefaultCaptchaLoop(), func(context.Context, int) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDetectRateLimit(t *testing.T) {
	assert.True(t, DetectRateLimit(429, nil))
	assert.True(t, DetectRateLimit(503, []byte("Too Many Requests, slow down")))
	assert.True(t, DetectRateLimit(200, []byte("<h1>You have been temporarily blocked</h1>")))
	assert.True(t, DetectRateLimit(403, []byte("Request limit exceeded")))
	assert.False(t, DetectRateLimit(403, []byte("Forbidden")))
	assert.False(t, DetectRateLimit(503, []byte("maintenance")))
	assert.False(t, DetectRateLimit(404, []byte("rate limit")))
	assert.False(t, DetectRateLimit(200, []byte("<table>results</table>")))
}

const fixtureHTML = `<html><body>
<div class="legacy-result"><span class="corp-name">OLD MARKUP INC</span></div>
<table id="search-results"><tr><td class="name"> ACME LLC </td><td><a href="/doc/1">detail</a></td></tr></table>
</body></html>`

func TestFieldSelectorsFallback(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixtureHTML))
	require.NoError(t, err)

	primary := MustFieldSelectors("name", "td.entity-name", "td.name", "span.corp-name")
	found, idx := primary.Match(doc.Selection)
	assert.Equal(t, 1, idx)
	assert.Equal(t, "ACME LLC", strings.TrimSpace(found.Text()))

	legacy := MustFieldSelectors("name", "td.entity-name", "span.corp-name")
	assert.Equal(t, "OLD MARKUP INC", legacy.Text(doc.Selection))

	link := MustFieldSelectors("link", "a.detail", "td a[href]")
	assert.Equal(t, "/doc/1", link.Attr(doc.Selection, "href"))

	none := MustFieldSelectors("agent", "td.agent", "span.agent")
	got, idx := none.Match(doc.Selection)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 0, got.Length())
	assert.Equal(t, "", none.Text(doc.Selection))
}

func TestFieldSelectorsScopedToRow(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<table>
<tr class="row"><td>1</td><td><a href="/a">ALPHA</a></td></tr>
<tr class="row"><td>2</td><td>BETA</td></tr>
</table>`))
	require.NoError(t, err)

	rows := MustFieldSelectors("row", "tr.result", "table tr.row, tr.legacy")
	name := MustFieldSelectors("name", "td:nth-child(2) a", "td:nth-child(2)")

	var names []string
	rows.Find(doc.Selection).Each(func(_ int, row *goquery.Selection) {
		names = append(names, name.Text(row))
	})
	assert.Equal(t, []string{"ALPHA", "BETA"}, names)
}

func TestNewFieldSelectorsInvalid(t *testing.T) {
	_, err := NewFieldSelectors("bad", "td[")
	assert.Error(t, err)
	assert.Panics(t, func() { MustFieldSelectors("bad", "td[") })
}
