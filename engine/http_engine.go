package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/html"

	"github.com/use-agent/regscout/config"
	"github.com/use-agent/regscout/models"
	"github.com/use-agent/regscout/resilience"
)

// maxBody bounds every response read by the fetcher.
const maxBody = 10 << 20

// FetchRequest describes one registry page request.
type FetchRequest struct {
	URL     string
	Method  string // default GET
	Form    url.Values
	Headers map[string]string
}

// FetchResult is a fetched HTML page.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
}

// HTTPFetcher is the plain-HTTP stage transport. It presents a Chrome TLS
// ClientHello, waits on a per-host politeness limiter and retries throttled
// or failed requests with exponential backoff.
type HTTPFetcher struct {
	client    *http.Client
	limits    *HostLimits
	attempts  int
	baseDelay time.Duration
	sleep     resilience.Sleeper
}

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var chromeH1Spec tls.ClientHelloSpec

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithFetchSleeper replaces the backoff sleeper.
func WithFetchSleeper(s resilience.Sleeper) FetcherOption {
	return func(f *HTTPFetcher) { f.sleep = s }
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// NewHTTPFetcher builds a fetcher from the HTTP and scraper settings.
func NewHTTPFetcher(hc config.HTTPConfig, sc config.ScraperConfig, limits *HostLimits, opts ...FetcherOption) *HTTPFetcher {
	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("http_fetcher: apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if hc.Proxy != "" {
		if u, err := url.Parse(hc.Proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			slog.Warn("ignoring invalid http proxy", "proxy", hc.Proxy, "error", err)
		}
	}

	f := &HTTPFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   hc.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		limits:    limits,
		attempts:  sc.RetryAttempts,
		baseDelay: sc.RetryBaseDelay,
		sleep:     resilience.SleepContext,
	}
	for _, o := range opts {
		o(f)
	}
	if f.attempts < 1 {
		f.attempts = 1
	}
	return f
}

// Fetch retrieves one page. Rate limits, timeouts and 5xx responses are
// retried; a CAPTCHA page or a 4xx response is returned at once.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	res, err := resilience.WithRetry(ctx, func(ctx context.Context) (*FetchResult, error) {
		return f.once(ctx, req)
	}, f.attempts, f.baseDelay, resilience.WithSleeper(f.sleep), resilience.WithName("http "+req.URL))
	if err != nil {
		return nil, classifyFetchError(err)
	}
	return res, nil
}

func (f *HTTPFetcher) once(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, resilience.Permanent(models.NewScrapeError(models.ErrCodeHTTPFailure, "bad url", err))
	}
	if f.limits != nil {
		if err := f.limits.Wait(ctx, u.Hostname()); err != nil {
			return nil, resilience.Permanent(err)
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Form != nil && method != http.MethodGet {
		body = strings.NewReader(req.Form.Encode())
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, resilience.Permanent(models.NewScrapeError(models.ErrCodeHTTPFailure, "build request", err))
	}
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36")
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	httpReq.Header.Set("Accept-Language", "en-US,en;q=0.9")
	httpReq.Header.Set("Accept-Encoding", "identity")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, resilience.Permanent(err)
		}
		// Client timeouts and resets are worth another try.
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("http_fetcher: read body: %w", err)
	}

	if resilience.DetectRateLimit(resp.StatusCode, raw) {
		return nil, models.NewScrapeError(models.ErrCodeRateLimited,
			fmt.Sprintf("status %d from %s", resp.StatusCode, u.Hostname()), resilience.ErrRateLimited)
	}
	page := string(raw)
	if err := resilience.CheckCaptcha(page); err != nil {
		return nil, resilience.Permanent(models.NewScrapeError(models.ErrCodeCaptcha, u.Hostname(), err))
	}
	switch {
	case resp.StatusCode >= 500:
		return nil, models.NewScrapeError(models.ErrCodeHTTPFailure, fmt.Sprintf("status %d", resp.StatusCode), nil)
	case resp.StatusCode >= 400:
		return nil, resilience.Permanent(models.NewScrapeError(models.ErrCodeHTTPFailure, fmt.Sprintf("status %d", resp.StatusCode), nil))
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !isHTMLContentType(ct) {
		return nil, resilience.Permanent(models.NewScrapeError(models.ErrCodeHTTPFailure, "non-html content-type "+ct, nil))
	}

	return &FetchResult{
		HTML:       page,
		Title:      extractTitle(page),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// classifyFetchError keeps the code of a coded error and maps bare transport
// failures to HTTP_FAILURE or NAVIGATION_TIMEOUT.
func classifyFetchError(err error) error {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return err
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return models.NewScrapeError(models.ErrCodeNavigationTimeout, "http fetch timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeHTTPFailure, "http fetch failed", err)
}

// isHTMLContentType returns true if the content-type header looks like HTML.
func isHTMLContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}

// extractTitle uses the Go HTML tokenizer to find the first <title> element.
func extractTitle(htmlStr string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(htmlStr))
	inTitle := false
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "title" {
				inTitle = true
			}
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(tokenizer.Text()))
			}
		case html.EndTagToken:
			if inTitle {
				return ""
			}
		}
	}
}
