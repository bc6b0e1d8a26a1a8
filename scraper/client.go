package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Credentials are the anti-bot cookie and user agent sent with every request.
type Credentials struct {
	PerimeterXKey string
	UserAgent     string
}

// Poster sends one payload to the search endpoint and returns the JSON body.
type Poster interface {
	Post(ctx context.Context, payload Payload) ([]byte, error)
}

// Client posts GraphQL payloads through a synchronous colly collector.
// Requests are strictly sequential; the limiter spaces them out further.
type Client struct {
	cfg       *config.Config
	endpoint  *url.URL
	collector *colly.Collector
	limiter   *rate.Limiter
	backoff   backoff
	Metrics   *Metrics

	requestCount int64

	mu    sync.Mutex
	creds Credentials
}

// NewClient builds a client configured from cfg.
func NewClient(cfg *config.Config, metrics *Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("endpoint must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	// Challenge pages arrive as 403s; they are classified from the body, not dropped.
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		cfg:       cfg,
		endpoint:  parsed,
		collector: collector,
		limiter:   rate.NewLimiter(limit, burst),
		backoff:   backoff{base: cfg.RetryBackoff, max: cfg.RetryBackoffMax},
		Metrics:   metrics,
	}
	c.configureHandlers()
	if err := c.SetCredentials(Credentials{PerimeterXKey: cfg.PerimeterXKey, UserAgent: cfg.UserAgent}); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCredentials replaces the cookie and user agent used for subsequent requests.
func (c *Client) SetCredentials(creds Credentials) error {
	if creds.UserAgent == "" {
		creds.UserAgent = config.DefaultUserAgent
	}
	cookies := []*http.Cookie{{Name: "_px", Value: creds.PerimeterXKey, Path: "/"}}
	if err := c.collector.SetCookies(c.endpoint.String(), cookies); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}

	c.mu.Lock()
	c.creds = creds
	c.collector.UserAgent = creds.UserAgent
	c.mu.Unlock()
	return nil
}

// Credentials returns the credentials currently in use.
func (c *Client) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// RequestCount returns the number of HTTP requests issued so far, retries included.
func (c *Client) RequestCount() int {
	return int(atomic.LoadInt64(&c.requestCount))
}

// Post sends payload and returns the response body. Transient network failures are retried
// with capped exponential backoff; anti-bot challenges are returned immediately.
func (c *Client) Post(ctx context.Context, payload Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	for attempt := 0; ; attempt++ {
		data, err := c.post(ctx, payload.OperationName, body)
		if err == nil {
			return data, nil
		}
		c.Metrics.IncError(errorKindLabel(err))

		var netErr ErrNetwork
		if !errors.As(err, &netErr) || !netErr.Temporary() || attempt >= c.cfg.MaxRetries {
			return nil, err
		}

		delay := c.backoff.delay(attempt + 1)
		c.Metrics.IncRetries()
		slog.Debug("retrying request",
			slog.String("operation", payload.OperationName),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) post(ctx context.Context, operation string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	creds := c.Credentials()
	hdr := http.Header{}
	hdr.Set("Content-Type", "application/json")
	hdr.Set("Accept", "application/json")
	hdr.Set("User-Agent", creds.UserAgent)

	reqCtx := colly.NewContext()
	reqCtx.Put("operation", operation)
	c.Metrics.IncRequest(operation)
	atomic.AddInt64(&c.requestCount, 1)

	// colly requests do not take ctx: a cancel during an in-flight POST is only noticed once
	// the collector's request timeout (Config.Timeout) expires or the response arrives.
	err := c.collector.Request(http.MethodPost, c.endpoint.String(), bytes.NewReader(body), reqCtx, hdr)
	resp, _ := reqCtx.GetAny("response").(*colly.Response)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, classifyTransportError(err, status)
	}
	if resp == nil {
		return nil, ErrNetwork{Err: errors.New("no response received")}
	}
	return classifyResponse(resp.StatusCode, resp.Headers, resp.Body)
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put("start", time.Now())
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put("response", r)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		if r.StatusCode >= http.StatusBadRequest {
			slog.Debug("non-2xx response",
				slog.Int("status", r.StatusCode),
				slog.String("operation", r.Ctx.Get("operation")),
			)
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put("response", r)
		if start, ok := r.Ctx.GetAny("start").(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
	})
}

// classifyResponse turns a completed HTTP exchange into a JSON body or a typed error.
func classifyResponse(status int, headers *http.Header, body []byte) ([]byte, error) {
	contentType := ""
	if headers != nil {
		contentType = strings.ToLower(headers.Get("Content-Type"))
	}

	if looksLikeHTML(contentType, body) || status == http.StatusForbidden || status == http.StatusTooManyRequests {
		title, _ := inspectChallenge(body)
		err := fmt.Errorf("challenge page (content-type %q)", contentType)
		return nil, ErrAntiBotBlock{Err: err, Status: status, Title: title}
	}
	if status >= http.StatusBadRequest {
		return nil, ErrNetwork{Err: fmt.Errorf("http status %d", status), Status: status}
	}
	return body, nil
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(contentType, "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '<'
}

// inspectChallenge extracts the page title of a challenge page and whether it carries
// PerimeterX captcha markup.
func inspectChallenge(body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	px := doc.Find("#px-captcha").Length() > 0
	doc.Find("script[src]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		src, _ := s.Attr("src")
		if strings.Contains(src, "px-cdn") || strings.Contains(src, "perimeterx") || strings.Contains(src, "captcha") {
			px = true
			return false
		}
		return true
	})
	return title, px
}
