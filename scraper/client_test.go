package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/jarcoal/httpmock"
)

const testEndpoint = "http://octopart.test/api/v4/internal"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Endpoint = testEndpoint
	cfg.PerimeterXKey = "px-initial"
	cfg.RequestsPerSecond = 0
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 2 * time.Millisecond
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestClient(t *testing.T, cfg *config.Config, responder httpmock.Responder) *Client {
	t.Helper()
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, cfg.Endpoint, responder)

	c, err := NewClient(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.collector.WithTransport(transport)
	return c
}

func jsonResponder(status int, body string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "application/json")
		return resp, nil
	}
}

func htmlResponder(status int, body string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

const challengePage = `<!DOCTYPE html><html><head><title>Access to this page has been denied</title>
<script src="https://client.px-cdn.net/PXabc/main.min.js"></script></head>
<body><div id="px-captcha"></div></body></html>`

func TestBackoffCapped(t *testing.T) {
	b := backoff{base: 200 * time.Millisecond, max: 500 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 200 * time.Millisecond},
		{attempt: 1, want: 200 * time.Millisecond},
		{attempt: 2, want: 400 * time.Millisecond},
		{attempt: 3, want: 500 * time.Millisecond},
		{attempt: 10, want: 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := b.delay(tt.attempt); got != tt.want {
			t.Fatalf("delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClassifyTransportError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "network"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "network"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "network"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "network"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "anti_bot"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "anti_bot"},
		{name: "not found", err: errors.New("Not Found"), statusCode: http.StatusNotFound, expected: "network"},
		{name: "canceled", err: context.Canceled, statusCode: 0, expected: "canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorKindLabel(classifyTransportError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyTransportError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestErrNetworkTemporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{status: 0, want: true},
		{status: http.StatusBadGateway, want: true},
		{status: http.StatusNotFound, want: false},
		{status: http.StatusBadRequest, want: false},
	}
	for _, tt := range tests {
		if got := (ErrNetwork{Err: errors.New("x"), Status: tt.status}).Temporary(); got != tt.want {
			t.Fatalf("Temporary() for status %d = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestClientPostReturnsJSON(t *testing.T) {
	cfg := testConfig()
	var gotCookie, gotAgent, gotType string
	c := newTestClient(t, cfg, func(req *http.Request) (*http.Response, error) {
		if ck, err := req.Cookie("_px"); err == nil {
			gotCookie = ck.Value
		}
		gotAgent = req.Header.Get("User-Agent")
		gotType = req.Header.Get("Content-Type")
		return jsonResponder(http.StatusOK, `{"data":{"search":{"hits":0,"results":[]}}}`)(req)
	})

	body, err := c.Post(context.Background(), PartsQuery("6332", nil, 0, 100))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !strings.Contains(string(body), `"hits":0`) {
		t.Fatalf("unexpected body %s", body)
	}
	if gotCookie != "px-initial" {
		t.Fatalf("_px cookie = %q, want px-initial", gotCookie)
	}
	if gotAgent != config.DefaultUserAgent {
		t.Fatalf("user agent = %q", gotAgent)
	}
	if gotType != "application/json" {
		t.Fatalf("content type = %q", gotType)
	}
	if got := c.RequestCount(); got != 1 {
		t.Fatalf("request count = %d, want 1", got)
	}
}

func TestClientSetCredentials(t *testing.T) {
	cfg := testConfig()
	var gotCookie, gotAgent string
	c := newTestClient(t, cfg, func(req *http.Request) (*http.Response, error) {
		if ck, err := req.Cookie("_px"); err == nil {
			gotCookie = ck.Value
		}
		gotAgent = req.Header.Get("User-Agent")
		return jsonResponder(http.StatusOK, `{"data":{}}`)(req)
	})

	if err := c.SetCredentials(Credentials{PerimeterXKey: "px-renewed", UserAgent: "agent/2.0"}); err != nil {
		t.Fatalf("set credentials: %v", err)
	}
	if _, err := c.Post(context.Background(), BucketQuery("6332", "capacitance")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if gotCookie != "px-renewed" {
		t.Fatalf("_px cookie = %q, want px-renewed", gotCookie)
	}
	if gotAgent != "agent/2.0" {
		t.Fatalf("user agent = %q, want agent/2.0", gotAgent)
	}
	if got := c.Credentials().PerimeterXKey; got != "px-renewed" {
		t.Fatalf("credentials = %q", got)
	}
}

func TestClientResponseClassification(t *testing.T) {
	tests := []struct {
		name      string
		responder httpmock.Responder
		wantKind  string
		wantCalls int
		wantTitle string
	}{
		{
			name:      "challenge page",
			responder: htmlResponder(http.StatusForbidden, challengePage),
			wantKind:  "anti_bot",
			wantCalls: 1,
			wantTitle: "Access to this page has been denied",
		},
		{
			name:      "html with 200",
			responder: htmlResponder(http.StatusOK, "<html><head><title>Please verify</title></head></html>"),
			wantKind:  "anti_bot",
			wantCalls: 1,
			wantTitle: "Please verify",
		},
		{
			name:      "rate limited",
			responder: jsonResponder(http.StatusTooManyRequests, `{}`),
			wantKind:  "anti_bot",
			wantCalls: 1,
		},
		{
			name:      "server error retried",
			responder: jsonResponder(http.StatusBadGateway, `{}`),
			wantKind:  "network",
			wantCalls: 3,
		},
		{
			name:      "not found not retried",
			responder: jsonResponder(http.StatusNotFound, `{}`),
			wantKind:  "network",
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			calls := 0
			c := newTestClient(t, cfg, func(req *http.Request) (*http.Response, error) {
				calls++
				return tt.responder(req)
			})

			_, err := c.Post(context.Background(), BucketQuery("6332", "capacitance"))
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := errorKindLabel(err); got != tt.wantKind {
				t.Fatalf("error kind = %q, want %q (%v)", got, tt.wantKind, err)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantTitle != "" {
				var block ErrAntiBotBlock
				if !errors.As(err, &block) {
					t.Fatalf("expected ErrAntiBotBlock, got %T", err)
				}
				if block.Title != tt.wantTitle {
					t.Fatalf("title = %q, want %q", block.Title, tt.wantTitle)
				}
			}
		})
	}
}

func TestClientRetryRecovers(t *testing.T) {
	cfg := testConfig()
	calls := 0
	c := newTestClient(t, cfg, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return jsonResponder(http.StatusServiceUnavailable, `{}`)(req)
		}
		return jsonResponder(http.StatusOK, `{"data":{}}`)(req)
	})

	if _, err := c.Post(context.Background(), BucketQuery("6332", "capacitance")); err != nil {
		t.Fatalf("post: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestInspectChallenge(t *testing.T) {
	title, px := inspectChallenge([]byte(challengePage))
	if title != "Access to this page has been denied" {
		t.Fatalf("title = %q", title)
	}
	if !px {
		t.Fatalf("expected PerimeterX markers to be detected")
	}

	if _, px := inspectChallenge([]byte("<html><title>Maintenance</title></html>")); px {
		t.Fatalf("plain page flagged as PerimeterX")
	}
}
