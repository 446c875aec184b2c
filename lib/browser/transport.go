package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"pagekit/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
)

// Request is a single page fetch.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Form is sent urlencoded; Body is sent raw. Set at most one.
	Form map[string]string
	Body []byte
}

// Response is the transport-level result of a fetch.
type Response struct {
	StatusCode  int
	Header      http.Header
	FinalURL    string
	Body        []byte
	ContentType string
}

// HTTPError is a fetch that completed with a failure status.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d fetching %s", e.Status, e.URL)
}

var (
	// ErrTimeout is a fetch cancelled by deadline.
	ErrTimeout = errors.New("fetch timed out")
	// ErrConnection is a fetch that never produced a response.
	ErrConnection = errors.New("connection failed")
)

// Transport performs page fetches. The session never retries transport
// failures; cancellation and timeout are the transport's concern,
// bounded per fetch.
type Transport interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// TransportOptions configures the resty-backed production transport.
type TransportOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	// CloudflareBypass installs the anti-bot-page bypass round tripper.
	CloudflareBypass bool
	// TracerName enables otel instrumentation of every request.
	TracerName string
}

type restyTransport struct {
	client *resty.Client
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// NewTransport builds the production transport: cookie jar, redirects
// restricted to the site's domain, a per-fetch timeout.
func NewTransport(opts TransportOptions) (Transport, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client.SetHeader("user-agent", userAgent)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	if opts.CloudflareBypass {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	if opts.TracerName != "" {
		telemetry.InstrumentResty(client, opts.TracerName)
	}

	return &restyTransport{client: client}, nil
}

func (t *restyTransport) Fetch(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	r := t.client.R().SetContext(ctx).SetHeaders(req.Headers)
	if req.Form != nil {
		r.SetFormData(req.Form)
	} else if req.Body != nil {
		r.SetBody(req.Body)
	}

	res, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	if res.StatusCode() >= 400 {
		return nil, &HTTPError{Status: res.StatusCode(), URL: req.URL}
	}

	finalURL := req.URL
	if res.RawResponse != nil && res.RawResponse.Request != nil && res.RawResponse.Request.URL != nil {
		finalURL = res.RawResponse.Request.URL.String()
	}

	return &Response{
		StatusCode:  res.StatusCode(),
		Header:      res.Header(),
		FinalURL:    finalURL,
		Body:        res.Body(),
		ContentType: res.Header().Get("Content-Type"),
	}, nil
}

func classifyFetchError(err error) error {
	var netErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
}
