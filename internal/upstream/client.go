// Package upstream contains HTTP clients for the services the order service
// depends on: the restaurant catalog and the branch notifier.
package upstream

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// maxBodySize caps how much of an upstream response is read.
const maxBodySize = 1 << 20

// Option configures an upstream client.
type Option func(*options)

type options struct {
	timeout        time.Duration
	base           http.RoundTripper
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTimeout sets the per-call timeout. Default is 5s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// WithTracerProvider sets the tracer provider for outbound spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider for outbound metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// baseClient holds the parsed service URL and the instrumented HTTP client.
type baseClient struct {
	base *url.URL
	http *http.Client
}

func newBaseClient(rawURL string, opts []Option) (baseClient, error) {
	u, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return baseClient{}, errors.Wrapf(err, "parse url %q", rawURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return baseClient{}, errors.Errorf("url %q must be absolute", rawURL)
	}

	o := options{timeout: 5 * time.Second, base: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}

	var otelOpts []otelhttp.Option
	if o.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracerProvider))
	}
	if o.meterProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.meterProvider))
	}

	return baseClient{
		base: u,
		http: &http.Client{
			Transport: otelhttp.NewTransport(o.base, otelOpts...),
			Timeout:   o.timeout,
		},
	}, nil
}

// endpoint joins path segments onto the base URL and attaches query.
func (c baseClient) endpoint(query url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do performs the request and returns the status code and body. Transport
// failures are returned as errors; HTTP error statuses are not.
func (c baseClient) do(ctx context.Context, method, target string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read body")
	}
	return resp.StatusCode, data, nil
}

// URL returns the base URL of the service.
func (c baseClient) URL() string {
	return c.base.String()
}
