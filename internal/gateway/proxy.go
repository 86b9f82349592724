package gateway

import (
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// WelcomeMessage is returned by GET /.
const WelcomeMessage = "Welcome to Food Delivery Gateway!"

// Options configures a Gateway.
type Options struct {
	// Backends maps backend names to base URLs.
	Backends map[string]string
	// Routes defaults to DefaultRoutes.
	Routes []Route
	// Transport defaults to a clone of http.DefaultTransport.
	Transport http.RoundTripper
	// ResponseHeaderTimeout bounds the wait for backend response headers
	// when Transport is not set.
	ResponseHeaderTimeout time.Duration
	Metrics               *Metrics
}

// Gateway forwards requests to backends by path prefix.
type Gateway struct {
	table    *Table
	backends map[string]http.Handler
	metrics  *Metrics
}

// New builds a Gateway. Every backend referenced by a route must have a URL.
func New(opts Options) (*Gateway, error) {
	if opts.Routes == nil {
		opts.Routes = DefaultRoutes()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.Transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
		opts.Transport = t
	}
	table, err := NewTable(opts.Routes)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		table:    table,
		backends: make(map[string]http.Handler),
		metrics:  opts.Metrics,
	}
	for _, name := range table.Backends() {
		raw, ok := opts.Backends[name]
		if !ok || raw == "" {
			return nil, errors.Errorf("no URL for backend %q", name)
		}
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, errors.Errorf("invalid URL for backend %q: %q", name, raw)
		}
		g.backends[name] = g.metrics.instrument(name, g.proxy(name, target, opts.Transport))
	}
	return g, nil
}

func (g *Gateway) proxy(name string, target *url.URL, rt http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// SetURL also points Host at the backend.
			pr.SetURL(target)
			pr.Out.Header.Del("Content-Length")
			// Client forwarding headers are passed on as sent.
			for _, h := range forwardingHeaders {
				if v, ok := pr.In.Header[h]; ok {
					pr.Out.Header[h] = v
				}
			}
		},
		// The gateway owns the CORS policy; backend copies would duplicate it.
		ModifyResponse: func(resp *http.Response) error {
			for h := range resp.Header {
				if strings.HasPrefix(h, "Access-Control-") {
					resp.Header.Del(h)
				}
			}
			return nil
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status, detail, kind := http.StatusInternalServerError, "Internal Gateway Error", "internal"
			if isDialError(err) {
				status, detail, kind = http.StatusServiceUnavailable, "Service Unavailable", "unavailable"
			}
			g.metrics.failure(name, kind)
			zctx.From(r.Context()).Warn("Backend request failed",
				zap.String("backend", name),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Error(err),
			)
			writeDetail(w, status, detail)
		},
	}
}

// forwardingHeaders are stripped by ReverseProxy before Rewrite runs.
var forwardingHeaders = []string{
	"Forwarded",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
}

// isDialError reports whether the backend could not be reached at all.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// ServeHTTP routes r to its backend.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			writeDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		writeJSON(w, http.StatusOK, welcome())
		return
	}
	name, ok := g.table.Match(r.URL.Path)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	g.backends[name].ServeHTTP(w, r)
}

func welcome() []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("message")
	e.Str(WelcomeMessage)
	e.ObjEnd()
	return e.Bytes()
}

// writeDetail writes the gateway error shape {"detail": msg}.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("detail")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
