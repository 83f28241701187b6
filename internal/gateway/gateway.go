// Package gateway is the single public entry point of the system. It routes
// /api/v<N>/<service>/... to the service that owns the resource and forwards
// the request unchanged, caller headers included.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/saidovdiyorbek/threads/internal/observability"
)

// StatusServiceDown is the status field of the 503 body.
const StatusServiceDown = "SERVICE_DOWN"

var servicePattern = regexp.MustCompile(`^/api/v\d+/([^/]+)`)

// DownResponse is written when the upstream cannot be reached.
type DownResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// NotFoundResponse is written for paths that map to no service.
type NotFoundResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
}

// Gateway holds one reverse proxy per service path segment.
type Gateway struct {
	proxies map[string]*httputil.ReverseProxy
}

// New builds a Gateway from a map of path segment ("users", "posts", ...) to
// upstream base URL. transport may be nil to use http.DefaultTransport.
func New(upstreams map[string]string, transport http.RoundTripper) (*Gateway, error) {
	if len(upstreams) == 0 {
		return nil, errors.New("gateway: no upstreams configured")
	}
	g := &Gateway{proxies: make(map[string]*httputil.ReverseProxy, len(upstreams))}
	for name, raw := range upstreams {
		target, err := url.Parse(raw)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("gateway: invalid upstream URL for %s: %q", name, raw)
		}
		g.proxies[name] = newProxy(name, target, transport)
	}
	return g, nil
}

// Services returns the routed path segments, sorted.
func (g *Gateway) Services() []string {
	out := make([]string, 0, len(g.proxies))
	for name := range g.proxies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve returns the service segment of path, or "" when path is not a
// public API path.
func Resolve(path string) string {
	m := servicePattern.FindStringSubmatch(path)
	if m == nil {
		return ""
	}
	return m[1]
}

// Handle proxies the request to the owning service.
func (g *Gateway) Handle(c *gin.Context) {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, "/internal/") || path == "/internal" {
		notFound(c, "route not found")
		return
	}
	name := Resolve(path)
	proxy, ok := g.proxies[name]
	if !ok {
		notFound(c, "unknown service")
		return
	}
	if rid := c.Writer.Header().Get(observability.RequestIDHeader); rid != "" {
		c.Request.Header.Set(observability.RequestIDHeader, rid)
	}
	proxy.ServeHTTP(c.Writer, c.Request)
	c.Abort()
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, NotFoundResponse{
		RequestID: c.Writer.Header().Get(observability.RequestIDHeader),
		Code:      http.StatusNotFound,
		Message:   msg,
	})
}

func newProxy(name string, target *url.URL, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Transport: transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			otel.GetTextMapPropagator().Inject(pr.In.Context(), propagation.HeaderCarrier(pr.Out.Header))
		},
		ModifyResponse: func(resp *http.Response) error {
			observability.ObserveRemoteCall(name, "proxy", observability.OutcomeOK)
			log.Debug().
				Str("service", name).
				Str("path", resp.Request.URL.Path).
				Str("target", resp.Request.URL.String()).
				Int("status", resp.StatusCode).
				Msg("proxied")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			observability.ObserveRemoteCall(name, "proxy", observability.OutcomeError)
			log.Warn().
				Err(err).
				Str("service", name).
				Str("path", r.URL.Path).
				Msg("upstream unavailable")
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(DownResponse{
				Code:    http.StatusServiceUnavailable,
				Message: "Sorry, the " + name + " service is temporarily unavailable",
				Status:  StatusServiceDown,
			})
		},
	}
}
