// Package remote holds the typed REST clients the services use to talk to
// each other over the /internal/api/v1 protocol.
//
// Every call takes a context, forwards the caller's actor, request id and
// trace context, and reports failure as a *Error. Sibling services disagree on
// how "absent" is signaled (some answer false, some answer a 404 envelope);
// the existence helpers fold both into (false, nil) so callers only ever
// branch on one shape. There are no retries.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/saidovdiyorbek/threads/internal/actor"
	"github.com/saidovdiyorbek/threads/internal/observability"
)

// InternalPrefix is the path prefix of the service-to-service endpoints.
const InternalPrefix = "/internal/api/v1"

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

// Error is the single failure shape returned by every remote call.
//
// Status is 0 when no HTTP response was received (dial error, timeout); Err
// then holds the transport error. Code and Message are copied from the remote
// error envelope when one was returned.
type Error struct {
	Service string
	Op      string
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d code %d: %s", e.Service, e.Op, e.Status, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Service, e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports whether the remote answered with a domain not-found
// envelope. Route-level 404s (code 404) do not count: those mean the caller
// is misconfigured, not that the entity is absent.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound && e.Code > 0 && e.Code != http.StatusNotFound
}

// envelope mirrors the error body every service writes.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client talks to one sibling service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
}

// New builds a Client for service at baseURL with a per-call timeout.
func New(service, baseURL string, timeout time.Duration) *Client {
	return NewWithHTTPClient(service, baseURL, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient builds a Client around hc (for testing).
func NewWithHTTPClient(service, baseURL string, hc *http.Client) *Client {
	return &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// Service returns the name used in errors and metrics.
func (c *Client) Service() string { return c.service }

// do sends one JSON request and decodes a JSON answer into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	ctx, span := otel.Tracer("remote").Start(ctx, c.service+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", c.service),
			attribute.String("http.request.method", method),
		))
	defer func() {
		outcome := observability.OutcomeOK
		var re *Error
		if errors.As(err, &re) {
			outcome = observability.OutcomeError
			if re.NotFound() {
				outcome = observability.OutcomeNotFound
			}
			span.SetAttributes(attribute.Int("http.response.status_code", re.Status))
			span.SetStatus(codes.Error, re.Error())
		}
		observability.ObserveRemoteCall(c.service, op, outcome)
		span.End()
	}()

	var body io.Reader
	if in != nil {
		buf, mErr := json.Marshal(in)
		if mErr != nil {
			return c.fail(op, 0, fmt.Errorf("encode request: %w", mErr))
		}
		body = bytes.NewReader(buf)
	}

	req, rErr := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if rErr != nil {
		return c.fail(op, 0, fmt.Errorf("create request: %w", rErr))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a, ok := actor.From(ctx); ok {
		actor.Inject(req.Header, a)
	}
	if rid := observability.RequestIDFrom(ctx); rid != "" {
		req.Header.Set(observability.RequestIDHeader, rid)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log.Debug().
		Str("service", c.service).
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Msg("remote call")

	resp, dErr := c.http.Do(req)
	if dErr != nil {
		return c.fail(op, 0, dErr)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if readErr != nil {
		return c.fail(op, resp.StatusCode, fmt.Errorf("read body: %w", readErr))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		e := &Error{Service: c.service, Op: op, Status: resp.StatusCode}
		var env envelope
		if json.Unmarshal(raw, &env) == nil {
			e.Code, e.Message = env.Code, env.Message
		}
		return e
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if jErr := json.Unmarshal(raw, out); jErr != nil {
		return c.fail(op, resp.StatusCode, fmt.Errorf("decode response: %w", jErr))
	}
	return nil
}

// exists runs an existence call and folds a not-found envelope into false.
func (c *Client) exists(ctx context.Context, op, method, path string, in any) (bool, error) {
	var ok bool
	err := c.do(ctx, op, method, path, in, &ok)
	if err == nil {
		return ok, nil
	}
	var re *Error
	if errors.As(err, &re) && re.NotFound() {
		return false, nil
	}
	return false, err
}

func (c *Client) fail(op string, status int, err error) *Error {
	log.Warn().
		Err(err).
		Str("service", c.service).
		Str("op", op).
		Msg("remote call failed")
	return &Error{Service: c.service, Op: op, Status: status, Err: err}
}
