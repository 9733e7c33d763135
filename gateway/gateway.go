// Package gateway is the single outbound call path to the back-office
// REST API. It reads the bearer credential from the session store,
// normalizes every response into one envelope shape, and enforces the
// fail-fast policy: a call that cannot or may no longer be authenticated
// clears the session instead of proceeding.
//
// The gateway never navigates. Session invalidation is published through
// the store's watchers; the route guard turns it into a redirect.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/cartstack/backoffice-go/session"
	"github.com/elnormous/contenttype"
	"github.com/google/uuid"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

const (
	requestIDHeader = "X-Request-Id"

	// fallback messages for failures with no usable structured body
	fallbackRequestFailed = "request failed"
	fallbackUnreachable   = "the server could not be reached"
	fallbackExpired       = "your session has expired, please sign in again"
)

// maxResponseBody bounds how much of a response the gateway will buffer.
const maxResponseBody = 8 << 20

// Gateway issues API calls on behalf of the typed services. It is safe
// for concurrent use; multiple calls may be in flight at once.
type Gateway struct {
	base    *url.URL
	hc      *http.Client
	store   *session.Store
	log     *slog.Logger
	metrics *Metrics
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) { g.hc = hc }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(g *Gateway) { g.log = log }
}

// WithMetrics attaches prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a Gateway targeting baseURL, reading credentials from store.
func New(baseURL string, store *session.Store, opts ...Option) (*Gateway, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	g := &Gateway{
		base:  base,
		hc:    &http.Client{Timeout: 30 * time.Second},
		store: store,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Do performs one call. On success it returns the decoded envelope; every
// failure mode resolves to a normalized *Error, so transport trouble never
// propagates raw. Only credential-missing and session-expiry mutate state
// beyond the return value: both clear the session exactly once.
func (g *Gateway) Do(ctx context.Context, req Request) (*Result, error) {
	generation := g.store.Generation()

	if req.AuthRequired && g.store.Token() == "" {
		// Fail fast: don't send a doomed request, and make sure no stale
		// protected content survives without a credential behind it.
		if g.store.Invalidate(ctx, "missing credential") {
			g.metrics.observeInvalidation()
		}
		g.metrics.observeRequest(outcomeCredentialMissing)
		return nil, newError("", "authentication required", ErrCredentialMissing)
	}

	httpReq, err := g.buildRequest(ctx, req)
	if err != nil {
		g.metrics.observeRequest(outcomeError)
		return nil, newError("", fallbackRequestFailed, err)
	}

	requestID := httpReq.Header.Get(requestIDHeader)
	start := time.Now()

	resp, err := g.hc.Do(httpReq)
	if err != nil {
		g.log.WarnContext(ctx, "api.call.network_error",
			slog.String("method", httpReq.Method),
			slog.String("path", req.Path),
			slog.String("request_id", requestID),
			slog.Any("err", err))
		g.metrics.observeRequest(outcomeNetwork)
		return nil, newError("", fallbackUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		g.metrics.observeRequest(outcomeNetwork)
		return nil, newError("", fallbackUnreachable, err)
	}

	env := decodeEnvelope(resp, body)

	g.log.DebugContext(ctx, "api.call",
		slog.String("method", httpReq.Method),
		slog.String("path", req.Path),
		slog.String("request_id", requestID),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("status", env.Status),
		slog.Duration("elapsed", time.Since(start)))

	// Session expiry from any call terminates the whole session, exactly
	// once across concurrent calls.
	if isExpiry(resp, env) {
		if g.store.Invalidate(ctx, "session expired") {
			g.metrics.observeInvalidation()
		}
		g.metrics.observeRequest(outcomeExpired)
		return nil, newError(env.Message, fallbackExpired, ErrSessionExpired)
	}

	// A result that resolved under a different session than it was issued
	// under must not reach the caller; a late success could otherwise
	// repaint protected state after logout.
	if g.store.Generation() != generation {
		g.metrics.observeRequest(outcomeStale)
		return nil, newError("", "session changed while the request was in flight", ErrStaleResult)
	}

	if failed(resp, env) {
		g.metrics.observeRequest(outcomeError)
		return nil, newError(env.Message, fallbackRequestFailed, nil)
	}

	g.metrics.observeRequest(outcomeOK)
	return &Result{Status: env.Status, Message: env.Message, Data: env.Data}, nil
}

func (g *Gateway) buildRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := g.base.JoinPath(req.Path)
	if len(req.Query) > 0 {
		q := target.Query()
		for key, vals := range req.Query {
			for _, v := range vals {
				q.Add(key, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Multipart != nil && req.Body != nil:
		return nil, fmt.Errorf("request has both Body and Multipart")
	case req.Multipart != nil:
		buf := &bytes.Buffer{}
		w := multipart.NewWriter(buf)
		for field, value := range req.Multipart.Fields {
			if err := w.WriteField(field, value); err != nil {
				return nil, fmt.Errorf("write form field %q: %w", field, err)
			}
		}
		for _, f := range req.Multipart.Files {
			part, err := w.CreateFormFile(f.Field, f.Name)
			if err != nil {
				return nil, fmt.Errorf("create form file %q: %w", f.Field, err)
			}
			if _, err := io.Copy(part, f.Content); err != nil {
				return nil, fmt.Errorf("read file %q: %w", f.Name, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("finish multipart body: %w", err)
		}
		body = buf
		// Boundary-bearing content type comes from the writer, never from
		// a caller-set header.
		contentType = w.FormDataContentType()
	case req.Body != nil:
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, err
	}

	for key, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(key, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, uuid.NewString())

	if req.AuthRequired {
		httpReq.Header.Set("Authorization", "Bearer "+g.store.Token())
	}

	return httpReq, nil
}

// decodeEnvelope normalizes a response body into the envelope shape. A
// non-JSON or undecodable body yields an envelope carrying only the HTTP
// status, so downstream handling stays uniform.
func decodeEnvelope(resp *http.Response, body []byte) Envelope {
	env := Envelope{Status: resp.StatusCode}

	ctype := contenttype.NewMediaType(resp.Header.Get("Content-Type"))
	if !ctype.Matches(jsonMediaType) {
		return env
	}

	var decoded Envelope
	if err := json.Unmarshal(body, &decoded); err != nil {
		return env
	}
	if decoded.Status == 0 {
		decoded.Status = resp.StatusCode
	}
	return decoded
}

// isExpiry reports whether the response signals an invalidated session,
// whether through the transport status or the embedded status marker.
func isExpiry(resp *http.Response, env Envelope) bool {
	return resp.StatusCode == http.StatusUnauthorized || env.Status == http.StatusUnauthorized
}

func failed(resp *http.Response, env Envelope) bool {
	if resp.StatusCode >= 400 || env.Status >= 400 {
		return true
	}
	return env.Success != nil && !*env.Success
}
