package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	fhttp "github.com/bogdanfinn/fhttp"
	tls_client "github.com/bogdanfinn/tls-client"
	"go.uber.org/zap"
)

const (
	// diagnosticPeekBytes bounds how much of a failed upstream body is
	// buffered for logging.
	diagnosticPeekBytes = 4096
	// diagnosticTextRunes is the length of a non-JSON diagnostic snippet.
	diagnosticTextRunes = 1000
)

// UpstreamResponse is the render service's reply, ready to be relayed. Body
// is a single-use stream; Close releases the upstream connection.
type UpstreamResponse struct {
	StatusCode int
	Header     fhttp.Header
	Body       io.Reader
	// Decoded is true when Body has had a Content-Encoding removed.
	Decoded bool

	closers  []io.Closer
	client   tls_client.HttpClient
	watchdog *readWatchdog
	cancel   context.CancelCauseFunc
}

// Close closes the body, stops the read watchdog and drops the per-request
// client's connections.
func (r *UpstreamResponse) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if r.watchdog != nil {
		r.watchdog.stop()
	}
	if r.cancel != nil {
		r.cancel(nil)
	}
	if r.client != nil {
		r.client.CloseIdleConnections()
	}
	return firstErr
}

// Forwarder authenticates /convert calls, bootstraps credentials and
// identity, and submits the payload to the render endpoint.
type Forwarder struct {
	apiKey        string
	renderURL     string
	homepage      string
	origin        string
	fieldDefaults FieldDefaults
	maxBodyBytes  int64
	readTimeout   time.Duration
	clientOptions ClientOptions

	status   *StatusClient
	policy   CredentialPolicy
	identity *IdentitySynthesizer
	proxies  *ProxyPool // optional
}

// NewForwarder wires a Forwarder from static configuration. proxies may be nil.
func NewForwarder(cfg *Config, identity *IdentitySynthesizer, proxies *ProxyPool) *Forwarder {
	return &Forwarder{
		apiKey:        cfg.APIKey,
		renderURL:     cfg.RenderURL,
		homepage:      cfg.Homepage,
		origin:        getOrigin(cfg.Homepage),
		fieldDefaults: cfg.FieldDefaults,
		maxBodyBytes:  cfg.MaxBodyBytes,
		readTimeout:   cfg.ReadTimeout,
		clientOptions: ClientOptions{
			ConnectTimeout: cfg.ConnectTimeout,
		},
		status:   NewStatusClient(cfg.StatusURL, cfg.ConnectTimeout, cfg.StatusTimeout, cfg.StatusCookieNames),
		policy:   NewCredentialPolicy(cfg.Policy),
		identity: identity,
		proxies:  proxies,
	}
}

// Handle runs the whole pipeline for one caller request. Every failure is
// returned as a *RequestError; no upstream call is made before the caller
// has been authenticated and the payload validated.
func (f *Forwarder) Handle(r *http.Request, logger *zap.Logger) (*UpstreamResponse, error) {
	if err := f.authorize(r); err != nil {
		return nil, err
	}

	renderReq, err := f.readRenderRequest(r)
	if err != nil {
		return nil, err
	}

	ctx := r.Context()

	creds, fetchErr := f.status.Fetch(ctx)
	if fetchErr == nil {
		logger.Info("fetched status",
			zap.Bool("cookie_present", creds.CookieString != ""),
			zap.Bool("token_present", creds.Token != ""))
	}

	resolved, err := f.policy.Resolve(creds, fetchErr)
	if err != nil {
		return nil, err
	}
	if resolved.FetchErr != nil {
		logger.Warn("status fetch failed, continuing without credentials",
			zap.String("policy", string(f.policy.Mode())),
			zap.String("cause", describeCause(resolved.FetchErr)))
	}

	identity := f.identity.Build()
	return f.send(ctx, renderReq, identity, resolved, logger)
}

// authorize accepts the shared secret in X-API-KEY or as a bearer token.
func (f *Forwarder) authorize(r *http.Request) error {
	key := r.Header.Get("X-API-KEY")
	if key == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			key = strings.TrimSpace(auth[7:])
		}
	}
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(f.apiKey)) != 1 {
		return NewAuthError("Invalid or missing X-API-KEY")
	}
	return nil
}

func (f *Forwarder) readRenderRequest(r *http.Request) (RenderRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" && !(strings.HasPrefix(mediaType, "application/") && strings.HasSuffix(mediaType, "+json")) {
		return RenderRequest{}, NewValidationError("Content-Type must be application/json")
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, f.maxBodyBytes+1))
	if err != nil {
		return RenderRequest{}, NewValidationError("failed to read request body")
	}
	if int64(len(data)) > f.maxBodyBytes {
		return RenderRequest{}, NewValidationError("request body too large")
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return RenderRequest{}, NewValidationError("request body must be a JSON object")
	}

	return BuildRenderRequest(body, f.fieldDefaults)
}

// renderHeaders merges identity, credential and fixed headers for the
// outbound POST.
func (f *Forwarder) renderHeaders(identity IdentityProfile, creds ResolvedCredentials) fhttp.Header {
	h := fhttp.Header{
		"user-agent":      {identity.UserAgent},
		"accept":          {"*/*"},
		"accept-language": {identity.AcceptLanguage},
		"content-type":    {"application/json"},
		"origin":          {f.origin},
		"referer":         {f.homepage},
		"dnt":             {"1"},
		"sec-fetch-site":  {"same-origin"},
		"sec-fetch-mode":  {"cors"},
		"sec-fetch-dest":  {"empty"},
	}

	if hints := identity.ClientHints; hints != nil {
		h["sec-ch-ua"] = []string{hints.Brand}
		h["sec-ch-ua-mobile"] = []string{hints.Mobile}
		h["sec-ch-ua-platform"] = []string{hints.Platform}
	}
	if identity.ForwardedFor != "" {
		h["x-forwarded-for"] = []string{identity.ForwardedFor}
	}
	if creds.CookieString != "" {
		h["cookie"] = []string{creds.CookieString}
	}
	if creds.Token != "" {
		h["requestverificationtoken"] = []string{creds.Token}
	}

	h[fhttp.HeaderOrderKey] = renderHeaderOrder
	h[fhttp.PHeaderOrderKey] = PseudoHeaderOrder
	return h
}

func (f *Forwarder) send(ctx context.Context, renderReq RenderRequest, identity IdentityProfile, creds ResolvedCredentials, logger *zap.Logger) (*UpstreamResponse, error) {
	payload, err := json.Marshal(renderReq)
	if err != nil {
		return nil, NewValidationError("failed to encode render payload")
	}

	opts := f.clientOptions
	proxyURL, proxyDisplay := f.proxies.Random()
	opts.ProxyURL = proxyURL

	client, err := NewRenderClient(nil, identity, opts)
	if err != nil {
		return nil, NewUpstreamTransportError("Failed to contact upstream service", err)
	}

	// The watchdog cancels the exchange when upstream sends nothing for
	// readTimeout, both while waiting for headers and between body reads.
	ctx, cancel := context.WithCancelCause(ctx)
	watchdog := newReadWatchdog(f.readTimeout, func() { cancel(errReadTimeout) })
	release := func() {
		watchdog.stop()
		cancel(nil)
		client.CloseIdleConnections()
	}

	req, err := fhttp.NewRequestWithContext(ctx, fhttp.MethodPost, f.renderURL, bytes.NewReader(payload))
	if err != nil {
		release()
		return nil, NewUpstreamTransportError("Failed to contact upstream service", err)
	}
	req.Header = f.renderHeaders(identity, creds)

	logger.Debug("render request",
		zap.String("user_agent", identity.UserAgent),
		zap.Bool("credentials_applied", creds.Applied),
		zap.String("proxy", proxyDisplay))

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if watchdog.fired() {
			err = errReadTimeout
		}
		release()
		logger.Error("error contacting upstream service",
			zap.String("cause", describeCause(err)),
			zap.Duration("duration", time.Since(start)))
		return nil, NewUpstreamTransportError("Failed to contact upstream service", err)
	}
	watchdog.touch()

	contentType := resp.Header.Get("Content-Type")
	logger.Info("upstream response",
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", contentType),
		zap.String("content_length", resp.Header.Get("Content-Length")),
		zap.Duration("duration", time.Since(start)))

	body, decoded := decodedBody(resp)
	upstream := &UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       &watchedReader{r: body, watchdog: watchdog},
		Decoded:    decoded,
		closers:    []io.Closer{body, resp.Body},
		client:     client,
		watchdog:   watchdog,
		cancel:     cancel,
	}

	if !strings.HasPrefix(contentType, "image/") && !isSuccess(resp.StatusCode) {
		upstream.Body = logDiagnosticSnippet(upstream.Body, logger)
	}
	return upstream, nil
}

// logDiagnosticSnippet logs the start of a non-image error body and returns
// a reader that still yields the complete body.
func logDiagnosticSnippet(body io.Reader, logger *zap.Logger) io.Reader {
	br := bufio.NewReaderSize(body, diagnosticPeekBytes)
	peeked, _ := br.Peek(diagnosticPeekBytes)

	var compact bytes.Buffer
	if err := json.Compact(&compact, peeked); err == nil {
		logger.Warn("upstream non-image JSON response", zap.String("body", compact.String()))
	} else {
		logger.Warn("upstream non-image text", zap.String("body", truncateRunes(peeked, diagnosticTextRunes)))
	}
	return br
}

func truncateRunes(b []byte, n int) string {
	if utf8.RuneCount(b) <= n {
		return string(b)
	}
	runes := []rune(string(b))
	return string(runes[:n])
}

func isSuccess(code int) bool {
	return code >= 200 && code <= 299
}
