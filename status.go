package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// tokenKeys is the ordered list of status-response keys that may carry the
// anti-forgery token. The first non-empty string wins.
var tokenKeys = []string{
	"requestVerificationToken",
	"__RequestVerificationToken",
	"RequestVerificationToken",
	"request_verification_token",
	"requestverificationtoken",
	"token",
}

// StatusCookie is one usable entry of the status response's "cookies" array.
type StatusCookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// UpstreamCredentials are the session credentials for a single render call.
// They are never cached or reused across requests.
type UpstreamCredentials struct {
	CookieString string // "a=b; c=d", possibly empty
	Token        string // empty when absent
}

// StatusClient fetches ephemeral session credentials from the status service.
type StatusClient struct {
	url         string
	timeout     time.Duration
	cookieNames []string // empty = join all cookies
	client      *fasthttp.Client
}

// NewStatusClient creates a status client. Each fetch is a single attempt.
func NewStatusClient(statusURL string, connectTimeout, timeout time.Duration, cookieNames []string) *StatusClient {
	return &StatusClient{
		url:         statusURL,
		timeout:     timeout,
		cookieNames: cookieNames,
		client: &fasthttp.Client{
			ReadTimeout:               timeout,
			WriteTimeout:              timeout,
			MaxIdemponentCallAttempts: 1,
			NoDefaultUserAgentHeader:  true,
			Dial: func(addr string) (net.Conn, error) {
				return fasthttp.DialTimeout(addr, connectTimeout)
			},
		},
	}
}

type statusResult struct {
	creds *UpstreamCredentials
	err   error
}

// Fetch issues one GET to the status endpoint. Missing or malformed cookies
// and token are represented in the result, not reported as errors; only
// transport failures, non-2xx responses and non-JSON bodies fail. Fetch
// returns as soon as ctx is done; the abandoned request still ends by its
// deadline.
func (c *StatusClient) Fetch(ctx context.Context) (*UpstreamCredentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan statusResult, 1)
	go func() {
		creds, err := c.do(deadline)
		done <- statusResult{creds: creds, err: err}
	}()

	select {
	case res := <-done:
		return res.creds, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *StatusClient) do(deadline time.Time) (*UpstreamCredentials, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		return nil, fmt.Errorf("status endpoint returned %d", code)
	}

	body, err := resp.BodyUncompressed()
	if err != nil {
		return nil, fmt.Errorf("failed to read status body: %w", err)
	}
	return parseStatusBody(body, c.cookieNames)
}

func parseStatusBody(body []byte, cookieNames []string) (*UpstreamCredentials, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse status response: %w", err)
	}

	return &UpstreamCredentials{
		CookieString: joinCookies(decodeStatusCookies(fields["cookies"]), cookieNames),
		Token:        extractToken(fields),
	}, nil
}

// decodeStatusCookies keeps the entries of a "cookies" array that have a
// string name and a scalar value. Numbers and booleans are used as written.
// Anything else, including a "cookies" value that is not an array, is
// skipped.
func decodeStatusCookies(raw json.RawMessage) []StatusCookie {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	cookies := make([]StatusCookie, 0, len(entries))
	for _, entry := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(entry, &fields); err != nil {
			continue
		}
		name := stringField(fields, "name")
		value, ok := scalarValue(fields["value"])
		if name == "" || !ok {
			continue
		}
		cookies = append(cookies, StatusCookie{
			Name:   name,
			Value:  value,
			Domain: stringField(fields, "domain"),
			Path:   stringField(fields, "path"),
		})
	}
	return cookies
}

// scalarValue renders a JSON string, number or boolean as cookie text.
func scalarValue(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[', 'n':
		return "", false
	default:
		return string(raw), true
	}
}

// joinCookies renders cookies as a Cookie header value. When names is
// non-empty only those cookies are kept.
func joinCookies(cookies []StatusCookie, names []string) string {
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if len(names) > 0 && !slices.Contains(names, c.Name) {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

// extractToken walks tokenKeys in order, then falls back to any key whose
// name contains "token" or "verification" (case-insensitive, keys sorted
// for a stable choice).
func extractToken(fields map[string]json.RawMessage) string {
	for _, key := range tokenKeys {
		if token := stringField(fields, key); token != "" {
			return token
		}
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "token") && !strings.Contains(lower, "verification") {
			continue
		}
		if token := stringField(fields, key); token != "" {
			return token
		}
	}
	return ""
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
