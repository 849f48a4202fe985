package main

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestAuthorize(t *testing.T) {
	f := &Forwarder{apiKey: "secret"}

	tests := []struct {
		name   string
		header map[string]string
		ok     bool
	}{
		{"x-api-key", map[string]string{"X-API-KEY": "secret"}, true},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, true},
		{"bearer lowercase", map[string]string{"Authorization": "bearer secret"}, true},
		{"basic scheme", map[string]string{"Authorization": "Basic secret"}, false},
		{"wrong key", map[string]string{"X-API-KEY": "secrets"}, false},
		{"none", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/convert", nil)
			for k, v := range tt.header {
				r.Header.Set(k, v)
			}
			err := f.authorize(r)
			if (err == nil) != tt.ok {
				t.Errorf("authorize() error = %v, want ok=%v", err, tt.ok)
			}
			if err != nil && errorKind(err) != KindAuth {
				t.Errorf("kind = %s, want auth", errorKind(err))
			}
		})
	}
}

func TestReadRenderRequestContentTypes(t *testing.T) {
	f := &Forwarder{maxBodyBytes: 1024, fieldDefaults: FieldDefaultsOmit}

	for ct, ok := range map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"application/vnd.api+json":        true,
		"text/plain":                      false,
		"":                                false,
	} {
		r := httptest.NewRequest("POST", "/convert", strings.NewReader(`{"html":"x"}`))
		if ct != "" {
			r.Header.Set("Content-Type", ct)
		}
		_, err := f.readRenderRequest(r)
		if (err == nil) != ok {
			t.Errorf("Content-Type %q: error = %v, want ok=%v", ct, err, ok)
		}
	}
}

func TestRenderHeaders(t *testing.T) {
	f := &Forwarder{origin: "https://example.com", homepage: "https://example.com/"}
	identity := IdentityProfile{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
		AcceptLanguage: "en-GB,en;q=0.9",
	}

	h := f.renderHeaders(identity, ResolvedCredentials{})
	for _, name := range []string{"cookie", "requestverificationtoken", "x-forwarded-for", "sec-ch-ua"} {
		if _, ok := h[name]; ok {
			t.Errorf("header %s set without a value to send", name)
		}
	}
	if h["origin"][0] != "https://example.com" || h["referer"][0] != "https://example.com/" {
		t.Errorf("origin=%v referer=%v", h["origin"], h["referer"])
	}

	identity.ClientHints = &ClientHints{Brand: "b", Mobile: "?0", Platform: `"Windows"`}
	identity.ForwardedFor = "100.1.2.3"
	creds := ResolvedCredentials{UpstreamCredentials: UpstreamCredentials{CookieString: "a=b", Token: "T"}, Applied: true}

	h = f.renderHeaders(identity, creds)
	want := map[string]string{
		"cookie":                   "a=b",
		"requestverificationtoken": "T",
		"x-forwarded-for":          "100.1.2.3",
		"sec-ch-ua":                "b",
		"sec-ch-ua-platform":       `"Windows"`,
	}
	for name, value := range want {
		if got := h[name]; len(got) != 1 || got[0] != value {
			t.Errorf("header %s = %v, want %q", name, got, value)
		}
	}
}

func TestLogDiagnosticSnippetKeepsBody(t *testing.T) {
	body := strings.Repeat("error text ", 1000)
	r := logDiagnosticSnippet(strings.NewReader(body), zap.NewNop())

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != body {
		t.Errorf("body altered: got %d bytes, want %d", len(got), len(body))
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes([]byte("héllo"), 2); got != "hé" {
		t.Errorf("truncateRunes() = %q, want hé", got)
	}
	if got := truncateRunes([]byte("abc"), 10); got != "abc" {
		t.Errorf("truncateRunes() = %q, want abc", got)
	}
}

func TestGetOrigin(t *testing.T) {
	if got := getOrigin("https://htmlcsstoimage.com/some/path?q=1"); got != "https://htmlcsstoimage.com" {
		t.Errorf("getOrigin() = %q", got)
	}
	if got := getOrigin("not a url"); got != "not a url" {
		t.Errorf("getOrigin() = %q", got)
	}
}
