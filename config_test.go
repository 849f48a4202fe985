package main

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HTMLCSI_API_KEY", "k")

	cfg, err := LoadConfig(newViper())
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.ListenAddr != ":5000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.APIKey != "k" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.StatusURL != "http://127.0.0.1:7777/status" {
		t.Errorf("StatusURL = %q", cfg.StatusURL)
	}
	if cfg.RenderURL != "https://htmlcsstoimage.com/image-demo" {
		t.Errorf("RenderURL = %q", cfg.RenderURL)
	}
	if cfg.ConnectTimeout != 25*time.Second || cfg.ReadTimeout != 120*time.Second || cfg.StatusTimeout != 30*time.Second {
		t.Errorf("timeouts = %v/%v/%v", cfg.ConnectTimeout, cfg.ReadTimeout, cfg.StatusTimeout)
	}
	if cfg.Policy != PolicyLenient || cfg.FieldDefaults != FieldDefaultsOmit {
		t.Errorf("policy=%s defaults=%s", cfg.Policy, cfg.FieldDefaults)
	}
	if cfg.SpoofForwardedFor || cfg.ProxyFile != "" || cfg.UserAgentSource != "" {
		t.Error("optional features should be off by default")
	}
	if cfg.MaxBodyBytes != 10<<20 {
		t.Errorf("MaxBodyBytes = %d", cfg.MaxBodyBytes)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTMLCSI_API_KEY", "k")
	t.Setenv("LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("STATUS_ENDPOINT", "http://status.internal/status")
	t.Setenv("HTMLCSI_CONNECT_TIMEOUT", "3")
	t.Setenv("CREDENTIAL_POLICY", "STRICT")
	t.Setenv("FIELD_DEFAULTS", "empty")
	t.Setenv("STATUS_COOKIE_NAMES", " session , , csrf ")
	t.Setenv("SPOOF_FORWARDED_FOR", "true")

	cfg, err := LoadConfig(newViper())
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" || cfg.StatusURL != "http://status.internal/status" {
		t.Errorf("addr=%q status=%q", cfg.ListenAddr, cfg.StatusURL)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.Policy != PolicyStrict || cfg.FieldDefaults != FieldDefaultsEmpty {
		t.Errorf("policy=%s defaults=%s", cfg.Policy, cfg.FieldDefaults)
	}
	if !reflect.DeepEqual(cfg.StatusCookieNames, []string{"session", "csrf"}) {
		t.Errorf("StatusCookieNames = %q", cfg.StatusCookieNames)
	}
	if !cfg.SpoofForwardedFor {
		t.Error("SpoofForwardedFor not enabled")
	}
}

func TestBuildTimeAPIKeyWins(t *testing.T) {
	t.Setenv("HTMLCSI_API_KEY", "from-env")
	apiKey = "from-build"
	defer func() { apiKey = "" }()

	if got := GetAPIKey(newViper()); got != "from-build" {
		t.Errorf("GetAPIKey() = %q, want from-build", got)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing key", map[string]string{"HTMLCSI_API_KEY": ""}, "HTMLCSI_API_KEY"},
		{"relative url", map[string]string{"POST_ENDPOINT": "/image-demo"}, "POST_ENDPOINT"},
		{"zero timeout", map[string]string{"STATUS_TIMEOUT": "0"}, "timeouts"},
		{"unknown policy", map[string]string{"CREDENTIAL_POLICY": "maybe"}, "CREDENTIAL_POLICY"},
		{"unknown defaults", map[string]string{"FIELD_DEFAULTS": "null"}, "FIELD_DEFAULTS"},
		{"zero body cap", map[string]string{"MAX_BODY_BYTES": "0"}, "MAX_BODY_BYTES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HTMLCSI_API_KEY", "k")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(newViper())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("LoadConfig() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
