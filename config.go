package main

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Build-time variables - inject via ldflags
// Example: go build -ldflags "-X main.apiKey=YOUR_KEY -X main.version=1.2.0"
var (
	apiKey  string // -X main.apiKey=...
	version = "dev"
)

// FieldDefaults controls how absent allow-listed fields are sent upstream.
type FieldDefaults string

const (
	// FieldDefaultsOmit copies only the keys the caller supplied.
	FieldDefaultsOmit FieldDefaults = "omit"
	// FieldDefaultsEmpty sends every allow-listed key, using "" for absent ones.
	FieldDefaultsEmpty FieldDefaults = "empty"
)

// Config is the static, read-only configuration shared by all requests.
type Config struct {
	ListenAddr string
	APIKey     string

	StatusURL string
	RenderURL string
	Homepage  string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	StatusTimeout  time.Duration

	Policy            PolicyMode
	FieldDefaults     FieldDefaults
	StatusCookieNames []string

	UserAgentSource   string
	SpoofForwardedFor bool
	ProxyFile         string

	MaxBodyBytes int64

	LogLevel string
	LogFile  string
}

// newViper returns a viper instance with every key defaulted and bound to
// the environment. Keys map to upper-cased env names (status_endpoint ->
// STATUS_ENDPOINT).
func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("listen_addr", ":5000")
	v.SetDefault("htmlcsi_api_key", "")
	v.SetDefault("status_endpoint", "http://127.0.0.1:7777/status")
	v.SetDefault("post_endpoint", "https://htmlcsstoimage.com/image-demo")
	v.SetDefault("homepage", "https://htmlcsstoimage.com/")
	v.SetDefault("htmlcsi_connect_timeout", 25)
	v.SetDefault("htmlcsi_read_timeout", 120)
	v.SetDefault("status_timeout", 30)
	v.SetDefault("credential_policy", string(PolicyLenient))
	v.SetDefault("field_defaults", string(FieldDefaultsOmit))
	v.SetDefault("status_cookie_names", "")
	v.SetDefault("ua_source", "")
	v.SetDefault("spoof_forwarded_for", false)
	v.SetDefault("proxy_file", "")
	v.SetDefault("max_body_bytes", 10<<20)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	v.AutomaticEnv()
	return v
}

// LoadConfig reads the configuration from v and validates it.
func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		ListenAddr:        v.GetString("listen_addr"),
		APIKey:            GetAPIKey(v),
		StatusURL:         v.GetString("status_endpoint"),
		RenderURL:         v.GetString("post_endpoint"),
		Homepage:          v.GetString("homepage"),
		ConnectTimeout:    time.Duration(v.GetInt("htmlcsi_connect_timeout")) * time.Second,
		ReadTimeout:       time.Duration(v.GetInt("htmlcsi_read_timeout")) * time.Second,
		StatusTimeout:     time.Duration(v.GetInt("status_timeout")) * time.Second,
		Policy:            PolicyMode(strings.ToLower(v.GetString("credential_policy"))),
		FieldDefaults:     FieldDefaults(strings.ToLower(v.GetString("field_defaults"))),
		StatusCookieNames: splitList(v.GetString("status_cookie_names")),
		UserAgentSource:   v.GetString("ua_source"),
		SpoofForwardedFor: v.GetBool("spoof_forwarded_for"),
		ProxyFile:         v.GetString("proxy_file"),
		MaxBodyBytes:      v.GetInt64("max_body_bytes"),
		LogLevel:          v.GetString("log_level"),
		LogFile:           v.GetString("log_file"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetAPIKey returns the shared secret (build-time or env fallback)
func GetAPIKey(v *viper.Viper) string {
	if apiKey != "" {
		return apiKey
	}
	return v.GetString("htmlcsi_api_key")
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("HTMLCSI_API_KEY is not set")
	}

	for name, raw := range map[string]string{
		"STATUS_ENDPOINT": c.StatusURL,
		"POST_ENDPOINT":   c.RenderURL,
		"HOMEPAGE":        c.Homepage,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.ConnectTimeout <= 0 || c.ReadTimeout <= 0 || c.StatusTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (connect=%v read=%v status=%v)",
			c.ConnectTimeout, c.ReadTimeout, c.StatusTimeout)
	}

	switch c.Policy {
	case PolicyLenient, PolicyStrict:
	default:
		return fmt.Errorf("CREDENTIAL_POLICY must be %q or %q, got %q", PolicyLenient, PolicyStrict, c.Policy)
	}

	switch c.FieldDefaults {
	case FieldDefaultsOmit, FieldDefaultsEmpty:
	default:
		return fmt.Errorf("FIELD_DEFAULTS must be %q or %q, got %q", FieldDefaultsOmit, FieldDefaultsEmpty, c.FieldDefaults)
	}

	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
