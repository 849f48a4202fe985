package main

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/141.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
}

var locales = []string{
	"en-US,en;q=0.9",
	"en-GB,en;q=0.9",
	"en-IN,en;q=0.9",
}

// reservedFirstOctets are never used as the first octet of a spoofed
// X-Forwarded-For address.
var reservedFirstOctets = map[int]bool{
	10:  true,
	127: true,
	169: true,
	172: true,
	192: true,
}

// ClientHints approximates the Sec-CH-UA header family for a user agent.
type ClientHints struct {
	Brand    string // sec-ch-ua
	Mobile   string // sec-ch-ua-mobile, "?0" or "?1"
	Platform string // sec-ch-ua-platform, quoted
}

// IdentityProfile is the browser-like identity used for one outbound request.
type IdentityProfile struct {
	UserAgent      string
	AcceptLanguage string
	ClientHints    *ClientHints // nil when the UA family sends no hints
	ForwardedFor   string       // empty unless spoofing is enabled
}

// UserAgentSource supplies user agents from outside the static pool.
type UserAgentSource interface {
	RandomUserAgent() (string, error)
}

// IdentitySynthesizer builds a fresh IdentityProfile per request.
type IdentitySynthesizer struct {
	source       UserAgentSource // optional
	spoofAddress bool
	intn         func(n int) int
}

// NewIdentitySynthesizer creates a synthesizer. source may be nil.
func NewIdentitySynthesizer(source UserAgentSource, spoofAddress bool) *IdentitySynthesizer {
	return &IdentitySynthesizer{
		source:       source,
		spoofAddress: spoofAddress,
		intn:         rand.Intn,
	}
}

// Build returns a new identity. It never fails.
func (s *IdentitySynthesizer) Build() IdentityProfile {
	ua := s.pickUserAgent()
	profile := IdentityProfile{
		UserAgent:      ua,
		AcceptLanguage: locales[s.intn(len(locales))],
		ClientHints:    DeriveClientHints(ua),
	}
	if s.spoofAddress {
		profile.ForwardedFor = s.randomPublicIPv4()
	}
	return profile
}

// pickUserAgent prefers the external source and falls back to the static
// pool on any error or blank result.
func (s *IdentitySynthesizer) pickUserAgent() string {
	if s.source != nil {
		if ua, err := s.source.RandomUserAgent(); err == nil && strings.TrimSpace(ua) != "" {
			return ua
		}
	}
	return userAgents[s.intn(len(userAgents))]
}

// randomPublicIPv4 draws octets from [1,254] until the first octet is not
// in reservedFirstOctets.
func (s *IdentitySynthesizer) randomPublicIPv4() string {
	for {
		var octets [4]int
		for i := range octets {
			octets[i] = 1 + s.intn(254)
		}
		if reservedFirstOctets[octets[0]] {
			continue
		}
		return fmt.Sprintf("%d.%d.%d.%d", octets[0], octets[1], octets[2], octets[3])
	}
}

// =============================================================================
// Client Hints
// =============================================================================

var (
	chromeVersionRe = regexp.MustCompile(`Chrome/(\d+)`)
	edgeVersionRe   = regexp.MustCompile(`Edg/(\d+)`)
	safariVersionRe = regexp.MustCompile(`Version/(\d+)`)
)

// DeriveClientHints guesses client-hint values from substrings of ua.
// This is a best-effort heuristic for header consistency; it does not
// reproduce what a real browser would send. Output is deterministic for a
// given ua. Returns nil for families without a guess (e.g. Firefox).
func DeriveClientHints(ua string) *ClientHints {
	mobile := "?0"
	if strings.Contains(ua, "Mobile") {
		mobile = "?1"
	}

	switch {
	case strings.Contains(ua, "Chrome"):
		major := firstMatch(chromeVersionRe, ua, "120")
		brand := fmt.Sprintf(`"Google Chrome";v="%s", "Chromium";v="%s", "Not A(Brand";v="24"`, major, major)
		if edge := firstMatch(edgeVersionRe, ua, ""); edge != "" {
			brand = fmt.Sprintf(`"Microsoft Edge";v="%s", "Chromium";v="%s", "Not A(Brand";v="24"`, edge, major)
		}
		return &ClientHints{
			Brand:    brand,
			Mobile:   mobile,
			Platform: quote(chromiumPlatform(ua)),
		}

	case strings.Contains(ua, "Safari"):
		platform := "macOS"
		if strings.Contains(ua, "iPhone") || strings.Contains(ua, "iPad") {
			platform = "iOS"
		}
		major := firstMatch(safariVersionRe, ua, "17")
		return &ClientHints{
			Brand:    fmt.Sprintf(`"Safari";v="%s", "Not A(Brand";v="99"`, major),
			Mobile:   mobile,
			Platform: quote(platform),
		}
	}

	return nil
}

func chromiumPlatform(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Macintosh"):
		return "macOS"
	case strings.Contains(ua, "CrOS"):
		return "Chrome OS"
	case strings.Contains(ua, "Linux"), strings.Contains(ua, "X11"):
		return "Linux"
	default:
		return "Unknown"
	}
}

func firstMatch(re *regexp.Regexp, s, fallback string) string {
	if m := re.FindStringSubmatch(s); len(m) == 2 {
		return m[1]
	}
	return fallback
}

func quote(s string) string {
	return `"` + s + `"`
}
