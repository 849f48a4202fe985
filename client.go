package main

import (
	"net"
	"strings"
	"time"

	tls_client "github.com/bogdanfinn/tls-client"
	"github.com/bogdanfinn/tls-client/profiles"
)

// ClientOptions are the per-request settings for the render client. There
// is no whole-exchange timeout; reads are bounded by the forwarder's
// readWatchdog so a steadily streaming body is never cut off.
type ClientOptions struct {
	ConnectTimeout time.Duration
	ProxyURL       string // empty = direct
}

// tlsProfileFor picks a TLS/HTTP2 fingerprint from the same browser family
// as ua so the handshake does not contradict the User-Agent header.
func tlsProfileFor(ua string) profiles.ClientProfile {
	switch {
	case strings.Contains(ua, "Firefox"):
		return profiles.Firefox_132
	case strings.Contains(ua, "Chrome"):
		return chromiumProfile
	case strings.Contains(ua, "iPhone"), strings.Contains(ua, "iPad"):
		return profiles.Safari_IOS_17_0
	case strings.Contains(ua, "Safari"):
		return profiles.Safari_16_0
	default:
		return chromiumProfile
	}
}

// NewRenderClient creates a client for a single render request. Clients are
// never shared between requests; the caller must CloseIdleConnections when
// done with the response.
func NewRenderClient(logger tls_client.Logger, identity IdentityProfile, opts ClientOptions) (tls_client.HttpClient, error) {
	if logger == nil {
		logger = tls_client.NewNoopLogger()
	}

	options := []tls_client.HttpClientOption{
		tls_client.WithTimeoutSeconds(0),
		tls_client.WithDialer(net.Dialer{Timeout: opts.ConnectTimeout}),
		tls_client.WithClientProfile(tlsProfileFor(identity.UserAgent)),
		tls_client.WithRandomTLSExtensionOrder(),
		tls_client.WithNotFollowRedirects(),
	}

	if opts.ProxyURL != "" {
		options = append(options, tls_client.WithProxyUrl(opts.ProxyURL))
	}

	return tls_client.NewHttpClient(logger, options...)
}
