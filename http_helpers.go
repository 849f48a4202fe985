package main

import (
	"io"
	"net/url"

	http "github.com/bogdanfinn/fhttp"
)

// PseudoHeaderOrder is the standard HTTP/2 pseudo-header order for all requests.
var PseudoHeaderOrder = []string{
	":method",
	":authority",
	":scheme",
	":path",
}

// renderHeaderOrder is the wire order of the outbound render request headers,
// modelled on a fetch() POST from a Chromium page.
var renderHeaderOrder = []string{
	"content-length",
	"sec-ch-ua-platform",
	"user-agent",
	"sec-ch-ua",
	"content-type",
	"sec-ch-ua-mobile",
	"requestverificationtoken",
	"accept",
	"origin",
	"sec-fetch-site",
	"sec-fetch-mode",
	"sec-fetch-dest",
	"referer",
	"accept-language",
	"dnt",
	"x-forwarded-for",
	"cookie",
}

// decodedBody wraps the response body so that any Content-Encoding the
// transport left in place is removed while streaming.
// Caller closes the returned reader instead of resp.Body.
func decodedBody(resp *http.Response) (body io.ReadCloser, decoded bool) {
	if resp.Header.Get("Content-Encoding") == "" {
		return resp.Body, false
	}
	return http.DecompressBody(resp), true
}

// getOrigin returns scheme://host of rawURL, or rawURL unchanged if it
// cannot be parsed.
func getOrigin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}
