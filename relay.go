package main

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"go.uber.org/zap"
)

// relayChunkSize is the read size for streaming the upstream body.
const relayChunkSize = 8 << 10

// hopByHopHeaders are never copied from the upstream response.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"content-encoding":    true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// relayHeaders copies upstream headers into dst, skipping hop-by-hop names
// and fhttp's ordering pseudo-keys. Content-Length is dropped when the body
// has been decoded because it no longer matches.
func relayHeaders(dst http.Header, src fhttp.Header, decoded bool) {
	for key, values := range src {
		if isHopByHopHeader(key) || key == fhttp.HeaderOrderKey || key == fhttp.PHeaderOrderKey {
			continue
		}
		if decoded && strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
	if dst.Get("Content-Type") == "" {
		dst.Set("Content-Type", "application/octet-stream")
	}
}

// Relay writes the upstream status, filtered headers and body to w. The body
// is streamed in fixed-size chunks and flushed after each one, so the
// upstream read only advances as fast as the caller consumes. The upstream
// response is always closed before Relay returns.
//
// Once the status line is written a mid-stream failure cannot be reported
// as JSON; Relay returns a StreamingError and the caller must abort the
// connection (panic(http.ErrAbortHandler)) instead of finishing the body.
func Relay(w http.ResponseWriter, upstream *UpstreamResponse, logger *zap.Logger) error {
	defer upstream.Close()

	start := time.Now()
	relayHeaders(w.Header(), upstream.Header, upstream.Decoded)
	w.WriteHeader(upstream.StatusCode)

	flusher, _ := w.(http.Flusher)
	buffer := make([]byte, relayChunkSize)
	var totalBytes int64

	for {
		n, readErr := upstream.Body.Read(buffer)
		if n > 0 {
			written, writeErr := w.Write(buffer[:n])
			totalBytes += int64(written)
			if writeErr != nil {
				logger.Warn("client disconnected during stream",
					zap.Int64("bytes_sent", totalBytes),
					zap.Duration("duration", time.Since(start)))
				return NewStreamingError("client disconnected", writeErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			logger.Warn("upstream error during stream",
				zap.String("cause", describeCause(readErr)),
				zap.Int64("bytes_sent", totalBytes),
				zap.Duration("duration", time.Since(start)))
			return NewStreamingError("upstream stream failed", readErr)
		}
	}

	logger.Info("stream complete",
		zap.Int("status", upstream.StatusCode),
		zap.Int64("bytes", totalBytes),
		zap.Duration("duration", time.Since(start)))
	return nil
}
