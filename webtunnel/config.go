// Package webtunnel connects to Tor bridges through the WebTunnel pluggable
// transport: the cell stream is carried as binary frames inside an ordinary
// WebSocket-over-HTTPS session, so the first connection a client makes is
// indistinguishable from regular encrypted web traffic.
package webtunnel

import (
	"fmt"
	"net/url"
	"time"
)

// DefaultConnectTimeout bounds the WebSocket handshake (TCP + TLS + HTTP
// upgrade) when a config does not set its own timeout.
const DefaultConnectTimeout = 30 * time.Second

// Config holds the immutable connection parameters for one WebTunnel bridge.
type Config struct {
	// URL is the web-facing bridge endpoint, e.g. https://example.com/secret-path.
	URL string
	// Fingerprint is the bridge RSA identity (40 hex chars). The transport
	// itself never uses it; the link handshake layer above does.
	Fingerprint string
	// ServerName optionally overrides the TLS SNI derived from the URL host.
	ServerName string
	// Timeout bounds the connection attempt; zero means DefaultConnectTimeout.
	Timeout time.Duration
}

// NewConfig returns a Config for the given endpoint URL and bridge fingerprint.
func NewConfig(rawURL, fingerprint string) Config {
	return Config{
		URL:         rawURL,
		Fingerprint: fingerprint,
		Timeout:     DefaultConnectTimeout,
	}
}

// ResolveEndpoint rewrites the configured URL from its web-facing scheme to
// the WebSocket scheme: http becomes ws and https becomes wss, while ws and
// wss pass through unchanged. Host, port, and path are preserved verbatim.
// Any other scheme is a configuration error, caught before any I/O.
func ResolveEndpoint(cfg Config) (*url.URL, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid WebTunnel URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid WebTunnel URL scheme %q: expected https, http, wss, or ws", u.Scheme)
	}
	return u, nil
}
