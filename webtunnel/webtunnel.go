package webtunnel

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Connect dials the configured bridge: the endpoint is resolved to its
// WebSocket form, then the WebSocket handshake (TCP, TLS, HTTP upgrade) runs
// under the configured timeout. The returned Stream carries raw bytes.
func Connect(cfg Config, logger *slog.Logger) (*Stream, error) {
	if logger == nil {
		logger = slog.Default()
	}

	endpoint, err := ResolveEndpoint(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	if cfg.ServerName != "" {
		dialer.TLSClientConfig = &tls.Config{ServerName: cfg.ServerName}
	}

	logger.Info("connecting to WebTunnel bridge", "endpoint", endpoint.Host)

	conn, resp, err := dialer.Dial(endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("webtunnel handshake with %s: HTTP %d: %w", endpoint.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("webtunnel connect to %s: %w", endpoint.Host, err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
		conn.Close()
		return nil, fmt.Errorf("webtunnel handshake with %s: unexpected HTTP %d", endpoint.Host, resp.StatusCode)
	}

	logger.Info("WebTunnel connection established", "endpoint", endpoint.Host)
	return newStream(conn), nil
}
