//go:build !js

package directory

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// fetchTimeout bounds the first contact with the network: the plaintext
// bootstrap fetch happens before any circuit exists.
const fetchTimeout = 60 * time.Second

// Directory responses are capped for safety; a consensus is typically ~2MB
// and a full microdescriptor batch well under 50MB.
const maxResponseBytes = 50 * 1024 * 1024

// dialFetcher fetches directory documents over a plaintext TCP connection
// using HTTP/1.0. This path is inherently exposed to the network: it runs
// before any circuit exists, which is an accepted property of first
// bootstrap.
type dialFetcher struct {
	addr string
}

func newPlatformFetcher(src Source) Fetcher {
	return &dialFetcher{addr: src.Addr}
}

func (f *dialFetcher) Fetch(ctx context.Context, path string) (string, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", f.addr)
	if err != nil {
		return "", &FetchError{Source: f.addr, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(fetchTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", &FetchError{Source: f.addr, Err: err}
	}

	host := f.addr
	if h, _, err := net.SplitHostPort(f.addr); err == nil {
		host = h
	}
	request := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if _, err := io.WriteString(conn, request); err != nil {
		return "", &FetchError{Source: f.addr, Err: fmt.Errorf("write request: %w", err)}
	}

	raw, err := io.ReadAll(io.LimitReader(conn, maxResponseBytes))
	if err != nil {
		return "", &FetchError{Source: f.addr, Err: fmt.Errorf("read response: %w", err)}
	}

	response := string(raw)
	if code, ok := parseStatusLine(response); ok && code != 200 {
		return "", &FetchError{Source: f.addr, Err: fmt.Errorf("HTTP %d", code)}
	}
	return stripHTTPHeaders(response), nil
}

// parseStatusLine extracts the status code from an HTTP response, if the
// payload carries one at all.
func parseStatusLine(response string) (int, bool) {
	if !strings.HasPrefix(response, "HTTP/") {
		return 0, false
	}
	line := response
	if i := strings.Index(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, false
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return code, true
}
