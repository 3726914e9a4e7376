//go:build js

package directory

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxResponseBytes = 50 * 1024 * 1024

// httpFetcher fetches directory documents through net/http, which the js
// runtime backs with the browser fetch API. Compression stays disabled
// because Tor directory servers mishandle Accept-Encoding.
type httpFetcher struct {
	addr   string
	client *http.Client
}

func newPlatformFetcher(src Source) Fetcher {
	return &httpFetcher{
		addr: src.Addr,
		client: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DisableCompression: true,
			},
		},
	}
}

func (f *httpFetcher) Fetch(ctx context.Context, path string) (string, error) {
	url := fmt.Sprintf("http://%s%s", f.addr, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{Source: f.addr, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{Source: f.addr, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Source: f.addr, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &FetchError{Source: f.addr, Err: fmt.Errorf("read response: %w", err)}
	}
	return string(body), nil
}
