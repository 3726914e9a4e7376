// Package dirclient fetches directory documents through the anonymity
// network itself. Once a single circuit exists, consensus refreshes no
// longer need the exposed plaintext bootstrap path: requests go down a
// directory-purpose stream on that circuit instead.
//
// The circuit engine is an external collaborator. This package only consumes
// its capabilities through the Tunnel, Reactor, and Builder interfaces.
package dirclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/cvsouth/webtor-go/directory"
)

// Tunnel is an established circuit that can carry directory streams.
type Tunnel interface {
	// OpenDirStream opens a directory-purpose data stream on the tunnel.
	OpenDirStream() (io.ReadWriteCloser, error)
}

// Reactor drives a tunnel's background cell processing. Run blocks until the
// tunnel shuts down or the context is cancelled.
type Reactor interface {
	Run(ctx context.Context) error
}

// Builder creates one-hop tunnels over an existing transport connection,
// such as a webtunnel stream or a direct relay link.
type Builder interface {
	NewTunnel(conn net.Conn) (Tunnel, Reactor, error)
}

// Client fetches consensus documents over tunnels and feeds them to a Store.
// A failed fetch never invalidates the Store's existing cache; the old
// directory stays authoritative until a fetch fully succeeds.
type Client struct {
	Store  *directory.Store
	Logger *slog.Logger
}

// NewClient returns a Client publishing into the given store.
func NewClient(store *directory.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Store: store, Logger: logger}
}

// FetchConsensus fetches the microdescriptor consensus through the supplied
// tunnel, resolves relay keys over the same tunnel, and replaces the store's
// cache on success.
func (c *Client) FetchConsensus(ctx context.Context, tunnel Tunnel) ([]directory.Relay, error) {
	c.Logger.Info("fetching consensus over tunnel")
	relays, err := c.Store.RefreshFrom(ctx, &tunnelFetcher{tunnel: tunnel})
	if err != nil {
		return nil, err
	}
	c.Logger.Info("anonymized consensus refresh complete", "relays", len(relays))
	return relays, nil
}

// FetchViaBridge builds a one-hop tunnel over the given connection, starts
// its reactor in the background, and fetches the consensus through it. A
// failure to build the tunnel or open its stream aborts the whole fetch with
// no partial state retained.
func (c *Client) FetchViaBridge(ctx context.Context, b Builder, conn net.Conn) ([]directory.Relay, error) {
	tunnel, reactor, err := b.NewTunnel(conn)
	if err != nil {
		return nil, fmt.Errorf("create directory tunnel: %w", err)
	}

	go func() {
		if err := reactor.Run(ctx); err != nil {
			c.Logger.Error("directory tunnel reactor exited", "error", err)
		}
	}()

	return c.FetchConsensus(ctx, tunnel)
}

// tunnelFetcher adapts a Tunnel to the directory.Fetcher contract: each
// document request opens a fresh directory stream.
type tunnelFetcher struct {
	tunnel Tunnel
}

func (f *tunnelFetcher) Fetch(ctx context.Context, path string) (string, error) {
	stream, err := f.tunnel.OpenDirStream()
	if err != nil {
		return "", &directory.FetchError{Source: "tunnel", Err: fmt.Errorf("open dir stream: %w", err)}
	}
	defer stream.Close()

	request := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: directory\r\nConnection: close\r\n\r\n", path)
	if _, err := io.WriteString(stream, request); err != nil {
		return "", &directory.FetchError{Source: "tunnel", Err: fmt.Errorf("write request: %w", err)}
	}

	response, err := io.ReadAll(stream)
	if err != nil {
		return "", &directory.FetchError{Source: "tunnel", Err: fmt.Errorf("read response: %w", err)}
	}

	// Header skipping is best-effort: with no blank-line separator the whole
	// payload is treated as body.
	body := string(response)
	if i := strings.Index(body, "\r\n\r\n"); i >= 0 {
		body = body[i+4:]
	}
	return body, nil
}
