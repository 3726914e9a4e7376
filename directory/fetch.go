package directory

import (
	"context"
	"strings"
)

// Well-known directory document paths (dir-spec §4 and §5).
const (
	// ConsensusPath is the microdescriptor-flavored consensus document.
	ConsensusPath = "/tor/status-vote/current/consensus-microdesc"
	// MicrodescPathPrefix is the batch microdescriptor endpoint; digests are
	// appended joined by "-".
	MicrodescPathPrefix = "/tor/micro/d/"
	// KeyCertsPath serves all authority key certificates.
	KeyCertsPath = "/tor/keys/all"
)

// microdescBatchSize bounds how many digests go in one request; the request
// path itself is length-limited.
const microdescBatchSize = 92

// Fetcher fetches one directory document by path and returns the response
// body with HTTP framing already stripped. Implementations exist for the
// plaintext bootstrap path (raw socket natively, browser fetch on js) and,
// in package dirclient, for fetches tunnelled through a circuit.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (string, error)
}

// Source is one hardcoded fallback directory used for initial bootstrap,
// before any network-derived trust exists.
type Source struct {
	Name string
	Addr string // host:port
}

// FallbackDirectories lists the directory authorities tried, in order, when
// no consensus is cached (from tor source, as of 2025).
var FallbackDirectories = []Source{
	{Name: "moria1", Addr: "128.31.0.39:9131"},
	{Name: "tor26", Addr: "86.59.21.38:80"},
	{Name: "dizum", Addr: "194.109.206.212:80"},
	{Name: "Faravahar", Addr: "199.58.81.140:80"},
	{Name: "longclaw", Addr: "204.13.164.118:80"},
	{Name: "bastet", Addr: "66.111.2.131:9030"},
	{Name: "dannenberg", Addr: "193.23.244.244:80"},
	{Name: "maatuska", Addr: "171.25.193.9:443"},
	{Name: "gabelmoo", Addr: "154.35.175.225:80"},
}

// NewFetcher returns the platform fetch capability for a source: a raw
// plaintext socket on native builds, the browser fetch API on js builds.
func NewFetcher(src Source) Fetcher {
	return newPlatformFetcher(src)
}

// stripHTTPHeaders removes the response headers by locating the first blank
// line. Header skipping is best-effort: a response with no header/body
// separator is treated as header-less and returned whole.
func stripHTTPHeaders(response string) string {
	if i := strings.Index(response, "\r\n\r\n"); i >= 0 {
		return response[i+4:]
	}
	return response
}
