package directory

import (
	"encoding/hex"
	"strings"
	"time"
)

// Consensus represents a parsed Tor microdescriptor consensus.
type Consensus struct {
	ValidAfter              time.Time
	FreshUntil              time.Time
	ValidUntil              time.Time
	SharedRandCurrentValue  []byte
	SharedRandPreviousValue []byte
	Relays                  []Relay
	BandwidthWeights        map[string]int64 // Wgg, Wgm, Wmg, Wmm, etc.
}

// Relay represents a router entry in the consensus.
//
// A relay is usable for circuit building only once HasNtorKey is true, which
// happens when its microdescriptor has been fetched and matched by digest.
// Store never exposes relays that are still unresolved.
type Relay struct {
	Nickname        string
	Identity        [20]byte // SHA-1 of RSA identity key (base64-decoded from "r" line)
	Address         string   // IPv4 address
	ORPort          uint16
	DirPort         uint16
	Flags           RelayFlags
	Weight          int64  // Consensus-assigned selection weight from the "w" line; 0 when absent
	Unmeasured      bool   // Weight carried an Unmeasured=1 marker
	Bandwidth       int64  // Observed bandwidth (same source value as Weight)
	MicrodescDigest string // Base64 microdesc digest from "m" line

	// Populated after microdescriptor fetch
	NtorOnionKey [32]byte
	Ed25519ID    [32]byte
	HasNtorKey   bool
	HasEd25519   bool
}

// Fingerprint returns the relay identity digest as uppercase hex.
func (r *Relay) Fingerprint() string {
	return strings.ToUpper(hex.EncodeToString(r.Identity[:]))
}

// RelayFlags represents the flags assigned to a relay in the consensus.
type RelayFlags struct {
	Authority bool
	BadExit   bool
	Exit      bool
	Fast      bool
	Guard     bool
	HSDir     bool
	Running   bool
	Stable    bool
	Valid     bool
	V2Dir     bool
}

// CachedDirectory is one complete resolved relay list together with the
// instant it was fetched and its two nested time-to-live windows. It is
// replaced wholesale on every successful refresh and never partially updated.
type CachedDirectory struct {
	Relays    []Relay
	FetchedAt time.Time
	FreshFor  time.Duration // preferred-use window, counted from FetchedAt
	ValidFor  time.Duration // still-acceptable window, FreshFor <= ValidFor
}

// IsFresh reports whether the directory is within its fresh window.
func (d *CachedDirectory) IsFresh() bool {
	return time.Since(d.FetchedAt) < d.FreshFor
}

// IsValid reports whether the directory is within its valid window.
func (d *CachedDirectory) IsValid() bool {
	return time.Since(d.FetchedAt) < d.ValidFor
}

// Age returns how long ago the directory was fetched.
func (d *CachedDirectory) Age() time.Duration {
	return time.Since(d.FetchedAt)
}
