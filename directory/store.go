package directory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cvsouth/webtor-go/ts"
)

// Default cache windows. A consensus is refreshed every hour on the network
// (valid-after to fresh-until), with a longer valid-until period for safety.
const (
	DefaultFreshFor = time.Hour
	DefaultValidFor = 3 * time.Hour
)

// Store owns the cached relay directory and produces usable relay lists:
// from cache when possible, from a network fetch through the fallback
// sources otherwise.
//
// By default the consensus is parsed and used WITHOUT verifying the
// authority signatures or the document's own validity time range. That is a
// deliberate, known gap inherited from the bootstrap design: set Verify (and
// supply KeyCerts for cryptographic rather than structural checking) to
// close it.
//
// Cache replacement is atomic from a reader's perspective. Concurrent
// refreshes are not deduplicated: two callers may both fetch and the last
// writer wins. Request coalescing is a hardening item for later.
type Store struct {
	// Verify enables consensus signature and freshness validation during
	// refresh. With an empty KeyCerts only structural validation runs.
	Verify bool
	// KeyCerts are authority key certificates used when Verify is set.
	KeyCerts []KeyCert
	// DiskCache, when non-nil, persists fetched documents across restarts.
	DiskCache *Cache

	sources    []Source
	newFetcher func(Source) Fetcher
	freshFor   time.Duration
	validFor   time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	cached *CachedDirectory

	lastRefresh ts.Timestamp
}

// NewStore creates a Store using the hardcoded fallback directories.
func NewStore(logger *slog.Logger) *Store {
	return NewStoreWithSources(FallbackDirectories, logger)
}

// NewStoreWithSources creates a Store with a custom ordered source list.
func NewStoreWithSources(sources []Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sources:    sources,
		newFetcher: NewFetcher,
		freshFor:   DefaultFreshFor,
		validFor:   DefaultValidFor,
		logger:     logger,
	}
}

// GetRelays returns the resolved relay list. A fresh cache is returned
// directly; a stale-but-valid cache is returned immediately without blocking
// (scheduling a refresh is left to the caller); otherwise a blocking Refresh
// runs first.
func (s *Store) GetRelays(ctx context.Context) ([]Relay, error) {
	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	if cached != nil {
		if cached.IsFresh() {
			s.logger.Debug("using cached consensus", "relays", len(cached.Relays))
			return copyRelays(cached.Relays), nil
		}
		if cached.IsValid() {
			s.logger.Info("consensus is stale but valid; refresh should be scheduled",
				"age", cached.Age())
			return copyRelays(cached.Relays), nil
		}
	}

	return s.Refresh(ctx)
}

// Refresh fetches a new consensus, trying each fallback source in order and
// stopping at the first complete fetch-parse-resolve cycle. Intermediate
// failures are logged and swallowed; only total exhaustion of the source
// list returns an error (the last one recorded, or ErrNoSources for an
// empty list). On success the cache is replaced wholesale.
func (s *Store) Refresh(ctx context.Context) ([]Relay, error) {
	s.logger.Info("fetching fresh consensus", "sources", len(s.sources))

	var lastErr error
	for _, src := range s.sources {
		relays, text, err := s.fetchCycle(ctx, s.newFetcher(src))
		if err != nil {
			s.logger.Warn("directory source failed", "source", src.Name, "addr", src.Addr, "error", err)
			lastErr = err
			continue
		}
		s.logger.Info("fetched consensus", "source", src.Name, "relays", len(relays))
		s.publish(relays, text)
		return copyRelays(relays), nil
	}

	if lastErr == nil {
		return nil, ErrNoSources
	}
	return nil, lastErr
}

// RefreshFrom runs one fetch-parse-resolve cycle against an arbitrary
// fetcher (for example one that tunnels requests through a circuit) and, on
// success, replaces the cache. A failure leaves any previously cached
// directory untouched and authoritative.
func (s *Store) RefreshFrom(ctx context.Context, f Fetcher) ([]Relay, error) {
	relays, text, err := s.fetchCycle(ctx, f)
	if err != nil {
		return nil, err
	}
	s.publish(relays, text)
	return copyRelays(relays), nil
}

// fetchCycle performs one complete fetch-parse-resolve cycle: fetch the
// consensus, parse it, resolve microdescriptor keys in bounded batches, and
// drop every relay left without a handshake key. An empty post-filter list
// is a valid (if useless) result, not an error.
func (s *Store) fetchCycle(ctx context.Context, f Fetcher) ([]Relay, string, error) {
	text, err := f.Fetch(ctx, ConsensusPath)
	if err != nil {
		return nil, "", err
	}

	if s.Verify {
		if err := ValidateSignatures(text, s.KeyCerts); err != nil {
			return nil, "", &ParseError{Err: err}
		}
	}

	consensus, err := ParseConsensus(text)
	if err != nil {
		return nil, "", err
	}
	s.logger.Debug("parsed consensus", "relays", len(consensus.Relays))

	if s.Verify {
		if err := ValidateFreshness(consensus); err != nil {
			return nil, "", &ParseError{Err: err}
		}
	}

	relays := copyRelays(consensus.Relays)
	resolved := resolveMicrodescriptors(ctx, f, relays, s.logger)
	s.logger.Debug("resolved microdescriptors", "resolved", resolved)

	usable := relays[:0]
	for _, r := range relays {
		if r.HasNtorKey {
			usable = append(usable, r)
		}
	}
	s.logger.Info("relay list ready", "usable", len(usable), "listed", len(relays))
	return usable, text, nil
}

// publish atomically replaces the cached directory.
func (s *Store) publish(relays []Relay, text string) {
	cached := &CachedDirectory{
		Relays:    relays,
		FetchedAt: time.Now(),
		FreshFor:  s.freshFor,
		ValidFor:  s.validFor,
	}

	s.mu.Lock()
	s.cached = cached
	s.mu.Unlock()
	s.lastRefresh.Update()

	if s.DiskCache != nil {
		fresh := cached.FetchedAt.Add(cached.FreshFor)
		valid := cached.FetchedAt.Add(cached.ValidFor)
		if err := s.DiskCache.SaveConsensus(text, fresh, valid); err != nil {
			s.logger.Warn("failed to persist consensus", "error", err)
		}
		if err := s.DiskCache.SaveMicrodescriptors(relays); err != nil {
			s.logger.Warn("failed to persist microdescriptors", "error", err)
		}
	}
}

// LoadFromDisk seeds the in-memory cache from the disk cache, if one is
// configured and still valid. The remaining portions of the persisted fresh
// and valid windows become the new in-memory windows.
func (s *Store) LoadFromDisk(ctx context.Context) bool {
	if s.DiskCache == nil {
		return false
	}
	text, freshUntil, validUntil, ok := s.DiskCache.LoadConsensus()
	if !ok {
		return false
	}
	consensus, err := ParseConsensus(text)
	if err != nil {
		s.logger.Warn("discarding unparseable cached consensus", "error", err)
		return false
	}

	relays := copyRelays(consensus.Relays)
	applied := s.DiskCache.LoadMicrodescriptors(relays)
	if applied == 0 {
		return false
	}
	usable := relays[:0]
	for _, r := range relays {
		if r.HasNtorKey {
			usable = append(usable, r)
		}
	}

	now := time.Now()
	cached := &CachedDirectory{
		Relays:    usable,
		FetchedAt: now,
		FreshFor:  max(freshUntil.Sub(now), 0),
		ValidFor:  max(validUntil.Sub(now), 0),
	}
	s.mu.Lock()
	s.cached = cached
	s.mu.Unlock()

	s.logger.Info("loaded consensus from disk cache", "usable", len(usable))
	return true
}

// NeedsRefresh reports whether no directory is cached or the cached one is
// no longer fresh.
func (s *Store) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached == nil || !s.cached.IsFresh()
}

// TimeSinceRefresh returns the time since the last successful refresh, or
// ok=false if none has completed yet.
func (s *Store) TimeSinceRefresh() (time.Duration, bool) {
	return s.lastRefresh.TimeSince()
}

// CacheStatus returns a human-readable cache summary for diagnostics.
func (s *Store) CacheStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil {
		return "no cached consensus"
	}
	return fmt.Sprintf("cached %d relays, age %s, fresh: %t, valid: %t",
		len(s.cached.Relays), s.cached.Age().Round(time.Second),
		s.cached.IsFresh(), s.cached.IsValid())
}

// copyRelays returns an independent copy of a relay list, so a later refresh
// cannot mutate data a caller is mid-use with.
func copyRelays(relays []Relay) []Relay {
	out := make([]Relay, len(relays))
	copy(out, relays)
	return out
}
