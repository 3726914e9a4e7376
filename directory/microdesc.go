package directory

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"
	"strings"

	"filippo.io/edwards25519"
)

// ParseMicrodescriptor extracts the ntor onion key and optional Ed25519
// identity from a single microdescriptor. Malformed key lines are skipped;
// an Ed25519 identity that is not a canonical curve point is rejected.
func ParseMicrodescriptor(text string) (ntorKey [32]byte, ed25519Key [32]byte, hasNtor, hasEd bool) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		if strings.HasPrefix(line, "ntor-onion-key ") {
			keyB64 := strings.TrimSpace(line[len("ntor-onion-key "):])
			keyBytes, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(keyB64, "="))
			if err != nil || len(keyBytes) != 32 {
				continue
			}
			copy(ntorKey[:], keyBytes)
			hasNtor = true
		}

		if strings.HasPrefix(line, "id ed25519 ") {
			keyB64 := strings.TrimSpace(line[len("id ed25519 "):])
			keyBytes, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(keyB64, "="))
			if err != nil || len(keyBytes) != 32 {
				continue
			}
			if _, err := new(edwards25519.Point).SetBytes(keyBytes); err != nil {
				continue
			}
			copy(ed25519Key[:], keyBytes)
			hasEd = true
		}
	}
	return
}

// resolveMicrodescriptors fetches the microdescriptor for every relay that
// references one and merges the handshake keys into the relay slice in
// place. Digests are fetched in bounded batches; a batch that fails to fetch
// or parse is skipped and the remaining batches still run. Returns the
// number of relays resolved.
func resolveMicrodescriptors(ctx context.Context, f Fetcher, relays []Relay, logger *slog.Logger) int {
	// Phase one: map each referenced digest to its relay. Digests are assumed
	// unique in a well-formed directory; on a collision the later relay wins
	// and the earlier one stays unresolved. The map is read-only once the
	// merge below begins.
	digestToIdx := make(map[string]int)
	digests := make([]string, 0, len(relays))
	for i := range relays {
		d := relays[i].MicrodescDigest
		if d == "" {
			continue
		}
		if _, dup := digestToIdx[d]; !dup {
			digests = append(digests, d)
		}
		digestToIdx[d] = i
	}
	if len(digests) == 0 {
		return 0
	}

	// Phase two: fetch batches and merge by content digest.
	resolved := 0
	for start := 0; start < len(digests); start += microdescBatchSize {
		end := min(start+microdescBatchSize, len(digests))
		batch := digests[start:end]

		body, err := f.Fetch(ctx, MicrodescPathPrefix+strings.Join(batch, "-"))
		if err != nil {
			logger.Warn("microdescriptor batch fetch failed",
				"batch", start/microdescBatchSize, "count", len(batch), "error", err)
			continue
		}

		for _, entry := range splitMicrodescriptors(body) {
			// The consensus references microdescriptors by the SHA-256 of
			// their text, base64 without padding.
			sum := sha256.Sum256([]byte(entry))
			digestB64 := base64.RawStdEncoding.EncodeToString(sum[:])

			idx, ok := digestToIdx[digestB64]
			if !ok {
				continue
			}

			ntorKey, edKey, hasNtor, hasEd := ParseMicrodescriptor(entry)
			if !hasNtor {
				continue
			}
			relays[idx].NtorOnionKey = ntorKey
			relays[idx].HasNtorKey = true
			if hasEd {
				relays[idx].Ed25519ID = edKey
				relays[idx].HasEd25519 = true
			}
			resolved++
		}
	}
	return resolved
}

// splitMicrodescriptors splits a batch response into individual
// microdescriptor texts. Each begins at an "onion-key" line.
func splitMicrodescriptors(body string) []string {
	const marker = "onion-key\n"
	var entries []string
	for {
		idx := strings.Index(body, marker)
		if idx < 0 {
			break
		}
		rest := body[idx+len(marker):]
		nextIdx := strings.Index(rest, marker)
		var entry string
		if nextIdx < 0 {
			entry = body[idx:]
		} else {
			entry = body[idx : idx+len(marker)+nextIdx]
		}
		if strings.TrimSpace(entry) != "" {
			entries = append(entries, entry)
		}
		if nextIdx < 0 {
			break
		}
		body = body[idx+len(marker)+nextIdx:]
	}
	return entries
}
