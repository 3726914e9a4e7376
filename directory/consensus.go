package directory

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const consensusTimeLayout = "2006-01-02 15:04:05"

// ParseConsensus parses a microdescriptor consensus document into relays and
// document metadata. Individual unparseable router entries are skipped; only
// a document-level problem fails the parse.
func ParseConsensus(text string) (*Consensus, error) {
	c := &Consensus{
		BandwidthWeights: make(map[string]int64),
	}

	var current *Relay
	flush := func() {
		if current != nil {
			c.Relays = append(c.Relays, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")

		switch {
		case strings.HasPrefix(line, "valid-after "):
			t, err := time.Parse(consensusTimeLayout, line[len("valid-after "):])
			if err != nil {
				return nil, &ParseError{Err: fmt.Errorf("valid-after: %w", err)}
			}
			c.ValidAfter = t

		case strings.HasPrefix(line, "fresh-until "):
			t, err := time.Parse(consensusTimeLayout, line[len("fresh-until "):])
			if err != nil {
				return nil, &ParseError{Err: fmt.Errorf("fresh-until: %w", err)}
			}
			c.FreshUntil = t

		case strings.HasPrefix(line, "valid-until "):
			t, err := time.Parse(consensusTimeLayout, line[len("valid-until "):])
			if err != nil {
				return nil, &ParseError{Err: fmt.Errorf("valid-until: %w", err)}
			}
			c.ValidUntil = t

		case strings.HasPrefix(line, "shared-rand-current-value "):
			c.SharedRandCurrentValue = parseSharedRand(line)

		case strings.HasPrefix(line, "shared-rand-previous-value "):
			c.SharedRandPreviousValue = parseSharedRand(line)

		case strings.HasPrefix(line, "r "):
			flush()
			relay, err := parseRouterLine(line)
			if err != nil {
				// Skip unparseable router lines; any m/s/w lines that
				// follow have no relay to attach to.
				continue
			}
			current = relay

		case strings.HasPrefix(line, "m "):
			if current != nil {
				if fields := strings.Fields(line); len(fields) >= 2 {
					current.MicrodescDigest = strings.TrimPrefix(fields[1], "sha256=")
				}
			}

		case strings.HasPrefix(line, "s "):
			if current != nil {
				parseFlagLine(current, line)
			}

		case strings.HasPrefix(line, "w "):
			if current != nil {
				parseWeightLine(current, line)
			}

		case strings.HasPrefix(line, "bandwidth-weights "):
			parseBandwidthWeights(c, line)
		}
	}
	flush()

	return c, nil
}

// parseRouterLine parses an "r" line of a microdesc consensus.
// Format: r <nickname> <identity-b64> <date> <time> <ip> <orport> <dirport>
func parseRouterLine(line string) (*Relay, error) {
	fields := strings.Fields(line)
	if len(fields) < 8 {
		return nil, fmt.Errorf("r line too short: %q", line)
	}

	// Identity is base64-encoded SHA-1 (20 bytes), unpadded in the consensus.
	idBytes, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if len(idBytes) != 20 {
		return nil, fmt.Errorf("identity wrong length: %d", len(idBytes))
	}

	orPort, err := strconv.ParseUint(fields[6], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse ORPort: %w", err)
	}
	dirPort, err := strconv.ParseUint(fields[7], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("parse DirPort: %w", err)
	}

	relay := &Relay{
		Nickname: fields[1],
		Address:  fields[5],
		ORPort:   uint16(orPort),
		DirPort:  uint16(dirPort),
	}
	copy(relay.Identity[:], idBytes)
	return relay, nil
}

func parseFlagLine(relay *Relay, line string) {
	for _, f := range strings.Fields(line)[1:] {
		switch f {
		case "Authority":
			relay.Flags.Authority = true
		case "BadExit":
			relay.Flags.BadExit = true
		case "Exit":
			relay.Flags.Exit = true
		case "Fast":
			relay.Flags.Fast = true
		case "Guard":
			relay.Flags.Guard = true
		case "HSDir":
			relay.Flags.HSDir = true
		case "Running":
			relay.Flags.Running = true
		case "Stable":
			relay.Flags.Stable = true
		case "Valid":
			relay.Flags.Valid = true
		case "V2Dir":
			relay.Flags.V2Dir = true
		}
	}
}

// parseWeightLine extracts the consensus weight from a "w" line.
// Format: w Bandwidth=1234 [Measured=5678] [Unmeasured=1]
// The Bandwidth value is used whether the entry is measured or unmeasured; an
// entry carrying no usable number keeps weight zero rather than failing the
// whole parse.
func parseWeightLine(relay *Relay, line string) {
	for _, field := range strings.Fields(line)[1:] {
		switch {
		case strings.HasPrefix(field, "Bandwidth="):
			if w, err := strconv.ParseInt(field[len("Bandwidth="):], 10, 64); err == nil {
				relay.Weight = w
				relay.Bandwidth = w
			}
		case field == "Unmeasured=1":
			relay.Unmeasured = true
		}
	}
}

func parseBandwidthWeights(c *Consensus, line string) {
	// Format: bandwidth-weights Wbd=0 Wbe=0 Wbg=4131 Wbm=10000 ...
	for _, field := range strings.Fields(line)[1:] {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			c.BandwidthWeights[name] = v
		}
	}
}

func parseSharedRand(line string) []byte {
	// Format: shared-rand-current-value <reveals> <value-b64>
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		return nil
	}
	return b
}
