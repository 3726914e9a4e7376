package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cvsouth/webtor-go/directory"
	"github.com/cvsouth/webtor-go/webtunnel"
)

func main() {
	logFile, err := os.OpenFile("webtor-debug.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
	stdoutHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger := slog.New(&multiHandler{handlers: []slog.Handler{fileHandler, stdoutHandler}})

	fmt.Println("=== WebTor Bootstrap Client ===")
	fmt.Println()

	ctx := context.Background()

	// Step 1: Bootstrap the relay directory, from disk cache when possible.
	store := directory.NewStore(logger)
	store.DiskCache = &directory.Cache{Dir: directory.DefaultCacheDir()}

	if store.LoadFromDisk(ctx) {
		fmt.Println("Loaded relay directory from cache")
	} else {
		fmt.Println("Fetching consensus from fallback directories...")
	}

	relays, err := store.GetRelays(ctx)
	if err != nil {
		fmt.Printf("  Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  %d usable relays\n", len(relays))
	fmt.Printf("  Cache: %s\n", store.CacheStatus())

	var guards, exits, v2dirs int
	for i := range relays {
		if relays[i].Flags.Guard {
			guards++
		}
		if relays[i].Flags.Exit && !relays[i].Flags.BadExit {
			exits++
		}
		if relays[i].Flags.V2Dir {
			v2dirs++
		}
	}
	fmt.Printf("  %d guards, %d exits, %d v2dirs\n", guards, exits, v2dirs)

	// Step 2: If a bridge line was given, establish the disguised transport.
	if len(os.Args) < 3 {
		fmt.Println()
		fmt.Println("No bridge given (usage: webtor-client <bridge-url> <fingerprint>); done.")
		return
	}

	cfg := webtunnel.NewConfig(os.Args[1], os.Args[2])
	fmt.Printf("Connecting to WebTunnel bridge %s...\n", cfg.URL)

	stream, err := webtunnel.Connect(cfg, logger)
	if err != nil {
		fmt.Printf("  Failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  Connected via %s\n", stream.RemoteAddr())

	// The circuit engine takes over the stream from here; this client just
	// proves the transport is reachable.
	time.Sleep(time.Second)
	if d, ok := stream.TimeSinceActivity(); ok {
		fmt.Printf("  Last activity %s ago\n", d.Round(time.Millisecond))
	}
	if err := stream.Close(); err != nil {
		logger.Warn("stream close", "error", err)
	}
	fmt.Println("  Bridge reachable; handing off to circuit layer is next.")
}

// multiHandler fans out slog records to multiple handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
