// Command ingest watches a directory for documents and publishes their
// extracted text to the NATS ingest subject, where the API server's
// consumer indexes them. Useful for feeding askpaper from a batch drop
// folder instead of HTTP uploads.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/askpaper-ai/askpaper/engine/extract"
	"github.com/askpaper-ai/askpaper/engine/ingest"
	"github.com/askpaper-ai/askpaper/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	natsURL := envOr("NATS_URL", nats.DefaultURL)
	watchDir := envOr("WATCH_DIR", "./documents")
	interval, err := time.ParseDuration(envOr("SCAN_INTERVAL", "10s"))
	if err != nil {
		logger.Error("bad SCAN_INTERVAL", "err", err)
		os.Exit(1)
	}

	nc, err := nats.Connect(natsURL, nats.Name("askpaper-ingest-watcher"))
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching for documents", "dir", watchDir, "interval", interval)

	seen := make(map[string]bool)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	scan(ctx, nc, watchDir, seen, logger)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			scan(ctx, nc, watchDir, seen, logger)
		}
	}
}

func scan(ctx context.Context, nc *nats.Conn, dir string, seen map[string]bool, logger *slog.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("scan failed", "dir", dir, "err", err)
		return
	}

	for _, e := range entries {
		if e.IsDir() || seen[e.Name()] || !supported(e.Name()) {
			continue
		}
		seen[e.Name()] = true

		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			logger.Error("read failed", "file", e.Name(), "err", err)
			continue
		}
		text, err := extract.FromUpload(e.Name(), data)
		if err != nil {
			logger.Error("extraction failed", "file", e.Name(), "err", err)
			continue
		}

		doc := ingest.Document{Name: e.Name(), Text: text}
		if err := natsutil.Publish(ctx, nc, ingest.Subject, doc); err != nil {
			logger.Error("publish failed", "file", e.Name(), "err", err)
			delete(seen, e.Name()) // retry on the next scan
			continue
		}
		logger.Info("document published", "file", e.Name(), "bytes", len(data))
	}
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}
