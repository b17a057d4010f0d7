package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/gallerydiscover/browser"
	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/fetchhttp"
	gmcp "github.com/use-agent/gallerydiscover/mcp"
	"github.com/use-agent/gallerydiscover/port"
	"github.com/use-agent/gallerydiscover/scan"
	"github.com/use-agent/gallerydiscover/webhook"
)

// gallery-mcp runs the same Scanner as gallery-engine but exposes it over
// stdio MCP instead of HTTP, for embedding in an MCP-speaking host
// (editor, agent harness) rather than behind a REST client.
func main() {
	cfg := config.Load()
	initLogger(cfg.Log)

	br, err := browser.New(cfg.Browser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise browser: %v\n", err)
		os.Exit(1)
	}
	defer br.Close()

	c := canon.New(cfg.Collector.StripQuery, cfg.Collector.ImageExtensions)
	browserOpen := func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error) {
		return br.Open(ctx, url)
	}
	open := fetchhttp.NewOpener(cfg.Fetch, browserOpen)
	s := scan.New(cfg, c, port.SystemClock{}, scan.NavigatorOpener(open), newExportSink())

	srv := gmcp.New(s)
	if err := server.ServeStdio(srv); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newExportSink() port.ExportSink {
	if url := os.Getenv("GALLERY_WEBHOOK_URL"); url != "" {
		return webhook.Sink{URL: url, Secret: os.Getenv("GALLERY_WEBHOOK_SECRET")}
	}
	dir := os.Getenv("GALLERY_EXPORT_DIR")
	if dir == "" {
		dir = "./exports"
	}
	return fileExportSink{dir: dir}
}

type fileExportSink struct {
	dir string
}

func (f fileExportSink) Write(ctx context.Context, filename, mime string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, filename), data, 0o644)
}

func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
