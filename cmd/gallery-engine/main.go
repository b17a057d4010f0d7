package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/use-agent/gallerydiscover/api"
	"github.com/use-agent/gallerydiscover/browser"
	"github.com/use-agent/gallerydiscover/canon"
	"github.com/use-agent/gallerydiscover/config"
	"github.com/use-agent/gallerydiscover/fetchhttp"
	"github.com/use-agent/gallerydiscover/port"
	"github.com/use-agent/gallerydiscover/scan"
	"github.com/use-agent/gallerydiscover/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("gallery-discover starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"headless", cfg.Browser.Headless,
	)

	// ── 3. Initialise browser (launches Chrome) ─────────────────────
	br, err := browser.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise browser", "error", err)
		os.Exit(1)
	}
	defer br.Close()

	// ── 4. Initialise canonicalizer + export sink ───────────────────
	c := canon.New(cfg.Collector.StripQuery, cfg.Collector.ImageExtensions)
	exportSink := newExportSink()

	// ── 5. Initialise the Scanner ────────────────────────────────────
	// Static HTTP fetch is tried before the browser for every page; only
	// pages the static path can't serve (redirects into JS interstitials,
	// non-HTML responses, click-only pagination) pay for a Chrome tab.
	browserOpen := func(ctx context.Context, url string) (port.DomAdapter, port.Navigator, error) {
		return br.Open(ctx, url)
	}
	open := fetchhttp.NewOpener(cfg.Fetch, browserOpen)
	s := scan.New(cfg, c, port.SystemClock{}, scan.NavigatorOpener(open), exportSink)

	// ── 6. Setup router ──────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(s, cfg, startTime)

	// ── 7. Start HTTP server ─────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ──────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// br.Close() runs via defer — kills Chrome.
	slog.Info("gallery-discover stopped")
}

// newExportSink chooses a webhook.Sink when GALLERY_WEBHOOK_URL is set,
// falling back to writing exports under GALLERY_EXPORT_DIR (default
// "./exports") otherwise.
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

// fileExportSink writes EXPORT_DATA output as a plain file, the simplest
// possible ExportSink for local/dev use with no upstream webhook
// configured. Plain os.WriteFile: no corpus library governs "write bytes
// to a path", so this stays on the standard library rather than reaching
// for one that doesn't fit.
type fileExportSink struct {
	dir string
}

func (f fileExportSink) Write(ctx context.Context, filename, mime string, data []byte) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, filename), data, 0o644)
}

// initLogger configures slog based on the LogConfig.
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
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
