// Command webtex renders web pages off-screen and publishes each
// completed page as an encoded frame.
//
// Usage:
//
//	webtex -config webtex.yaml                  # everything from YAML
//	webtex -url example.com -listen :8088       # quick start, HTTP API
//	webtex -url example.com -mcp                # MCP over stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/webtex/bridge"
	"github.com/hazyhaar/webtex/frame"
	"github.com/hazyhaar/webtex/internal/browser"
	"github.com/hazyhaar/webtex/internal/config"
	"github.com/hazyhaar/webtex/internal/framelog"
	"github.com/hazyhaar/webtex/internal/sink"
	"github.com/hazyhaar/webtex/shield"
)

func main() {
	configPath := flag.String("config", "", "path to webtex.yaml config file")
	startURL := flag.String("url", "", "URL or search terms to load at start")
	listen := flag.String("listen", "", "HTTP listen address, e.g. :8088")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			logger.Error("webtex: load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
	}
	if *startURL != "" {
		cfg.StartURL = *startURL
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *mcpStdio {
		cfg.MCP.Enabled = true
	}
	if cfg.Server.Listen == "" && !cfg.MCP.Enabled && !cfg.Sinks.Stdout {
		fmt.Fprintln(os.Stderr, "usage: webtex [-config <file>] [-url <url>] -listen <addr> | -mcp")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("webtex: fatal", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	bcfg := cfg.BrowserConfig()
	bcfg.Logger = logger
	mgr := browser.NewManager(bcfg)
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	defer mgr.Close()

	vcfg := cfg.ViewConfig()
	vcfg.Logger = logger
	view, err := browser.OpenView(ctx, mgr, vcfg)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	defer view.Close()

	opts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithFailureCallback(func(err *frame.NavigationError) {
			logger.Warn("webtex: load failed", "url", err.URL, "error", err.Err)
		}),
	}

	var flog *framelog.Log
	if cfg.FrameLog.Path != "" {
		flog, err = framelog.Open(cfg.FrameLog.Path, framelog.WithLogger(logger))
		if err != nil {
			return err
		}
		defer flog.Close()
		opts = append(opts, bridge.WithFrameLog(flog))

		// Stopped before flog.Close runs.
		pruneCtx, stopPrune := context.WithCancel(ctx)
		pruned := make(chan struct{})
		go func() {
			defer close(pruned)
			pruneLoop(pruneCtx, logger, flog, cfg.FrameLog.Retention, time.Hour)
		}()
		defer func() {
			stopPrune()
			<-pruned
		}()
	}

	b, err := bridge.New(cfg.BridgeConfig(), view, opts...)
	if err != nil {
		return err
	}

	router := sink.NewRouter(logger, buildSinks(cfg, logger)...)
	router.Start(ctx, cfg.Sinks.Queue)
	defer router.Close()
	b.RegisterFrameCallback(router.Handle)

	if err := b.Start(ctx); err != nil {
		return err
	}
	defer b.Close()

	if cfg.StartURL != "" {
		if _, err := b.Load(ctx, cfg.StartURL); err != nil {
			return fmt.Errorf("start url: %w", err)
		}
	}

	errc := make(chan error, 2)
	if cfg.Server.Listen != "" {
		srv := newServer(cfg.Server.Listen, b, flog)
		go func() {
			logger.Info("webtex: http listening", "addr", cfg.Server.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("http: %w", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("webtex: http shutdown", "error", err)
			}
		}()
	}

	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "webtex", Version: "1.0.0"}, nil)
		b.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("webtex: mcp on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("webtex: shutting down")
		return nil
	case err := <-errc:
		return err
	}
}

// buildSinks returns the host-side frame backends. Stdout is skipped when
// MCP owns stdout.
func buildSinks(cfg *config.Config, logger *slog.Logger) []sink.Sink {
	var sinks []sink.Sink
	if cfg.Sinks.Stdout {
		if cfg.MCP.Enabled {
			logger.Warn("webtex: stdout sink disabled, stdout carries MCP")
		} else {
			sinks = append(sinks, sink.NewStdout(nil))
		}
	}
	if cfg.Sinks.Webhook.URL != "" {
		sinks = append(sinks, sink.NewWebhook(cfg.Sinks.Webhook.URL,
			sink.WithWebhookRetries(cfg.Sinks.Webhook.Retries),
			sink.WithWebhookLogger(logger)))
	}
	if cfg.Sinks.Dump != "" {
		sinks = append(sinks, sink.NewDump(cfg.Sinks.Dump))
	}
	return sinks
}

func newServer(addr string, b *bridge.Bridge, flog *framelog.Log) *http.Server {
	r := chi.NewRouter()
	b.Routes(r)
	if flog != nil {
		r.Group(func(r chi.Router) {
			for _, mw := range shield.DefaultStack() {
				r.Use(mw)
			}
			r.Get("/log", func(w http.ResponseWriter, r *http.Request) {
				limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
				entries, err := flog.Recent(r.Context(), limit)
				if err != nil {
					shield.GetLogger(r.Context()).Error("webtex: read capture log", "error", err)
					http.Error(w, err.Error(), 500)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(entries)
			})
		})
	}
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// pruneLoop prunes the capture log now and then every interval until ctx
// is done.
func pruneLoop(ctx context.Context, logger *slog.Logger, flog *framelog.Log, retention, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := flog.Prune(ctx, retention); err != nil && ctx.Err() == nil {
			logger.Warn("webtex: prune capture log", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
