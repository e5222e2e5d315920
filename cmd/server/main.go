package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Fantasim/paysync/internal/api"
	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/core"
	"github.com/Fantasim/paysync/internal/gateway"
	"github.com/Fantasim/paysync/internal/logging"
	"github.com/Fantasim/paysync/internal/models"
	"github.com/Fantasim/paysync/internal/poller"
	"github.com/Fantasim/paysync/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	case "watch":
		if err := runWatch(); err != nil {
			slog.Error("watch error", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("paysync %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: paysync <command>

Commands:
  serve     Start the status/confirm gateway and the invoice tracker
  watch     Poll one invoice through a running gateway until it settles
  version   Print version information
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logCloser.Close()

	slog.Info("starting paysync",
		"version", version,
		"port", cfg.Port,
		"coreBaseUrl", cfg.CoreBaseURL,
		"logLevel", cfg.LogLevel,
	)
	if missing := cfg.MissingCoreSettings(true); len(missing) > 0 {
		slog.Warn("core settings incomplete, gateway requests will fail with a config error",
			"missing", missing,
		)
	}

	client := core.NewClient(core.NewHTTPClient(), core.Credentials{
		BaseURL:        cfg.CoreBaseURL,
		MerchantID:     cfg.MerchantID,
		APIKey:         cfg.APIKey,
		ProviderSecret: cfg.ProviderSecret,
	}, cfg.CoreRPS)
	gw := gateway.New(cfg, client)

	invoices, closeStore, err := setupStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hub := poller.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go hub.Run(hubCtx)

	tracker := poller.NewTracker(poller.GatewaySource{Gateway: gw}, hub, poller.TrackerConfig{
		PollInterval:  cfg.PollInterval(),
		RetryInterval: cfg.RetryInterval(),
		MaxSessions:   cfg.MaxActiveSessions,
		RedirectURL:   cfg.RedirectURL,
	})

	api.Version = version
	router := api.NewRouter(&api.Dependencies{
		Config:  cfg,
		Gateway: gw,
		Core:    client,
		Tracker: tracker,
		Hub:     hub,
		Store:   invoices,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    config.ServerReadTimeout,
		WriteTimeout:   config.ServerWriteTimeout,
		IdleTimeout:    config.ServerIdleTimeout,
		MaxHeaderBytes: config.ServerMaxHeaderBytes,
	}

	slog.Info("server configured",
		"readTimeout", config.ServerReadTimeout,
		"writeTimeout", config.ServerWriteTimeout,
		"idleTimeout", config.ServerIdleTimeout,
		"maxHeaderBytes", config.ServerMaxHeaderBytes,
	)

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("initiating graceful shutdown",
		"timeout", config.ShutdownTimeout,
	)

	// 1. Stop polling; in-flight Core fetches may finish.
	tracker.Stop()

	// 2. Close SSE client channels so streaming handlers return.
	hubCancel()

	// 3. Drain remaining HTTP requests.
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// setupStore picks Redis when an address is configured, memory otherwise.
func setupStore(cfg *config.Config) (store.InvoiceStore, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("using in-memory demo invoice store", "ttl", config.DemoInvoiceTTL)
		return store.NewMemoryStore(config.DemoInvoiceTTL), func() {}, nil
	}

	rs := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, config.DemoInvoiceTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rs.Ping(ctx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}

	return rs, func() {
		if err := rs.Close(); err != nil {
			slog.Warn("failed to close redis store", "error", err)
		}
	}, nil
}

func runWatch() error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	gatewayURL := fs.String("gateway", "http://localhost:8080", "Base URL of a running paysync gateway")
	invoiceID := fs.String("invoice", "", "Invoice id to watch (required)")
	expiresAt := fs.String("expires", "", "Known expiry (RFC3339), checked locally before each poll")
	redirectURL := fs.String("redirect", "", "Where the shopper goes once the invoice is confirmed")
	pollInterval := fs.Duration("interval", config.PollInterval, "Delay between successful polls")
	retryInterval := fs.Duration("retry", config.PollRetryInterval, "Delay after a failed poll")
	logLevel := fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.Parse(os.Args[2:])

	if err := logging.SetupStderr(*logLevel); err != nil {
		return err
	}

	if strings.TrimSpace(*invoiceID) == "" {
		return fmt.Errorf("-invoice is required")
	}

	seed := models.Seed{
		InvoiceID:   strings.TrimSpace(*invoiceID),
		RedirectURL: *redirectURL,
	}
	if *expiresAt != "" {
		seed.ExpiresAt = expiresAt
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")

	session, cancel := poller.Start(context.Background(), seed, poller.Options{
		Source:        poller.NewHTTPSource(*gatewayURL, nil),
		PollInterval:  *pollInterval,
		RetryInterval: *retryInterval,
		Redirector: poller.RedirectFunc(func(view models.InvoiceView, target string) {
			if target == "" {
				fmt.Fprintf(os.Stdout, "invoice %s confirmed\n", view.InvoiceID)
				return
			}
			fmt.Fprintf(os.Stdout, "invoice %s confirmed, redirect to %s\n", view.InvoiceID, target)
		}),
		OnEvent: func(eventType string, u poller.Update) {
			fmt.Fprintf(os.Stdout, "== %s (tick %d)\n", eventType, u.Ticks)
			if u.Error != "" {
				fmt.Fprintf(os.Stdout, "error: %s\n", u.Error)
				return
			}
			if err := out.Encode(u.View); err != nil {
				slog.Error("failed to print invoice view", "error", err)
			}
		},
	})
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case <-session.Done():
		final := session.Snapshot()
		slog.Info("invoice settled",
			"invoiceId", final.InvoiceID,
			"status", final.View.Status,
			"ticks", final.Ticks,
		)
	case sig := <-sigs:
		slog.Info("watch interrupted", "signal", sig)
		cancel()
		<-session.Done()
	}
	return nil
}
