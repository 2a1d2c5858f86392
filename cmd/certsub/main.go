// Package main is the entry point for the certificate platform server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelbarrox/certificate-sub000/internal/cache"
	"github.com/raphaelbarrox/certificate-sub000/internal/config"
	"github.com/raphaelbarrox/certificate-sub000/internal/database"
	"github.com/raphaelbarrox/certificate-sub000/internal/handlers"
	"github.com/raphaelbarrox/certificate-sub000/internal/issuance"
	"github.com/raphaelbarrox/certificate-sub000/internal/mailer"
	"github.com/raphaelbarrox/certificate-sub000/internal/render"
	"github.com/raphaelbarrox/certificate-sub000/internal/router"
	"github.com/raphaelbarrox/certificate-sub000/internal/storage"
	"github.com/raphaelbarrox/certificate-sub000/internal/store"
)

func main() {
	// Structured logger — text output; level drops to debug in development.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"base_url", cfg.BaseURL,
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed development data (no-op if data already exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey for the shared verification-page cache. Optional:
	// the app runs without it, every /verify hit just renders fresh.
	var verifyCache *cache.VerifyPageCache
	if cfg.ValkeyHost != "" {
		valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
		if err != nil {
			slog.Error("failed to connect to valkey", "error", err)
			os.Exit(1)
		}
		defer valkeyClient.Close()
		verifyCache = cache.NewVerifyPageCache(valkeyClient, cache.DefaultVerifyPageTTL)
		slog.Info("valkey connected", "host", cfg.ValkeyHost)
	} else {
		slog.Warn("valkey not configured — verification pages render uncached")
	}

	// In-memory render caches. These are per-instance: the PDF cache key
	// includes all recipient data, so instances never serve each other's
	// stale renders.
	imageCache := cache.NewImageCache(nil, cache.DefaultImageTTL, cache.DefaultImageMaxEntries)
	pdfCache := cache.NewPDFCache(cache.DefaultPDFTTL, cache.DefaultPDFMaxEntries)
	qrCache := cache.NewQRCache(cache.DefaultQRTTL, cache.DefaultQRMaxEntries)

	// Initialize the HTML renderer for the public pages.
	renderer, err := render.New()
	if err != nil {
		slog.Error("failed to initialize template renderer", "error", err)
		os.Exit(1)
	}

	// Initialize data stores.
	templateStore := store.NewTemplateStore(db)
	certStore := store.NewCertificateStore(db)

	// Connect to S3-compatible object storage (optional — issuance works
	// without it, downloads then render on demand).
	var storageClient *storage.Client
	if cfg.S3Endpoint != "" && cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		storageClient, err = storage.New(
			cfg.S3Endpoint, cfg.S3Region, cfg.S3AccessKey, cfg.S3SecretKey,
			cfg.S3Bucket, cfg.S3PublicURL,
		)
		if err != nil {
			slog.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
	}
	if storageClient != nil {
		slog.Info("s3 storage connected", "endpoint", cfg.S3Endpoint, "bucket", cfg.S3Bucket)
	} else {
		slog.Warn("s3 storage not configured — serving PDFs from on-demand renders")
	}

	// Initialize the SES mailer (optional — disabled without a sender).
	sesMailer, err := mailer.New(context.Background(), cfg.SESRegion, cfg.FromAddress, cfg.FromName)
	if err != nil {
		slog.Error("failed to initialize mailer", "error", err)
		os.Exit(1)
	}
	if sesMailer == nil {
		slog.Warn("email not configured — certificate notifications disabled")
	}

	// Wrap optional collaborators explicitly so a missing one is a true
	// nil interface, not a typed nil.
	var objectStore issuance.ObjectStore
	if storageClient != nil {
		objectStore = storageClient
	}
	var notifier issuance.Notifier
	if sesMailer != nil {
		notifier = sesMailer
	}

	issuanceService := issuance.New(
		templateStore, certStore,
		imageCache, pdfCache, qrCache,
		objectStore, notifier, verifyCache,
		cfg.BaseURL,
	)

	// Create handler groups with their dependencies.
	adminHandlers := handlers.NewAdmin(templateStore, certStore, imageCache, pdfCache, qrCache)
	publicHandlers := handlers.NewPublic(renderer, issuanceService, templateStore, certStore, verifyCache, storageClient)

	// Set up the Chi router with all middleware and routes.
	r := router.New(adminHandlers, publicHandlers, cfg.AuthJWTSecret)

	// Create the HTTP server with sensible timeouts. WriteTimeout must
	// accommodate a cold issuance: image fetches plus PDF render plus the
	// S3 upload.
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain connections.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}
