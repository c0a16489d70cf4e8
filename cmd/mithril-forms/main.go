// Package main is the entrypoint for the Mithril Forms server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GyroZepelix/mithril-forms/internal/attachment"
	"github.com/GyroZepelix/mithril-forms/internal/audit"
	"github.com/GyroZepelix/mithril-forms/internal/auth"
	"github.com/GyroZepelix/mithril-forms/internal/config"
	"github.com/GyroZepelix/mithril-forms/internal/database"
	"github.com/GyroZepelix/mithril-forms/internal/forms"
	"github.com/GyroZepelix/mithril-forms/internal/schema"
	"github.com/GyroZepelix/mithril-forms/internal/schemaapi"
	"github.com/GyroZepelix/mithril-forms/internal/server"
	"github.com/GyroZepelix/mithril-forms/internal/submission"
)

// tokenPruneInterval is how often expired refresh tokens are deleted.
const tokenPruneInterval = time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("mithril-forms stopped with an error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	// --- Set up structured logging ---
	logLevel := slog.LevelInfo
	if cfg.DevMode || cfg.DebugEval {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("starting Mithril Forms",
		"port", cfg.Port,
		"schema_dir", cfg.SchemaDir,
		"upload_dir", cfg.UploadDir,
		"dev_mode", cfg.DevMode,
	)

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("MITHRIL_DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("MITHRIL_JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to database ---
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()

	db, err := database.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	slog.Info("database connected")

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations applied")

	// --- Load, validate and register form definitions ---
	loaded, err := schema.LoadSchemas(cfg.SchemaDir)
	if err != nil {
		return fmt.Errorf("loading forms: %w", err)
	}
	if err := schema.ValidateSchemas(loaded); err != nil {
		return err
	}
	for _, w := range schema.Lint(loaded) {
		slog.Warn("form definition warning", "form", w.Form, "field", w.Field, "message", w.Message)
	}
	slog.Info("forms loaded", "count", len(loaded))

	engine := schema.NewEngine(db, cfg.DevMode)
	applyCtx, applyCancel := context.WithTimeout(ctx, 30*time.Second)
	defer applyCancel()
	if err := engine.Apply(applyCtx, loaded); err != nil {
		return fmt.Errorf("registering forms: %w", err)
	}

	registry := forms.NewRegistry(loaded)

	// --- Audit ---
	auditService := audit.NewService(audit.NewRepository(db))
	auditService.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		auditService.Shutdown(shutdownCtx)
	}()

	// --- Reviewer authentication ---
	authService := auth.NewService(auth.NewRepository(db), cfg.JWTSecret)
	if cfg.ReviewerEmail != "" && cfg.ReviewerPassword != "" {
		seedCtx, seedCancel := context.WithTimeout(ctx, 10*time.Second)
		defer seedCancel()
		if err := authService.EnsureReviewer(seedCtx, cfg.ReviewerEmail, cfg.ReviewerPassword); err != nil {
			return fmt.Errorf("seeding reviewer: %w", err)
		}
	}
	go authService.PruneTokens(ctx, tokenPruneInterval)

	// --- Domain services ---
	submissionService := submission.NewService(registry, submission.NewRepository(db), auditService, cfg.DebugEval)

	storage, err := attachment.NewLocalStorage(cfg.UploadDir)
	if err != nil {
		return fmt.Errorf("initializing upload storage: %w", err)
	}
	attachmentService := attachment.NewService(attachment.NewRepository(db), storage, auditService)

	schemaHandler := schemaapi.NewHandler(engine, cfg.SchemaDir, registry, auditService)

	router := server.NewRouter(server.Dependencies{
		DB:             db,
		CORSOrigins:    cfg.CORSOrigins,
		Auth:           auth.NewHandler(authService, auditService, cfg.DevMode),
		Forms:          forms.NewHandler(registry, forms.NewRepository(db.Pool())),
		Submissions:    submission.NewHandler(submissionService, registry),
		Attachments:    attachment.NewHandler(attachmentService, registry),
		AuditList:      audit.NewHandler(auditService).List,
		SchemaRefresh:  schemaHandler.Refresh,
		SchemaLint:     schemaHandler.Lint,
		AuthMiddleware: auth.Middleware(cfg.JWTSecret),
		PublicForm:     registry.RequirePublic,
	})

	srv := server.New(fmt.Sprintf(":%d", cfg.Port), router)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("serving HTTP: %w", err)
	}

	slog.Info("Mithril Forms stopped")
	return nil
}
