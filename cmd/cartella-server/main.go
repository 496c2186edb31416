package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cartella/cartella/internal/config"
	"github.com/cartella/cartella/internal/domain/analysis"
	"github.com/cartella/cartella/internal/domain/document"
	"github.com/cartella/cartella/internal/domain/identity"
	"github.com/cartella/cartella/internal/domain/patient"
	"github.com/cartella/cartella/internal/platform/auth"
	"github.com/cartella/cartella/internal/platform/blobstore"
	"github.com/cartella/cartella/internal/platform/db"
	"github.com/cartella/cartella/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cartella-server",
		Short: "Clinical records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedRangesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	return cmd
}

func seedRangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-ranges",
		Short: "Seed the lab reference range table from the built-in directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			persisted := analysis.NewPersistedDirectory(pool)
			count, err := persisted.SeedFromStatic(ctx, analysis.NewStaticDirectory())
			if err != nil {
				return fmt.Errorf("seed reference ranges: %w", err)
			}

			fmt.Printf("Seeded %d reference range(s).\n", count)
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.MaxUploadBytes))

	// Auth middleware
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.TokenTTLHours)*time.Hour)
	if cfg.IsDev() {
		e.Use(auth.DevMiddleware())
	} else {
		e.Use(auth.Middleware(issuer, "/api/auth/login", "/health", "/health/db"))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	api := e.Group("/api")

	// Identity domain
	userRepo := identity.NewRepoPG(pool)
	identitySvc := identity.NewService(userRepo, issuer)
	identity.NewHandler(identitySvc).RegisterRoutes(api)

	// Patient domain
	patientRepo := patient.NewRepoPG(pool)
	patientSvc := patient.NewService(patientRepo)
	patient.NewHandler(patientSvc).RegisterRoutes(api)

	// Shared platform pieces for the upload pipelines
	blobs := blobstore.NewDiskStore(cfg.UploadDir, cfg.MaxUploadBytes)
	txRunner := db.NewTxRunner(pool)

	// Analysis domain
	static := analysis.NewStaticDirectory()
	persisted := analysis.NewPersistedDirectory(pool)
	rangeDir := analysis.NewFallbackDirectory(persisted, static)
	ingestor := analysis.NewIngestor(logger)
	analysisRepo := analysis.NewRepoPG(pool)
	analysisSvc := analysis.NewService(analysisRepo, rangeDir, persisted, ingestor, blobs, txRunner, patientSvc, logger)
	analysis.NewHandler(analysisSvc).RegisterRoutes(api)

	// Document domain
	docRepo := document.NewRepoPG(pool)
	docSvc := document.NewService(docRepo, blobs, patientSvc, static, logger)
	document.NewHandler(docSvc).RegisterRoutes(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
