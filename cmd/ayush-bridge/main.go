package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aryan-tembhurne5XX5/AIIMS/internal/config"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/domain/terminology"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/ingest"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/analytics"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/auth"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/db"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/fhir"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/metrics"
	"github.com/aryan-tembhurne5XX5/AIIMS/internal/platform/middleware"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "ayush-bridge",
		Short: "NAMASTE / ICD-11 TM2 terminology bridge server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the terminology API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Validate the configured datasets without starting the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run reference table migrations",
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
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required to run migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
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
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required to check migrations")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newLogger(level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(level); err == nil && lvl != zerolog.NoLevel {
		logger = logger.Level(lvl)
	}
	return logger
}

// newLoader assembles the dataset loader for the configured backend. The
// postgres backend reads the reference tables through pool; the files
// backend reads the ICD-11 extract plus one NAMASTE CSV per traditional
// system, skipping systems with no path configured.
func newLoader(cfg *config.Config, pool *pgxpool.Pool) terminology.DatasetLoader {
	if cfg.DatasetBackend == "postgres" {
		return ingest.NewLoader(&ingest.PGSource{Pool: pool})
	}

	sources := []ingest.TermSource{
		&ingest.ICD11FileSource{Path: cfg.ICD11DatasetPath},
	}
	namastePaths := map[terminology.SourceSystem]string{
		terminology.SystemAyurveda: cfg.AyurvedaCSVPath,
		terminology.SystemUnani:    cfg.UnaniCSVPath,
		terminology.SystemSiddha:   cfg.SiddhaCSVPath,
	}
	for _, sys := range terminology.TraditionalSystems {
		if path := namastePaths[sys]; path != "" {
			sources = append(sources, &ingest.NAMASTEFileSource{System: sys, Path: path})
		}
	}
	return ingest.NewLoader(sources...)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// Database (only for the postgres dataset backend)
	var pool *pgxpool.Pool
	if cfg.DatasetBackend == "postgres" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
	}

	// Initial index build. An empty dataset is a fatal startup error;
	// there is nothing useful an empty terminology server can do.
	loader := newLoader(cfg, pool)
	records, err := loader.Load(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load datasets")
	}
	ix, err := terminology.BuildIndex(records)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build terminology index")
	}

	svc := terminology.NewService(ix, loader, terminology.ResolverConfig{
		AutocompleteMinScore: cfg.AutocompleteMinScore,
		AutocompleteLimit:    cfg.AutocompleteLimit,
		MappingMinScore:      cfg.MappingMinScore,
	})
	stats := svc.Stats()
	observeIndex(stats)
	logger.Info().
		Int("records", stats.TotalRecords).
		Int("keys", stats.DistinctKeys).
		Msg("terminology index built")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))

	// Auth middleware
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret)}))
	}

	e.Use(middleware.Audit(logger))

	// API groups
	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	fhirGroup.Use(middleware.RateLimit(rateLimitCfg))

	// Queries are pure in-memory computations; anything stuck this long is
	// a reload waiting on an unresponsive upstream.
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))
	fhirGroup.Use(middleware.RequestTimeout(30 * time.Second))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
			"dataset": svc.Stats(),
		})
	})
	e.GET("/metrics", metrics.Handler())
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// FHIR CapabilityStatement
	capHandler := fhir.NewCapabilityHandler(fhir.CapabilityConfig{
		ServerVersion: version,
		BaseURL:       fmt.Sprintf("http://localhost:%s/fhir", cfg.Port),
	})
	capHandler.RegisterRoutes(fhirGroup)

	// Terminology domain
	tracker := analytics.NewQueryTracker(10000)
	termHandler := terminology.NewHandler(svc)
	termHandler.SetAnalytics(tracker)
	termHandler.RegisterRoutes(apiV1, fhirGroup)

	usageHandler := analytics.NewUsageHandler(tracker)
	usageHandler.RegisterRoutes(apiV1.Group("/admin/terminology", auth.RequireRole("admin")))

	// Scheduled dataset reloads
	if cfg.ReloadCron != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(cfg.ReloadCron, func() {
			start := time.Now()
			stats, err := svc.Reload(context.Background())
			if err != nil {
				metrics.ObserveReload("error", time.Since(start).Seconds())
				logger.Error().Err(err).Msg("scheduled reload failed; previous index keeps serving")
				return
			}
			metrics.ObserveReload("ok", time.Since(start).Seconds())
			observeIndex(stats)
			logger.Info().
				Int("records", stats.TotalRecords).
				Dur("took", time.Since(start)).
				Msg("scheduled reload complete")
		})
		if err != nil {
			logger.Fatal().Err(err).Str("spec", cfg.ReloadCron).Msg("invalid RELOAD_CRON expression")
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info().Str("spec", cfg.ReloadCron).Msg("scheduled reloads enabled")
	}

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

// runLoad performs a dry run of the dataset pipeline: load every source,
// build an index, and report what the server would serve. Exits non-zero
// on any load or build failure so CI can gate dataset updates.
func runLoad() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.DatasetBackend == "postgres" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
	}

	records, err := newLoader(cfg, pool).Load(ctx)
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}
	ix, err := terminology.BuildIndex(records)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	stats := ix.Stats()
	fmt.Printf("Backend: %s\n", cfg.DatasetBackend)
	for _, sys := range append([]terminology.SourceSystem{terminology.SystemICD11}, terminology.TraditionalSystems...) {
		fmt.Printf("%-10s %d record(s)\n", sys, stats.BySystem[sys])
	}
	fmt.Printf("Total: %d record(s), %d distinct term key(s)\n", stats.TotalRecords, stats.DistinctKeys)
	return nil
}

func observeIndex(stats terminology.IndexStats) {
	bySystem := make(map[string]int, len(stats.BySystem))
	for sys, n := range stats.BySystem {
		bySystem[string(sys)] = n
	}
	metrics.ObserveIndex(stats.DistinctKeys, bySystem)
}
