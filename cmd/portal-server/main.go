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

	"github.com/cinportal/cinportal/internal/config"
	"github.com/cinportal/cinportal/internal/domain/appointment"
	"github.com/cinportal/cinportal/internal/domain/booking"
	"github.com/cinportal/cinportal/internal/domain/location"
	"github.com/cinportal/cinportal/internal/domain/schedule"
	"github.com/cinportal/cinportal/internal/platform/auth"
	"github.com/cinportal/cinportal/internal/platform/cache"
	"github.com/cinportal/cinportal/internal/platform/db"
	"github.com/cinportal/cinportal/internal/platform/middleware"
	"github.com/cinportal/cinportal/internal/platform/notification"
	redisclient "github.com/cinportal/cinportal/internal/platform/redis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "National ID appointment portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			return nil
		},
	})

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a staff JWT for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("roles")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSecret == "" {
				return fmt.Errorf("AUTH_SECRET is not set")
			}

			token, err := auth.SignToken(auth.Config{
				Secret: cfg.AuthSecret,
				Issuer: cfg.AuthIssuer,
			}, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("subject", "staff-cli", "Token subject")
	cmd.Flags().StringSlice("roles", []string{"staff"}, "Roles to embed")
	cmd.Flags().Duration("ttl", 8*time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis backs the slot lock and the cancellation code store. Without it
	// the portal still runs: the database capacity guard keeps bookings
	// correct and codes live in process memory.
	var locker redisclient.SlotLocker = redisclient.NoopSlotLocker{}
	var codes booking.CodeStore = booking.NewInMemoryCodeStore()
	if cfg.RedisURL != "" {
		rdb, err := redisclient.NewClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rdb.Close()
		locker = redisclient.NewSlotLocker(rdb, cfg.SlotLockTTL)
		codes = redisclient.NewCodeStore(rdb)
		logger.Info().Msg("connected to redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, using in-process slot lock fallback and code store")
	}

	snapshots := cache.New(cfg.SnapshotTTL)
	snapshots.StartCleanup(ctx, time.Minute)

	// Notifications. Real SMTP / WhatsApp transports plug in behind the
	// sender interfaces; the default wiring discards messages.
	dispatcher := notification.NewDispatcher(
		notification.NoopEmailSender{},
		notification.NoopWhatsAppSender{},
		notification.NewTemplateEngine(),
		2,
	)

	// Repositories and services.
	locationRepo := location.NewRepoPG(pool)
	scheduleRepo := schedule.NewRepoPG(pool)
	appointmentRepo := appointment.NewRepoPG(pool)

	locationSvc := location.NewService(locationRepo)
	scheduleSvc := schedule.NewService(scheduleRepo, appointmentRepo, snapshots, schedule.Defaults{
		WorkingHours:      defaultWorkingHours(),
		MaxPerSlot:        cfg.MaxPerSlot,
		BookingWindowDays: cfg.BookingWindowDays,
		MaxCandidateDates: cfg.MaxCandidateDates,
	})
	appointmentSvc := appointment.NewService(appointmentRepo, dispatcher, scheduleSvc.Invalidate)

	policyCfg := booking.PolicyConfig{
		LockoutWindowDays: cfg.LockoutWindowDays,
		LockoutThreshold:  cfg.LockoutThreshold,
		RescheduleLimit:   cfg.RescheduleLimit,
	}
	bookingSvc := booking.NewService(
		appointmentRepo, scheduleSvc, locker, codes,
		booking.NewGuard(policyCfg), dispatcher, policyCfg, cfg.CancelCodeTTL,
	)

	// HTTP server.
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.OptionalJWT(auth.Config{
			Secret: cfg.AuthSecret,
			Issuer: cfg.AuthIssuer,
		}))
	}

	e.Use(middleware.Audit(logger))

	e.GET("/health", db.HealthHandler(pool))

	api := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	location.NewHandler(locationSvc).RegisterRoutes(api)
	schedule.NewHandler(scheduleSvc).RegisterRoutes(api)
	appointment.NewHandler(appointmentSvc).RegisterRoutes(api)
	booking.NewHandler(bookingSvc).RegisterRoutes(api)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func defaultWorkingHours() []string {
	return []string{
		"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
		"12:00", "14:00", "14:30", "15:00", "15:30", "16:00",
	}
}
