package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/bootstrap"
	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinic-server",
		Short:         "Multi-tenant clinic management API",
		SilenceUsage:  true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(tenantCmd())
	return root
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
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.UsesPostgres() {
		return nil, nil, fmt.Errorf("migrations need STORAGE_BACKEND=%s", config.BackendPostgres)
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}
	pool, err := openPool(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, os.DirFS(dir)), pool.Close, nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the fixed roles and the default administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.bootstrap(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Roles: %d inserted, %d replaced, %d unchanged.\n",
					res.Roles.Inserted, res.Roles.Replaced, res.Roles.Unchanged)
				if res.Admin != nil {
					fmt.Fprintf(out, "Created administrator %s in tenant %s.\n", res.Admin.Email, a.cfg.DefaultTenant)
				}
				return nil
			})
		},
	}

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Fill a tenant with fake doctors, patients and appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := bootstrap.DefaultDemoOptions()
			tenant, _ := cmd.Flags().GetString("tenant")
			opts.Doctors, _ = cmd.Flags().GetInt("doctors")
			opts.Patients, _ = cmd.Flags().GetInt("patients")
			opts.Appointments, _ = cmd.Flags().GetInt("appointments")
			opts.Seed, _ = cmd.Flags().GetUint64("seed")

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if tenant == "" {
					tenant = a.cfg.DefaultTenant
				}
				if _, err := a.bootstrap(ctx); err != nil {
					return err
				}
				res, err := bootstrap.SeedDemo(ctx, bootstrap.DemoServices{
					Users:        a.identity,
					Patients:     a.patients,
					Appointments: a.scheduling,
				}, tenant, opts, a.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s: %d doctors, %d patients, %d appointments (%d skipped).\n",
					tenant, res.Doctors, res.Patients, res.Appointments, res.Skipped)
				return nil
			})
		},
	}
	defaults := bootstrap.DefaultDemoOptions()
	demoCmd.Flags().String("tenant", "", "Target tenant (default DEFAULT_TENANT)")
	demoCmd.Flags().Int("doctors", defaults.Doctors, "Number of doctors")
	demoCmd.Flags().Int("patients", defaults.Patients, "Number of patients")
	demoCmd.Flags().Int("appointments", defaults.Appointments, "Number of appointments to attempt")
	demoCmd.Flags().Uint64("seed", 0, "Random seed (0 picks one)")
	cmd.AddCommand(demoCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a tenant by registering its first administrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			email, _ := cmd.Flags().GetString("email")
			first, _ := cmd.Flags().GetString("first")
			last, _ := cmd.Flags().GetString("last")
			if id == "" || email == "" {
				return fmt.Errorf("--id and --email are required")
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if _, err := a.bootstrap(ctx); err != nil {
					return err
				}
				admin, err := bootstrap.ProvisionTenant(ctx, a.identity, id, bootstrap.AdminOptions{
					Email:     email,
					FirstName: first,
					LastName:  last,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tenant %s created; password setup link sent to %s.\n", id, admin.Email)
				return nil
			})
		},
	}
	createCmd.Flags().String("id", "", "Tenant identifier ([A-Za-z0-9_-], up to 64 characters)")
	createCmd.Flags().String("email", "", "Administrator email")
	createCmd.Flags().String("first", "Tenant", "Administrator first name")
	createCmd.Flags().String("last", "Administrator", "Administrator last name")
	cmd.AddCommand(createCmd)

	return cmd
}

// withApp loads config, wires the app and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	// The memory backend starts empty on every boot, so it always seeds.
	if cfg.AutoMigrate || !cfg.UsesPostgres() {
		if _, err := a.bootstrap(ctx); err != nil {
			logger.Error().Err(err).Msg("bootstrap failed")
			return err
		}
	}

	e := newServer(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("backend", cfg.StorageBackend).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer builds the echo instance: global middleware, health probes and
// the /api/v1 routes.
func newServer(a *app) *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ProblemHandler(logger, cfg.IsDev())

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader, db.TenantHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, echo.HeaderContentDisposition},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(db.TenantMiddleware(cfg.DefaultTenant))
	e.Use(auth.JWTMiddleware(a.tokens, auth.MiddlewareOptions{
		Skipper:     auth.AuthSkipper,
		Revocations: a.revocations,
	}))
	e.Use(middleware.Audit(logger))

	var pinger db.Pinger = db.NopPinger{}
	if a.pool != nil {
		pinger = a.pool
	}
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger, cfg.StorageBackend))

	api := e.Group("/api/v1", middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}))
	if a.pool != nil {
		api.Use(db.Transactional(a.pool, logger))
	}

	identity.NewHandler(a.identity).RegisterRoutes(api)
	patient.NewHandler(a.patients).RegisterRoutes(api)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	clinical.NewHandler(a.clinical).RegisterRoutes(api)
	billing.NewHandler(a.billing).RegisterRoutes(api)

	return e
}
