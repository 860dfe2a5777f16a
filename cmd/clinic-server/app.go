package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/bootstrap"
	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/billing"
	"github.com/clinic/clinic/internal/domain/clinical"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/lock"
	"github.com/clinic/clinic/internal/platform/notification"
)

// lockWait bounds how long a request queues behind another one holding the
// same doctor or billing key.
const lockWait = 3 * time.Second

// app is the wired object graph shared by the serve and seed commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	roles identity.RoleRepository
	users identity.UserRepository

	hasher      *auth.PasswordHasher
	tokens      *auth.TokenService
	revocations auth.RevocationList

	identity   *identity.Service
	patients   *patient.Service
	scheduling *scheduling.Service
	clinical   *clinical.Service
	billing    *billing.Service
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

// signingKey returns the configured HMAC key. Development without one gets a
// per-process random key; config.Validate refuses that anywhere else.
func signingKey(cfg *config.Config) ([]byte, error) {
	if cfg.JWTSigningKey != "" {
		return []byte(cfg.JWTSigningKey), nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return key, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		patientRepo      patient.Repository
		appointmentRepo  scheduling.Repository
		consultationRepo clinical.Repository
		billingRepo      billing.Repository
		providerRepo     billing.ProviderRepository
	)
	if cfg.UsesPostgres() {
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		logger.Info().Msg("connected to database")

		a.roles = identity.NewRoleRepoPG(pool)
		a.users = identity.NewUserRepoPG(pool)
		patientRepo = patient.NewRepoPG(pool)
		appointmentRepo = scheduling.NewRepoPG(pool)
		consultationRepo = clinical.NewRepoPG(pool)
		billingRepo = billing.NewRepoPG(pool)
		providerRepo = billing.NewProviderRepoPG(pool)
	} else {
		logger.Warn().Msg("memory storage backend: data is lost on restart")
		a.roles = identity.NewRoleRepoMem()
		a.users = identity.NewUserRepoMem(a.roles)
		patientRepo = patient.NewRepoMem()
		appointmentRepo = scheduling.NewRepoMem()
		consultationRepo = clinical.NewRepoMem()
		billingRepo = billing.NewRepoMem()
		providerRepo = billing.NewProviderRepoMem()
	}

	var locker lock.Locker = lock.NewLocalLocker(lockWait)
	a.revocations = auth.NewMemoryRevocations()
	if cfg.RedisURL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		locker = lock.NewRedisLocker(client, cfg.LockTTL, lockWait)
		a.revocations = auth.NewRedisRevocations(client)
		logger.Info().Msg("using redis for locks and token revocation")
	}

	key, err := signingKey(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.tokens = auth.NewTokenService(auth.JWTConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: key,
		Expiry:     cfg.JWTExpiry,
	})
	a.hasher = auth.NewPasswordHasher(cfg.BcryptCost)

	var sender notification.Sender = notification.NewLogSender(logger)
	if cfg.NotifyWebhookURL != "" {
		sender = notification.NewWebhookSender(cfg.NotifyWebhookURL, 10*time.Second)
	}
	notifier := notification.NewNotifier(sender, nil)

	a.identity = identity.NewService(a.users, a.roles, a.hasher, a.tokens, a.revocations, notifier,
		identity.Config{SetupURL: cfg.PasswordSetupURL, SetupExpiry: cfg.PasswordSetupExpiry}, logger)
	a.patients = patient.NewService(patientRepo)
	a.scheduling = scheduling.NewService(appointmentRepo, a.patients, a.identity, locker, logger)
	a.clinical = clinical.NewService(consultationRepo, a.patients, a.identity, a.scheduling)
	a.billing = billing.NewService(billingRepo, providerRepo, a.patients, a.identity, a.scheduling, locker, logger)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) adminOptions() bootstrap.AdminOptions {
	return bootstrap.AdminOptions{
		Email:     a.cfg.DefaultAdminEmail,
		Password:  a.cfg.DefaultAdminPassword,
		FirstName: a.cfg.DefaultAdminFirstName,
		LastName:  a.cfg.DefaultAdminLastName,
	}
}

// bootstrap migrates (postgres), reconciles the fixed roles and creates the
// first administrator.
func (a *app) bootstrap(ctx context.Context) (*bootstrap.Result, error) {
	var (
		m    bootstrap.Migrator
		inTx bootstrap.TxRunner
	)
	if a.pool != nil {
		m = db.NewMigrator(a.pool, os.DirFS(a.cfg.MigrationsDir))
		pool := a.pool
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return db.WithTx(ctx, pool, fn)
		}
	}
	seeder := bootstrap.NewSeeder(a.roles, a.users, a.hasher, a.cfg.DefaultTenant, a.adminOptions(), inTx, a.logger)
	res, err := bootstrap.Run(ctx, m, seeder)
	if err != nil {
		return nil, err
	}
	ev := a.logger.Info().
		Int("migrations", res.Migrations).
		Int("roles_inserted", res.Roles.Inserted).
		Int("roles_replaced", res.Roles.Replaced)
	if res.Admin != nil {
		ev = ev.Str("admin_email", res.Admin.Email)
	}
	ev.Msg("bootstrap complete")
	return res, nil
}
