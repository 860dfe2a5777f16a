package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	StorageBackend string        `mapstructure:"STORAGE_BACKEND"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir  string        `mapstructure:"MIGRATIONS_DIR"`
	AutoMigrate    bool          `mapstructure:"AUTO_MIGRATE"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	LockTTL        time.Duration `mapstructure:"LOCK_TTL"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`

	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	JWTAudience   string        `mapstructure:"JWT_AUDIENCE"`
	JWTSigningKey string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTExpiry     time.Duration `mapstructure:"JWT_EXPIRY"`
	BcryptCost    int           `mapstructure:"BCRYPT_COST"`

	PasswordSetupURL    string        `mapstructure:"PASSWORD_SETUP_URL"`
	PasswordSetupExpiry time.Duration `mapstructure:"PASSWORD_SETUP_EXPIRY"`
	NotifyWebhookURL    string        `mapstructure:"NOTIFY_WEBHOOK_URL"`

	DefaultAdminEmail     string `mapstructure:"DEFAULT_ADMIN_EMAIL"`
	DefaultAdminPassword  string `mapstructure:"DEFAULT_ADMIN_PASSWORD"`
	DefaultAdminFirstName string `mapstructure:"DEFAULT_ADMIN_FIRST_NAME"`
	DefaultAdminLastName  string `mapstructure:"DEFAULT_ADMIN_LAST_NAME"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var envKeys = []string{
	"PORT", "ENV", "LOG_LEVEL", "STORAGE_BACKEND", "DATABASE_URL",
	"DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_DIR", "AUTO_MIGRATE",
	"REDIS_URL", "LOCK_TTL", "DEFAULT_TENANT",
	"JWT_ISSUER", "JWT_AUDIENCE", "JWT_SIGNING_KEY", "JWT_EXPIRY", "BCRYPT_COST",
	"PASSWORD_SETUP_URL", "PASSWORD_SETUP_EXPIRY", "NOTIFY_WEBHOOK_URL",
	"DEFAULT_ADMIN_EMAIL", "DEFAULT_ADMIN_PASSWORD",
	"DEFAULT_ADMIN_FIRST_NAME", "DEFAULT_ADMIN_LAST_NAME",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_BACKEND", BackendPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("AUTO_MIGRATE", true)
	v.SetDefault("LOCK_TTL", "5s")
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("JWT_ISSUER", "clinic-api")
	v.SetDefault("JWT_AUDIENCE", "clinic-clients")
	v.SetDefault("JWT_EXPIRY", "8h")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("PASSWORD_SETUP_URL", "http://localhost:4200/auth/setup-password")
	v.SetDefault("PASSWORD_SETUP_EXPIRY", "24h")
	v.SetDefault("DEFAULT_ADMIN_EMAIL", "admin@clinic.local")
	v.SetDefault("DEFAULT_ADMIN_FIRST_NAME", "System")
	v.SetDefault("DEFAULT_ADMIN_LAST_NAME", "Administrator")
	v.SetDefault("CORS_ORIGINS", "http://localhost:4200")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is not set; a random key is generated per process.")
		log.Println("WARNING: issued tokens stop validating after a restart. Do NOT run like this in production.")
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UsesPostgres reports whether repositories are backed by PostgreSQL.
func (c *Config) UsesPostgres() bool {
	return c.StorageBackend == BackendPostgres
}

// Validate checks that the configuration is safe to run. Outside development a
// signing key of at least 32 bytes is mandatory so that tokens survive restarts
// and cannot be brute forced.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND is %q", BackendPostgres)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.StorageBackend)
	}

	if !c.IsDev() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes outside development (ENV=%q)", c.Env)
	}
	if c.JWTIssuer == "" || c.JWTAudience == "" {
		return fmt.Errorf("JWT_ISSUER and JWT_AUDIENCE are required")
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}
	if c.PasswordSetupExpiry <= 0 {
		return fmt.Errorf("PASSWORD_SETUP_EXPIRY must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if c.DefaultTenant == "" {
		return fmt.Errorf("DEFAULT_TENANT must not be empty")
	}
	return nil
}
