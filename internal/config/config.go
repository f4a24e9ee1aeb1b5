package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	EnvLocal       = "local"
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	minProductionSecretLen = 32
)

var (
	ErrMissingJWTSecret  = errors.New("JWT_SECRET must be set")
	ErrWeakJWTSecret     = errors.New("JWT_SECRET is too short for production")
	ErrMissingDBPassword = errors.New("database password is required in production")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrInvalidBCryptCost = errors.New("bcrypt cost out of range")
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Worker    WorkerConfig    `json:"worker"`
	Auth      AuthConfig      `json:"auth"`
	CORS      CORSConfig      `json:"cors"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

type ServerConfig struct {
	Host            string        `json:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port            string        `json:"port" env:"PORT" envDefault:"5000"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `json:"idle_timeout" env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Environment     string        `json:"environment" env:"ENVIRONMENT" envDefault:"development"`
	LogLevel        string        `json:"log_level" env:"LOG_LEVEL" envDefault:"info"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver" env:"DB_DRIVER" envDefault:"postgres"`
	Host            string        `json:"host" env:"DB_HOST" envDefault:"localhost"`
	Port            string        `json:"port" env:"DB_PORT" envDefault:"5432"`
	User            string        `json:"user" env:"DB_USER" envDefault:"postgres"`
	Password        string        `json:"-" env:"DB_PASSWORD"`
	Name            string        `json:"name" env:"DB_NAME" envDefault:"todo"`
	SSLMode         string        `json:"ssl_mode" env:"DB_SSL_MODE" envDefault:"disable"`
	SQLitePath      string        `json:"sqlite_path" env:"DB_SQLITE_PATH" envDefault:"todo.db"`
	MaxOpenConns    int           `json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" env:"DB_CONN_MAX_IDLE_TIME" envDefault:"30m"`
}

type RedisConfig struct {
	Enabled          bool          `json:"enabled" env:"REDIS_ENABLED" envDefault:"true"`
	Host             string        `json:"host" env:"REDIS_HOST" envDefault:"localhost"`
	Port             string        `json:"port" env:"REDIS_PORT" envDefault:"6379"`
	Password         string        `json:"-" env:"REDIS_PASSWORD"`
	DB               int           `json:"db" env:"REDIS_DB" envDefault:"0"`
	PoolSize         int           `json:"pool_size" env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns     int           `json:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" envDefault:"5"`
	MaxRetries       int           `json:"max_retries" env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout      time.Duration `json:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout      time.Duration `json:"read_timeout" env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout     time.Duration `json:"write_timeout" env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	BreakerThreshold int           `json:"breaker_threshold" env:"CACHE_BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown" env:"CACHE_BREAKER_COOLDOWN" envDefault:"30s"`
	BreakerTrials    int           `json:"breaker_trials" env:"CACHE_BREAKER_TRIALS" envDefault:"3"`
}

type WorkerConfig struct {
	Concurrency  int           `json:"concurrency" env:"WORKER_CONCURRENCY" envDefault:"2"`
	PollInterval time.Duration `json:"poll_interval" env:"WORKER_POLL_INTERVAL" envDefault:"5s"`
	Queues       []string      `json:"queues" env:"WORKER_QUEUES" envSeparator:"," envDefault:"audit"`
}

// AuthConfig carries the token signing secret. The token lifetime is not
// configurable; see auth.TokenTTL.
type AuthConfig struct {
	JWTSecret  string `json:"-" env:"JWT_SECRET"`
	BCryptCost int    `json:"bcrypt_cost" env:"BCRYPT_COST" envDefault:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AllowedMethods []string `json:"allowed_methods" env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,DELETE"`
}

type TelemetryConfig struct {
	ServiceName  string `json:"service_name" env:"OTEL_SERVICE_NAME" envDefault:"todo-api"`
	OTLPEndpoint string `json:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadConfig reads the configuration from the process environment and
// validates it. A missing JWT secret is a startup error in every environment.
func LoadConfig() (*Config, error) {
	return LoadFromMap(env.ToMap(os.Environ()))
}

// LoadFromMap is LoadConfig over an explicit set of variables.
func LoadFromMap(environ map[string]string) (*Config, error) {
	const op = "config.LoadFromMap"

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	if c.IsProduction() && len(c.Auth.JWTSecret) < minProductionSecretLen {
		return ErrWeakJWTSecret
	}

	if c.Auth.BCryptCost < 4 || c.Auth.BCryptCost > 31 {
		return fmt.Errorf("%w: %d", ErrInvalidBCryptCost, c.Auth.BCryptCost)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Password == "" && c.IsProduction() {
			return ErrMissingDBPassword
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDriver, c.Database.Driver)
	}

	return nil
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Driver == DriverSQLite {
		return c.Database.SQLitePath
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}
