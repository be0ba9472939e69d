// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
    "errors"
    "fmt"
    "io/fs"
    "log"
    "os"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/seat-reservation-engine/internal/database"
    "github.com/iliyamo/seat-reservation-engine/internal/engine"
)

const (
    EnvLocal = "local"
    EnvDev   = "dev"
    EnvProd  = "prod"
)

// Config holds all runtime configuration values.
type Config struct {
    Env       string // local, dev or prod; selects the log format
    Port      string // HTTP port to listen on
    JWTSecret string // secret used to verify buyer tokens
    DB        DBConfig
    Engine    EngineConfig
    AMQP      AMQPConfig
}

// DBConfig describes the MySQL connection.  MySQL is optional: without
// DB_HOST the service runs with the YAML catalog and keeps no ticket history.
type DBConfig struct {
    Enabled bool
    User    string
    Pass    string
    Host    string
    Port    string
    Name    string
}

// Options converts the config for database.Open.
func (c DBConfig) Options() database.Options {
    return database.Options{User: c.User, Password: c.Pass, Host: c.Host, Port: c.Port, Name: c.Name}
}

// EngineConfig holds the reservation policy and backend selection.
type EngineConfig struct {
    DefaultHoldTTL  time.Duration // HOLD_DEFAULT_TTL
    MaxHoldTTL      time.Duration // HOLD_MAX_TTL
    MaxSeatsPerCart int           // CART_MAX_SEATS
    SweepInterval   time.Duration // SWEEP_INTERVAL
    OpTimeout       time.Duration // LEDGER_OP_TIMEOUT
    LedgerBackend   string        // memory | redis
    LedgerPrefix    string        // key prefix for the redis ledger
    CatalogBackend  string        // yaml | mysql
    CatalogSeedFile string        // YAML catalog; imported into MySQL when CatalogBackend is mysql
}

// Policy returns the engine's view of the config.
func (c EngineConfig) Policy() engine.Config {
    return engine.Config{
        DefaultHoldTTL:  c.DefaultHoldTTL,
        MaxHoldTTL:      c.MaxHoldTTL,
        MaxSeatsPerCart: c.MaxSeatsPerCart,
        OpTimeout:       c.OpTimeout,
    }
}

// AMQPConfig configures the sales queue.  Publishing is on when a broker
// URL is set.
type AMQPConfig struct {
    Enabled  bool
    URL      string
    Queue    string
    AuditLog string // file the auditor appends to
}

// LoadEnvFile loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set.  An empty path means ".env",
// which may be absent.
func LoadEnvFile(path string) error {
    if path == "" {
        if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return fmt.Errorf("config.LoadEnvFile: %w", err)
        }
        return nil
    }
    if err := godotenv.Load(path); err != nil {
        return fmt.Errorf("config.LoadEnvFile: %w", err)
    }
    return nil
}

// Load reads configuration values from environment variables.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
    cfg := Config{
        Env:       must("APP_ENV"),
        Port:      must("APP_PORT"),
        JWTSecret: must("JWT_SECRET"),
        DB: DBConfig{
            User: envStr("DB_USER", "root"),
            Pass: os.Getenv("DB_PASS"),
            Host: os.Getenv("DB_HOST"),
            Port: envStr("DB_PORT", "3306"),
            Name: envStr("DB_NAME", "seat_reservation"),
        },
        Engine: EngineConfig{
            DefaultHoldTTL:  envDur("HOLD_DEFAULT_TTL", 5*time.Minute),
            MaxHoldTTL:      envDur("HOLD_MAX_TTL", 15*time.Minute),
            MaxSeatsPerCart: envInt("CART_MAX_SEATS", 10),
            SweepInterval:   envDur("SWEEP_INTERVAL", 2*time.Second),
            OpTimeout:       envDur("LEDGER_OP_TIMEOUT", 2*time.Second),
            LedgerBackend:   envStr("LEDGER_BACKEND", "memory"),
            LedgerPrefix:    envStr("LEDGER_PREFIX", "ledger"),
            CatalogBackend:  envStr("CATALOG_BACKEND", "yaml"),
            CatalogSeedFile: os.Getenv("CATALOG_SEED_FILE"),
        },
        AMQP: AMQPConfig{
            URL:      amqpURL(),
            Queue:    envStr("AMQP_QUEUE", "tickets.sold"),
            AuditLog: envStr("AUDIT_LOG_FILE", "logs/sales.log"),
        },
    }
    cfg.DB.Enabled = cfg.DB.Host != ""
    cfg.AMQP.Enabled = cfg.AMQP.URL != ""
    return cfg
}

// Validate checks combinations Load cannot check one variable at a time.
func (c Config) Validate() error {
    switch c.Env {
    case EnvLocal, EnvDev, EnvProd:
    default:
        return fmt.Errorf("APP_ENV must be one of local, dev, prod; got %q", c.Env)
    }
    switch c.Engine.LedgerBackend {
    case "memory", "redis":
    default:
        return fmt.Errorf("LEDGER_BACKEND must be memory or redis; got %q", c.Engine.LedgerBackend)
    }
    switch c.Engine.CatalogBackend {
    case "yaml":
        if c.Engine.CatalogSeedFile == "" {
            return errors.New("CATALOG_SEED_FILE is required with the yaml catalog")
        }
    case "mysql":
        if !c.DB.Enabled {
            return errors.New("CATALOG_BACKEND=mysql needs DB_HOST")
        }
    default:
        return fmt.Errorf("CATALOG_BACKEND must be yaml or mysql; got %q", c.Engine.CatalogBackend)
    }
    if c.Engine.DefaultHoldTTL <= 0 || c.Engine.MaxHoldTTL <= 0 || c.Engine.DefaultHoldTTL > c.Engine.MaxHoldTTL {
        return fmt.Errorf("hold TTLs must satisfy 0 < HOLD_DEFAULT_TTL (%s) <= HOLD_MAX_TTL (%s)", c.Engine.DefaultHoldTTL, c.Engine.MaxHoldTTL)
    }
    if c.Engine.MaxSeatsPerCart < 1 {
        return fmt.Errorf("CART_MAX_SEATS must be positive; got %d", c.Engine.MaxSeatsPerCart)
    }
    return nil
}

func amqpURL() string {
    if v := os.Getenv("RABBITMQ_URL"); v != "" {
        return v
    }
    return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}
