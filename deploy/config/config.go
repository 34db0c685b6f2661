package config

import (
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"log"
	"net/url"
	"strings"
	"time"
)

const (
	DriverPostgREST = "postgrest"
	DriverPostgres  = "postgres"
	DriverBadger    = "badger"

	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

type Config struct {
	HTTPServer HTTPServer
	Provider   Provider
	Storage    Storage
	Notify     Notify
	Trigger    Trigger
	Supervisor Supervisor
	Log        Log
}

type HTTPServer struct {
	Port        string        `env:"HTTP_PORT" env-default:"8082"`
	Timeout     time.Duration `env:"HTTP_TIMEOUT" env-default:"2m"`
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type Provider struct {
	URL                string        `env:"PROVIDER_URL" env-default:"https://www.koreaexim.go.kr/site/program/financial/exchangeJSON"`
	AuthKey            string        `env:"PROVIDER_AUTH_KEY"`
	Timeout            time.Duration `env:"PROVIDER_TIMEOUT" env-default:"10s"`
	TimeZone           string        `env:"PROVIDER_TIMEZONE" env-default:"Asia/Seoul"`
	InsecureSkipVerify bool          `env:"PROVIDER_INSECURE_SKIP_VERIFY" env-default:"false"`
}

type Storage struct {
	Driver        string        `env:"STORAGE_DRIVER" env-default:"postgrest"`
	Timeout       time.Duration `env:"STORAGE_TIMEOUT" env-default:"10s"`
	MaxWindowDays int           `env:"STORAGE_MAX_WINDOW_DAYS" env-default:"100"`
	Migrate       bool          `env:"STORAGE_MIGRATE" env-default:"false"`

	PostgRESTURL   string `env:"POSTGREST_URL" env-default:"http://localhost:3000"`
	PostgRESTTable string `env:"POSTGREST_TABLE" env-default:"exchange_rates"`

	Host     string `env:"BD_HOST" env-default:"localhost"`
	Port     int    `env:"BD_PORT" env-default:"5432"`
	User     string `env:"BD_USER"`
	Password string `env:"BD_PASSWORD"`
	DBName   string `env:"BD_DBNAME"`
	SSLMode  string `env:"BD_SSL_MODE" env-default:"disable"`
	Schema   string `env:"BD_SCHEMA" env-default:"public"`

	BadgerPath string `env:"BADGER_PATH" env-default:"./data/badger"`
}

type Notify struct {
	Driver string `env:"NOTIFY_DRIVER" env-default:""`

	RedisHost     string `env:"REDIS_HOST" env-default:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisChannel  string `env:"REDIS_CHANNEL" env-default:"rates_updated"`

	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaTopic   string `env:"KAFKA_TOPIC" env-default:"rates.ingested"`
}

type Trigger struct {
	TargetURL   string        `env:"TRIGGER_TARGET_URL" env-default:"http://localhost:8082/exchange_api2db"`
	ReadURL     string        `env:"TRIGGER_READ_URL" env-default:"http://localhost:8082/exchange_db2api"`
	CatchUpDays int           `env:"TRIGGER_CATCHUP_DAYS" env-default:"100"`
	Hour        int           `env:"TRIGGER_HOUR" env-default:"11"`
	Minute      int           `env:"TRIGGER_MINUTE" env-default:"30"`
	Timeout     time.Duration `env:"TRIGGER_TIMEOUT" env-default:"30s"`
	MaxAttempts int           `env:"TRIGGER_MAX_ATTEMPTS" env-default:"5"`
	BaseBackoff time.Duration `env:"TRIGGER_BASE_BACKOFF" env-default:"30s"`
	MaxBackoff  time.Duration `env:"TRIGGER_MAX_BACKOFF" env-default:"10m"`
	RunOnStart  bool          `env:"TRIGGER_RUN_ON_START" env-default:"false"`
}

type Supervisor struct {
	Port    string        `env:"PM2_HTTP_PORT" env-default:"8090"`
	Binary  string        `env:"PM2_BINARY" env-default:"pm2"`
	Timeout time.Duration `env:"PM2_TIMEOUT" env-default:"15s"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

func NewConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Error reading env: %v", err)
	}

	return cfg
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	const op = "config.Load"

	cfg := &Config{}

	_ = godotenv.Load(".env")

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, errors.Wrap(err, op)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, op)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgREST:
		if c.Storage.PostgRESTURL == "" {
			return fmt.Errorf("POSTGREST_URL is required for driver %q", c.Storage.Driver)
		}
	case DriverPostgres:
		if c.Storage.User == "" || c.Storage.DBName == "" {
			return fmt.Errorf("BD_USER and BD_DBNAME are required for driver %q", c.Storage.Driver)
		}
	case DriverBadger:
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Storage.MaxWindowDays < 1 {
		return fmt.Errorf("STORAGE_MAX_WINDOW_DAYS must be positive, got %d", c.Storage.MaxWindowDays)
	}

	switch c.Notify.Driver {
	case "", NotifyRedis:
	case NotifyKafka:
		if len(c.KafkaBrokers()) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for notify driver %q", c.Notify.Driver)
		}
	default:
		return fmt.Errorf("unknown NOTIFY_DRIVER %q", c.Notify.Driver)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Trigger.Hour < 0 || c.Trigger.Hour > 23 || c.Trigger.Minute < 0 || c.Trigger.Minute > 59 {
		return fmt.Errorf("invalid trigger time %02d:%02d", c.Trigger.Hour, c.Trigger.Minute)
	}

	return nil
}

// Location is the provider's business-day time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Provider.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid PROVIDER_TIMEZONE %q: %w", c.Provider.TimeZone, err)
	}

	return loc, nil
}

func (c *Config) KafkaBrokers() []string {
	return split(c.Notify.KafkaBrokers)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		c.Storage.Host,
		c.Storage.Port,
		c.Storage.User,
		c.Storage.Password,
		c.Storage.DBName,
		c.Storage.SSLMode,
		c.Storage.Schema,
	)
}

// PostgresURL is the URL form of the DSN for the migration runner.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.Storage.User, c.Storage.Password),
		Host:     fmt.Sprintf("%s:%d", c.Storage.Host, c.Storage.Port),
		Path:     "/" + c.Storage.DBName,
		RawQuery: url.Values{"sslmode": {c.Storage.SSLMode}, "search_path": {c.Storage.Schema}}.Encode(),
	}

	return u.String()
}

func split(str string) []string {
	if str == "" {
		return nil
	}

	var out []string
	for _, s := range strings.Split(str, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out
}
