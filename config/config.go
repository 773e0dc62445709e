package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT"      envDefault:"8080"  validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// DatabaseURL may be empty locally; the server then keeps users in memory.
	DatabaseURL   string `env:"DATABASE_URL"   validate:"required_unless=Env local"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	JWTSecret   string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	BcryptCost  int           `env:"BCRYPT_COST"  envDefault:"12" validate:"min=10,max=14"`
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"5s" validate:"min=100ms,max=1m"`

	EmailProvider string `env:"EMAIL_PROVIDER" envDefault:"log" validate:"oneof=log smtp resend"`
	EmailFrom     string `env:"EMAIL_FROM"     validate:"required_unless=EmailProvider log"`
	SMTPHost      string `env:"SMTP_HOST"      validate:"required_if=EmailProvider smtp"`
	SMTPPort      int    `env:"SMTP_PORT"      envDefault:"587" validate:"min=1,max=65535"`
	SMTPUser      string `env:"SMTP_USER"`
	SMTPPass      string `env:"SMTP_PASS"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`

	// ExposeSignupOTP echoes the emailed code in the signup response.
	ExposeSignupOTP bool `env:"EXPOSE_SIGNUP_OTP" envDefault:"false"`

	OTPSweepSchedule string `env:"OTP_SWEEP_SCHEDULE" envDefault:"@every 5m" validate:"required"`
	SweepInProcess   bool   `env:"SWEEP_IN_PROCESS"   envDefault:"true"`
}

// SweeperConfig is what cmd/sweeper reads. It has no token or mail settings.
type SweeperConfig struct {
	Env      string `env:"ENV"       envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"  validate:"oneof=debug info warn error"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	DatabaseURL      string `env:"DATABASE_URL"       validate:"required"`
	OTPSweepSchedule string `env:"OTP_SWEEP_SCHEDULE" envDefault:"@every 5m" validate:"required"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Env != "local" && cfg.EmailProvider == "log" {
		return nil, errors.New("invalid config: EMAIL_PROVIDER=log is only allowed when ENV=local")
	}

	return cfg, nil
}

func LoadSweeper() (*SweeperConfig, error) {
	cfg := &SweeperConfig{}
	if err := parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parse(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level { return slogLevel(c.LogLevel) }

func (c *SweeperConfig) SlogLevel() slog.Level { return slogLevel(c.LogLevel) }

func slogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
