package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env          string `env:"ENVIRONMENT"`
	ServerPort   int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS    string `env:"SERVER_DNS" envDefault:"http://localhost:8080"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"classwatch.sqlite"`
	CronSecret   string `env:"CRON_SECRET"`
	JWTSecret    string `env:"JWT_SECRET"`

	Registrar struct {
		BaseURL     string `env:"REGISTRAR_API_URL" envDefault:"https://classbrowser.uh.edu/api/classes"`
		Term        string `env:"REGISTRAR_TERM"` // 4-character term code, e.g. 2280
		TimeoutSecs int    `env:"REGISTRAR_TIMEOUT_SECS" envDefault:"30"`
	}

	Poll struct {
		Interval     time.Duration `env:"POLL_INTERVAL"` // zero disables the built-in scheduler
		SubjectDelay time.Duration `env:"POLL_SUBJECT_DELAY" envDefault:"500ms"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM" envDefault:"Classwatch <alerts@classwatch.dev>"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	log *zap.Logger
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	env.Parse(cfg)

	if err := cfg.validate(); err != nil {
		if cfg.Env == "production" {
			cfg.log.Sugar().Panic(err)
		}
		cfg.log.Sugar().Infof("%s (falling back to development defaults)", err)
		cfg.applyDevDefaults()
	}

	return cfg
}

func (cfg *Config) validate() error {
	if cfg.Registrar.Term == "" {
		return errors.New("REGISTRAR_TERM envvar must be populated with the current 4-character term code")
	}
	if len(cfg.Registrar.Term) != 4 {
		return fmt.Errorf("REGISTRAR_TERM must be a 4-character term code, got '%s'", cfg.Registrar.Term)
	}
	if cfg.CronSecret == "" {
		return errors.New("CRON_SECRET envvar must be populated")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET envvar must be populated")
	}
	return nil
}

func (cfg *Config) applyDevDefaults() {
	if cfg.Registrar.Term == "" {
		cfg.Registrar.Term = "2280"
	}
	if cfg.CronSecret == "" {
		cfg.CronSecret = "secret"
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-prod"
	}
}
