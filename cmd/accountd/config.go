package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	auth "github.com/goliatone/go-account"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

// Config is the command configuration, read from the environment
type Config struct {
	HTTPAddr     string
	BaseURL      string
	DBDriver     string
	DBDSN        string
	RedisURL     string
	LogLevel     string
	CookieSecure bool
	LoginRate    time.Duration
	LoginBurst   int
	Account      auth.Options
}

// loadConfig reads .env files when present, then ACCOUNT_* variables
func loadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to load "+f)
			}
		}
	}

	opts := auth.DefaultOptions()
	opts.RememberMeCookie = env("ACCOUNT_REMEMBER_COOKIE", "remember_me")
	opts.RoleCookie = env("ACCOUNT_ROLE_COOKIE", "role")
	opts.MailFromAddress = env("ACCOUNT_MAIL_FROM", "noreply@localhost.localdomain")
	opts.MailFromName = env("ACCOUNT_MAIL_FROM_NAME", "")

	cfg := Config{
		HTTPAddr: env("ACCOUNT_HTTP_ADDR", ":8080"),
		BaseURL:  env("ACCOUNT_BASE_URL", "http://localhost:8080"),
		DBDriver: strings.ToLower(env("ACCOUNT_DB_DRIVER", "sqlite")),
		DBDSN:    env("ACCOUNT_DB_DSN", "file:accounts.db?cache=shared"),
		RedisURL: env("ACCOUNT_REDIS_URL", ""),
		LogLevel: env("ACCOUNT_LOG_LEVEL", "info"),
		Account:  opts,
	}

	var err error
	if cfg.Account.ActivationKeyTTL, err = envDuration("ACCOUNT_ACTIVATION_TTL", auth.DefaultActivationKeyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Account.ResetKeyTTL, err = envDuration("ACCOUNT_RESET_TTL", auth.DefaultResetKeyTTL); err != nil {
		return Config{}, err
	}
	if cfg.LoginRate, err = envDuration("ACCOUNT_LOGIN_RATE", 0); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = envBool("ACCOUNT_COOKIE_SECURE", false); err != nil {
		return Config{}, err
	}
	if cfg.Account.DeleteExpiredAccounts, err = envBool("ACCOUNT_DELETE_EXPIRED", true); err != nil {
		return Config{}, err
	}
	if cfg.LoginBurst, err = envInt("ACCOUNT_LOGIN_BURST", 5); err != nil {
		return Config{}, err
	}

	switch cfg.DBDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, goerrors.New("unsupported ACCOUNT_DB_DRIVER "+cfg.DBDriver, goerrors.CategoryBadInput)
	}
	return cfg, nil
}

func env(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid duration in "+key)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid boolean in "+key)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := env(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid integer in "+key)
	}
	return n, nil
}
