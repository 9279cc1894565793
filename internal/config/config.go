package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"todo-planner/internal/service"
)

// Config keeps runtime settings for the service.
type Config struct {
	DatabaseURL    string        `validate:"required"`
	HTTPAddr       string        `validate:"required"`
	PurgeTime      string        `validate:"required,clock"`
	Timezone       string        `validate:"required,location"`
	PurgeOnList    bool
	SessionTTL     time.Duration `validate:"gt=0"`
	CookieSecure   bool
	CookieSameSite string        `validate:"oneof=lax strict none"`
	CORSOrigins    []string
	LogLevel       string        `validate:"oneof=debug info warn error"`
	TelegramToken  string
	TelegramUsers  []int64
	DigestTime     string        `validate:"omitempty,clock"`
}

var defaults = map[string]any{
	"DATABASE_URL":    "todo_planner.db",
	"HTTP_ADDR":       ":5000",
	"PURGE_TIME":      "00:00",
	"TIMEZONE":        "Local",
	"PURGE_ON_LIST":   false,
	"SESSION_TTL":     "168h",
	"COOKIE_SECURE":   true,
	"COOKIE_SAMESITE": "none",
	"CORS_ORIGINS":    "http://localhost:5173",
	"LOG_LEVEL":       "info",
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		return service.ValidateDailyTime(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		_, err := Config{Timezone: fl.Field().String()}.Location()
		return err == nil
	})
	return v
}

// Load reads configuration from an optional .env file and the environment.
// envFile may be empty, in which case ./.env is tried.
func Load(envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	_ = v.BindEnv("TELEGRAM_TOKEN")
	_ = v.BindEnv("TELEGRAM_ALLOWED_IDS")
	_ = v.BindEnv("DIGEST_TIME")

	cfg := Config{
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		HTTPAddr:       strings.TrimSpace(v.GetString("HTTP_ADDR")),
		PurgeTime:      strings.TrimSpace(v.GetString("PURGE_TIME")),
		Timezone:       strings.TrimSpace(v.GetString("TIMEZONE")),
		PurgeOnList:    v.GetBool("PURGE_ON_LIST"),
		SessionTTL:     v.GetDuration("SESSION_TTL"),
		CookieSecure:   v.GetBool("COOKIE_SECURE"),
		CookieSameSite: strings.ToLower(strings.TrimSpace(v.GetString("COOKIE_SAMESITE"))),
		CORSOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		LogLevel:       strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		TelegramToken:  strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		DigestTime:     strings.TrimSpace(v.GetString("DIGEST_TIME")),
	}

	users, err := parseIDs(v.GetString("TELEGRAM_ALLOWED_IDS"))
	if err != nil {
		return cfg, err
	}
	cfg.TelegramUsers = users

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("config: %s fails %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.TelegramToken != "" && len(c.TelegramUsers) == 0 {
		return fmt.Errorf("config: TELEGRAM_ALLOWED_IDS is required when TELEGRAM_TOKEN is set")
	}
	return nil
}

// Location resolves Timezone, where "Local" means the host zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SameSite maps CookieSameSite onto net/http.
func (c Config) SameSite() http.SameSite {
	switch c.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteNoneMode
	}
}

// SlogLevel maps LogLevel onto slog.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
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

func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(raw) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid telegram id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
