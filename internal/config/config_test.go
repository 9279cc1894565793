package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todo-planner/internal/service"
)

var keys = []string{
	"DATABASE_URL", "HTTP_ADDR", "PURGE_TIME", "TIMEZONE", "PURGE_ON_LIST",
	"SESSION_TTL", "COOKIE_SECURE", "COOKIE_SAMESITE", "CORS_ORIGINS",
	"LOG_LEVEL", "TELEGRAM_TOKEN", "TELEGRAM_ALLOWED_IDS", "DIGEST_TIME",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	// Run from an empty directory so a developer's .env is not picked up.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "todo_planner.db", cfg.DatabaseURL)
	assert.Equal(t, ":5000", cfg.HTTPAddr)
	assert.Equal(t, "00:00", cfg.PurgeTime)
	assert.Equal(t, 168*time.Hour, cfg.SessionTTL)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, http.SameSiteNoneMode, cfg.SameSite())
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins)
	assert.False(t, cfg.PurgeOnList)
	assert.Empty(t, cfg.TelegramToken)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}

func TestLoad_FromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	content := "HTTP_ADDR=127.0.0.1:8080\n" +
		"PURGE_TIME=03:30\n" +
		"TIMEZONE=UTC\n" +
		"PURGE_ON_LIST=true\n" +
		"SESSION_TTL=2h\n" +
		"COOKIE_SAMESITE=Lax\n" +
		"CORS_ORIGINS=https://a.example, https://b.example\n" +
		"TELEGRAM_TOKEN=abc\n" +
		"TELEGRAM_ALLOWED_IDS=42, 7\n" +
		"DIGEST_TIME=08:00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr)
	assert.Equal(t, "03:30", cfg.PurgeTime)
	assert.True(t, cfg.PurgeOnList)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, http.SameSiteLaxMode, cfg.SameSite())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, []int64{42, 7}, cfg.TelegramUsers)
	assert.Equal(t, "08:00", cfg.DigestTime)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "purge time", key: "PURGE_TIME", val: "midnight"},
		{name: "timezone", key: "TIMEZONE", val: "Mars/Olympus"},
		{name: "same site", key: "COOKIE_SAMESITE", val: "sometimes"},
		{name: "log level", key: "LOG_LEVEL", val: "loud"},
		{name: "telegram id", key: "TELEGRAM_ALLOWED_IDS", val: "abc"},
		{name: "digest time", key: "DIGEST_TIME", val: "25:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestValidate_DailyTimesMatchScheduler(t *testing.T) {
	base := Config{
		DatabaseURL:    "x.db",
		HTTPAddr:       ":5000",
		PurgeTime:      "00:00",
		Timezone:       "UTC",
		SessionTTL:     time.Hour,
		CookieSameSite: "lax",
		LogLevel:       "info",
	}
	require.NoError(t, base.Validate())

	for _, in := range []string{"00:00", "7:05", "07:05", "23:59", "7:5", "24:00", "12:60", "3:04PM", "noon", "-1:30", "12"} {
		t.Run(in, func(t *testing.T) {
			cfg := base
			cfg.PurgeTime = in
			cfg.DigestTime = in
			want := service.ValidateDailyTime(in)
			if want == nil {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}

	assert.Error(t, service.ValidateDailyTime("24:00"))
	assert.NoError(t, service.ValidateDailyTime("7:05"))
}

func TestLoad_TelegramNeedsAllowList(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "abc")

	_, err := Load("")
	assert.ErrorContains(t, err, "TELEGRAM_ALLOWED_IDS")
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)
}
