package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lotteryd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"), true)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Settlement.CreditWinnings)
	assert.Equal(t, 10*time.Minute, cfg.Settlement.LockTTL)
	assert.Equal(t, "@every 15m", cfg.Scheduler.ResultSync)

	_, err = LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"), false)
	assert.Error(t, err)
}

func TestFileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
  cors_origins: ["https://app.example"]
database:
  dsn: postgres://lottery@localhost/lottery
settlement:
  credit_winnings: false
  lock_ttl: 2m
feed:
  url: https://feed.example
`)
	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := LoadFromPath(path, false)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9191", cfg.Server.Addr())
	assert.Equal(t, []string{"https://app.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres://lottery@localhost/lottery", cfg.Database.DSN)
	assert.False(t, cfg.Settlement.CreditWinnings)
	assert.Equal(t, 2*time.Minute, cfg.Settlement.LockTTL)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "/results", cfg.Feed.Path)
}

func TestValidationFailures(t *testing.T) {
	path := writeFile(t, `
server:
  port: 70000
feed:
  url: ftp://feed.example
scheduler:
  enabled: true
  time_zone: Mars/Olympus
`)
	_, err := LoadFromPath(path, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port 70000 out of range")
	assert.Contains(t, err.Error(), "feed.url must be an http(s) URL")
	assert.Contains(t, err.Error(), "scheduler.time_zone")
}

func TestMalformedYAML(t *testing.T) {
	path := writeFile(t, "server: [unclosed")
	_, err := LoadFromPath(path, false)
	assert.Error(t, err)
}

func TestSchedulerLocation(t *testing.T) {
	assert.Equal(t, time.UTC, SchedulerConfig{}.Location())
	assert.Equal(t, "America/Bogota", SchedulerConfig{TimeZone: "America/Bogota"}.Location().String())
}
