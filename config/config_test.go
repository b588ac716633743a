package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("config.example.yaml")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "Asia/Shanghai", cfg.Server.Location.String())
	assert.Equal(t, 24*time.Hour, cfg.Jobs.StaleAfter)
	assert.Equal(t, 300*time.Second, cfg.Collector.Interval)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "north", cfg.Collector.Request.Payload["site"])
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "database:\n  dsn: \"file::memory:\"\n"))
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 1.0, cfg.Billing.FallbackPrice)
	assert.Equal(t, "0 2 * * 0", cfg.Jobs.BackupSpec)
	assert.Equal(t, "dir", cfg.Backup.Target)
	assert.Equal(t, "dianbiao/readings", cfg.MQTT.Topic)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DIANBIAO_DATABASE_DSN", "postgres://env")
	t.Setenv("DIANBIAO_SERVER_PORT", "8080")
	t.Setenv("DIANBIAO_AUTH_JWT_SECRET", "from-env")

	cfg, err := Load(writeConfig(t, "server:\n  port: 5000\ndatabase:\n  dsn: postgres://file\n"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server:\n  timezone: Mars/Olympus\n"))
	assert.Error(t, err)
}
