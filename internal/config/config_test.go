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
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, 25*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.PongWait)
	assert.Equal(t, 10*time.Second, cfg.Realtime.WriteWait)
	assert.Equal(t, 5*time.Second, cfg.Bus.ObserverTimeout)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: 9090
storage:
  driver: postgres
database:
  host: db.internal
  port: 6543
  user: triage
  name: er
triage:
  escalation_after: 5m
staff:
  - id: doc-1
    name: Dr. Lima
    role: doctor
    available: true
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Triage.EscalationAfter)
	require.Len(t, cfg.Staff, 1)
	assert.Equal(t, "Dr. Lima", cfg.Staff[0].Name)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal port=6543")
}

func TestSecretsComeFromEnvironment(t *testing.T) {
	dir := writeConfig(t, `
jwt:
  enabled: true
  secret: from-file
`)
	t.Setenv("TRIAGE_JWT_SECRET", "from-env")
	t.Setenv("TRIAGE_DATABASE_PASSWORD", "s3cret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown driver":  "storage:\n  driver: mongo\n",
		"jwt w/o secret":  "jwt:\n  enabled: true\n",
		"ping after pong": "realtime:\n  ping_interval: 90s\n",
		"email w/o host":  "notification:\n  email_enabled: true\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}
