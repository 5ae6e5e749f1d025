package global

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
server:
  port: 8080
  gatewayId: gw-test
redis:
  addr: localhost:6379
nats:
  servers: ["nats://localhost:4222"]
mongo:
  uri: mongodb://localhost:27017
  database: convoy
auth:
  secret: 0123456789abcdef0123456789abcdef
sampler:
  movingInterval: 2s
  stationaryInterval: 10s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	t.Setenv("CONVOY_CONFIG", p)
	return p
}

func TestLoadConfig(t *testing.T) {
	writeConfig(t, validYAML)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "gw-test", cfg.Server.GatewayID)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.Nats.Servers)
	assert.Equal(t, 2*time.Second, cfg.Sampler.MovingInterval.Std())
	assert.Equal(t, 10*time.Second, cfg.Sampler.StationaryInterval.Std())
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	writeConfig(t, validYAML)
	t.Setenv("CONVOY_JWT_SECRET", "env-secret-0123456789abcdef")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "env-secret-0123456789abcdef", cfg.Auth.Secret)
}

func TestLoadConfigDerivesGatewayID(t *testing.T) {
	body := `
server:
  port: 8080
redis:
  addr: localhost:6379
nats:
  servers: ["nats://localhost:4222"]
mongo:
  uri: mongodb://localhost:27017
  database: convoy
auth:
  secret: 0123456789abcdef0123456789abcdef
`
	writeConfig(t, body)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Contains(t, cfg.Server.GatewayID, "convoy-gw-")
}

func TestLoadConfigRejectsShortSecret(t *testing.T) {
	body := `
server:
  port: 8080
redis:
  addr: localhost:6379
nats:
  servers: ["nats://localhost:4222"]
mongo:
  uri: mongodb://localhost:27017
  database: convoy
auth:
  secret: short
`
	writeConfig(t, body)

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("CONVOY_CONFIG", filepath.Join(t.TempDir(), "absent.yml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}
