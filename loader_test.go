package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/joeecarter/health-gateway/gateway"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "static", cfg.Permissions.Type)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
  rate_limit: 5
  shutdown_timeout: 3s
log:
  level: debug
location: Europe/Berlin
permissions:
  type: static
  decision: denied
  grants:
    steps: granted
stores:
  - type: clickhouse
    dsn: clickhouse://localhost:9000
    database: health
    metrics_table: metrics
    metric_names:
      distance: distance_cycling
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5.0, cfg.HTTP.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "unset fields keep defaults")
	assert.Equal(t, "Europe/Berlin", cfg.Location)
	assert.Equal(t, "granted", cfg.Permissions.Grants["steps"])
	require.Len(t, cfg.Stores, 1)

	var ct configType
	require.NoError(t, cfg.Stores[0].Decode(&ct))
	assert.Equal(t, "clickhouse", ct.Type)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "http: [oops"))
	assert.Error(t, err)
}

func TestLoadMetricStoresFromConfig_SkipsUnknownTypes(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
stores:
  - type: influxdb
    url: http://localhost:8086
  - url: http://localhost:1234
`))
	require.NoError(t, err)

	stores, err := LoadMetricStoresFromConfig(cfg.Stores, zap.NewNop())

	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestLoadMetricStoresFromEnvironment(t *testing.T) {
	t.Run("nothing set", func(t *testing.T) {
		unsetEnv(t, CLICKHOUSE_DSN, CLICKHOUSE_DATABASE, CLICKHOUSE_METRICS_TABLE, CLICKHOUSE_CREATE_TABLES)

		stores, err := LoadMetricStoresFromEnvironment()
		require.NoError(t, err)
		assert.Empty(t, stores)
	})

	t.Run("partially set", func(t *testing.T) {
		unsetEnv(t, CLICKHOUSE_DATABASE, CLICKHOUSE_METRICS_TABLE)
		t.Setenv(CLICKHOUSE_DSN, "clickhouse://localhost:9000")

		_, err := LoadMetricStoresFromEnvironment()
		require.Error(t, err)
		assert.Equal(t,
			"Missing the following environment variables: [ CLICKHOUSE_DATABASE, CLICKHOUSE_METRICS_TABLE ]",
			err.Error())
	})
}

func TestLoadAuthority_Static(t *testing.T) {
	ctx := context.Background()
	authority, closeFn, err := LoadAuthority(ctx, PermissionConfig{
		Decision: "granted",
		Grants:   map[string]string{"height": "denied"},
	})
	require.NoError(t, err)
	defer closeFn()

	err = authority.RequestAuthorization(ctx, gateway.Kinds())
	assert.ErrorIs(t, err, gateway.ErrPermissionDenied)

	st, err := authority.AuthorizationStatus(ctx, gateway.Steps)
	require.NoError(t, err)
	assert.Equal(t, gateway.Granted, st)
}

func TestLoadAuthority_Redis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	unsetEnv(t, PERMISSIONS_REDIS_URL)

	ctx := context.Background()
	authority, closeFn, err := LoadAuthority(ctx, PermissionConfig{
		Type:     "redis",
		RedisURL: "redis://" + mr.Addr(),
		RedisKey: "grants",
	})
	require.NoError(t, err)
	defer closeFn()

	require.NoError(t, authority.RequestAuthorization(ctx, []gateway.Kind{gateway.Sleep}))
	assert.Equal(t, "granted", mr.HGet("grants", "sleep"))
}

func TestLoadAuthority_Errors(t *testing.T) {
	unsetEnv(t, PERMISSIONS_DATABASE_URL, PERMISSIONS_REDIS_URL)

	tests := []struct {
		name string
		cfg  PermissionConfig
	}{
		{name: "unknown type", cfg: PermissionConfig{Type: "ldap"}},
		{name: "undecided decision", cfg: PermissionConfig{Decision: "not_determined"}},
		{name: "bad decision", cfg: PermissionConfig{Decision: "sometimes"}},
		{name: "bad grant kind", cfg: PermissionConfig{Grants: map[string]string{"mood": "granted"}}},
		{name: "bad grant status", cfg: PermissionConfig{Grants: map[string]string{"steps": "yes"}}},
		{name: "postgres without url", cfg: PermissionConfig{Type: "postgres"}},
		{name: "redis without url", cfg: PermissionConfig{Type: "redis"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadAuthority(context.Background(), tt.cfg)
			assert.Error(t, err)
		})
	}
}
