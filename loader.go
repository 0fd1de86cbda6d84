package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/joeecarter/health-gateway/gateway"
	"github.com/joeecarter/health-gateway/internal/logging"
	"github.com/joeecarter/health-gateway/internal/tracing"
	"github.com/joeecarter/health-gateway/permission"
	"github.com/joeecarter/health-gateway/storage/clickhouse"
)

const CLICKHOUSE_DSN = "CLICKHOUSE_DSN"
const CLICKHOUSE_DATABASE = "CLICKHOUSE_DATABASE"
const CLICKHOUSE_METRICS_TABLE = "CLICKHOUSE_METRICS_TABLE"
const CLICKHOUSE_CREATE_TABLES = "CLICKHOUSE_CREATE_TABLES"

const PERMISSIONS_DATABASE_URL = "PERMISSIONS_DATABASE_URL"
const PERMISSIONS_REDIS_URL = "PERMISSIONS_REDIS_URL"

type Config struct {
	HTTP        HTTPConfig       `yaml:"http"`
	Log         logging.Config   `yaml:"log"`
	Tracing     tracing.Config   `yaml:"tracing"`
	Location    string           `yaml:"location"`
	Stores      []yaml.Node      `yaml:"stores"`
	Permissions PermissionConfig `yaml:"permissions"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per second across the query API; 0 disables it.
	RateLimit       float64       `yaml:"rate_limit"`
	Burst           int           `yaml:"burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type PermissionConfig struct {
	// Type is static, postgres or redis.
	Type string `yaml:"type"`
	// Decision answers kinds nobody has decided yet: granted or denied.
	Decision string `yaml:"decision"`
	// Grants seeds the static authority, e.g. {"weight": "denied"}.
	Grants       map[string]string `yaml:"grants"`
	DatabaseURL  string            `yaml:"database_url"`
	Table        string            `yaml:"table"`
	CreateTables bool              `yaml:"create_tables"`
	RedisURL     string            `yaml:"redis_url"`
	RedisKey     string            `yaml:"redis_key"`
}

func DefaultConfig() Config {
	return Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log:         logging.DefaultConfig(),
		Tracing:     tracing.DefaultConfig(),
		Permissions: PermissionConfig{Type: "static", Decision: "granted"},
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// not an error.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return cfg, nil
}

type metricStoreLoader func(*yaml.Node) (MetricStore, error)

var metricStoreLoaders = map[string]metricStoreLoader{
	"clickhouse": loadClickHouseMetricStoreFromConfig,
}

type configType struct {
	Type string `yaml:"type"`
}

func LoadMetricStores(cfg Config, logger *zap.Logger) ([]MetricStore, error) {
	fromConfig, err := LoadMetricStoresFromConfig(cfg.Stores, logger)
	if err != nil {
		return nil, err
	}

	fromEnvironment, err := LoadMetricStoresFromEnvironment()
	if err != nil {
		closeStores(fromConfig)
		return nil, err
	}

	return append(fromConfig, fromEnvironment...), nil
}

func LoadMetricStoresFromConfig(configs []yaml.Node, logger *zap.Logger) ([]MetricStore, error) {
	var metricStores []MetricStore
	for i := range configs {
		config := &configs[i]
		var ct configType
		if err := config.Decode(&ct); err != nil {
			closeStores(metricStores)
			return nil, fmt.Errorf("store %d: %w", i, err)
		}

		loader, ok := metricStoreLoaders[ct.Type]
		if !ok {
			logUnknownLoaderType(logger, ct.Type, config)
			continue
		}

		metricStore, err := loader(config)
		if err != nil {
			closeStores(metricStores)
			return nil, err
		}

		metricStores = append(metricStores, metricStore)
	}

	return metricStores, nil
}

func LoadMetricStoresFromEnvironment() ([]MetricStore, error) {
	clickhouseStore, err := loadClickHouseMetricStoreFromEnvironment()
	if err != nil {
		return nil, err
	}

	var metricStores []MetricStore
	if clickhouseStore != nil {
		metricStores = append(metricStores, clickhouseStore)
	}

	return metricStores, nil
}

func loadClickHouseMetricStoreFromConfig(node *yaml.Node) (MetricStore, error) {
	var config clickhouse.ClickHouseConfig
	if err := node.Decode(&config); err != nil {
		return nil, err
	}
	store, err := clickhouse.NewClickHouseMetricStore(config)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func loadClickHouseMetricStoreFromEnvironment() (MetricStore, error) {
	dsn, dsnSet := os.LookupEnv(CLICKHOUSE_DSN)
	database, databaseSet := os.LookupEnv(CLICKHOUSE_DATABASE)
	metricsTable, metricsTableSet := os.LookupEnv(CLICKHOUSE_METRICS_TABLE)
	createTablesStr, createTablesSet := os.LookupEnv(CLICKHOUSE_CREATE_TABLES)

	if !dsnSet && !databaseSet && !metricsTableSet {
		return nil, nil
	}

	missingVariables := make([]string, 0)
	if !dsnSet {
		missingVariables = append(missingVariables, CLICKHOUSE_DSN)
	}
	if !databaseSet {
		missingVariables = append(missingVariables, CLICKHOUSE_DATABASE)
	}
	if !metricsTableSet {
		missingVariables = append(missingVariables, CLICKHOUSE_METRICS_TABLE)
	}

	if len(missingVariables) > 0 {
		return nil, missingEnvironmentError{missingVariables}
	}

	config := clickhouse.ClickHouseConfig{
		DSN:          dsn,
		Database:     database,
		MetricsTable: metricsTable,
		CreateTables: createTablesSet && isTruthy(createTablesStr),
	}

	store, err := clickhouse.NewClickHouseMetricStore(config)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// LoadAuthority builds the permission authority. The returned func releases
// any connection it opened.
func LoadAuthority(ctx context.Context, cfg PermissionConfig) (gateway.Authority, func(), error) {
	decision, err := parseDecision(cfg.Decision)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(cfg.Type) {
	case "", "static":
		preset := make(map[gateway.Kind]gateway.AuthorizationStatus, len(cfg.Grants))
		for name, s := range cfg.Grants {
			kind, err := gateway.ParseKind(name)
			if err != nil {
				return nil, nil, err
			}
			status, err := gateway.ParseAuthorizationStatus(s)
			if err != nil {
				return nil, nil, err
			}
			preset[kind] = status
		}
		return permission.NewStatic(decision, preset), func() {}, nil

	case "postgres":
		url := envOr(PERMISSIONS_DATABASE_URL, cfg.DatabaseURL)
		if url == "" {
			return nil, nil, missingEnvironmentError{[]string{PERMISSIONS_DATABASE_URL}}
		}
		pool, err := permission.NewPool(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		authority := permission.NewPostgres(pool, cfg.Table, decision)
		if cfg.CreateTables {
			if err := authority.CreateTable(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return authority, pool.Close, nil

	case "redis":
		url := envOr(PERMISSIONS_REDIS_URL, cfg.RedisURL)
		if url == "" {
			return nil, nil, missingEnvironmentError{[]string{PERMISSIONS_REDIS_URL}}
		}
		client, err := permission.NewRedisClient(ctx, url)
		if err != nil {
			return nil, nil, err
		}
		return permission.NewRedis(client, cfg.RedisKey, decision), func() { _ = client.Close() }, nil
	}

	return nil, nil, fmt.Errorf("unknown permission authority type %q", cfg.Type)
}

func parseDecision(s string) (gateway.AuthorizationStatus, error) {
	if strings.TrimSpace(s) == "" {
		return gateway.Granted, nil
	}
	decision, err := gateway.ParseAuthorizationStatus(s)
	if err != nil {
		return gateway.NotDetermined, err
	}
	if decision == gateway.NotDetermined {
		return gateway.NotDetermined, errors.New("permission decision must be granted or denied")
	}
	return decision, nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func isTruthy(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}

func closeStores(stores []MetricStore) {
	for _, s := range stores {
		_ = s.Close()
	}
}

func logUnknownLoaderType(logger *zap.Logger, loaderType string, config *yaml.Node) {
	if strings.TrimSpace(loaderType) == "" {
		logger.Warn("Encountered an empty loader type. This config will be skipped.", zap.Int("line", config.Line))
	} else {
		logger.Warn("Encountered an unknown loader type. This config will be skipped.",
			zap.String("type", loaderType), zap.Int("line", config.Line))
	}
}

type missingEnvironmentError struct {
	missingVariables []string
}

func (err missingEnvironmentError) Error() string {
	return fmt.Sprintf("Missing the following environment variables: [ %s ]", strings.Join(err.missingVariables, ", "))
}
