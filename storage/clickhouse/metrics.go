package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/joeecarter/health-gateway/request"
)

type ClickHouseConfig struct {
	DSN          string `json:"dsn" yaml:"dsn"`
	Database     string `json:"database" yaml:"database"`
	MetricsTable string `json:"metrics_table" yaml:"metrics_table"`
	CreateTables bool   `json:"create_tables" yaml:"create_tables"`
	// MetricNames overrides the Auto Export metric name read for a gateway
	// kind, e.g. {"distance": "walking_running_distance"}.
	MetricNames map[string]string `json:"metric_names" yaml:"metric_names"`
}

// ClickHouseMetricStore stores Auto Export samples and serves the gateway's
// reads from the same table.
type ClickHouseMetricStore struct {
	db           *sql.DB
	database     string
	metricsTable string
	queries      map[string]kindQuery
}

func NewClickHouseMetricStore(config ClickHouseConfig) (*ClickHouseMetricStore, error) {
	db, err := sql.Open("clickhouse", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	store := &ClickHouseMetricStore{
		db:           db,
		database:     config.Database,
		metricsTable: config.MetricsTable,
		queries:      buildQueries(config.MetricNames),
	}

	if config.CreateTables {
		if err := store.createTablesIfNotExist(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return store, nil
}

func (store *ClickHouseMetricStore) Name() string {
	return "clickhouse"
}

func (store *ClickHouseMetricStore) table() string {
	return fmt.Sprintf("%s.%s", store.database, store.metricsTable)
}

// Store inserts every sample of metrics in one transaction tagged with a fresh
// batch id. Re-sent samples collapse on merge, see OptimizeTables.
func (store *ClickHouseMetricStore) Store(ctx context.Context, metrics []request.Metric) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
		(timestamp, metric_name, metric_unit, metric_type, qty, max, min, avg, asleep, in_bed, sleep_source, in_bed_source, source, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, store.table()))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	batchID := uuid.New()
	for _, metric := range metrics {
		metricType := request.LookupMetricType(metric.Name)
		for _, sample := range metric.Samples {
			row := sampleRow(sample)
			_, err = stmt.ExecContext(ctx,
				row.timestamp,
				metric.Name,
				metric.Unit,
				string(metricType),
				row.qty,
				row.max,
				row.min,
				row.avg,
				row.asleep,
				row.inBed,
				row.sleepSource,
				row.inBedSource,
				row.source,
				batchID,
			)
			if err != nil {
				return fmt.Errorf("failed to insert metric %q: %w", metric.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type row struct {
	timestamp                time.Time
	qty, max, min, avg       float64
	asleep, inBed            float64
	sleepSource, inBedSource string
	source                   string
}

func sampleRow(sample request.Sample) row {
	var r row
	if ts := sample.GetTimestamp(); ts != nil {
		r.timestamp = ts.ToTime()
	} else {
		r.timestamp = time.Now()
	}

	switch s := sample.(type) {
	case *request.QtySample:
		r.qty = s.Qty
		r.source = s.Source
	case *request.MinMaxAvgSample:
		r.max = s.Max
		r.min = s.Min
		r.avg = s.Avg
		r.source = s.Source
	case *request.SleepSample:
		r.asleep = s.Asleep
		r.inBed = s.InBed
		r.sleepSource = s.SleepSource
		r.inBedSource = s.InBedSource
		r.source = s.SleepSource
	}
	return r
}

// OptimizeTables forces the merge that drops duplicate samples.
func (store *ClickHouseMetricStore) OptimizeTables(ctx context.Context) error {
	if _, err := store.db.ExecContext(ctx, fmt.Sprintf(`OPTIMIZE TABLE %s FINAL`, store.table())); err != nil {
		return fmt.Errorf("failed to optimize metrics table: %w", err)
	}
	return nil
}

func (store *ClickHouseMetricStore) createTablesIfNotExist(ctx context.Context) error {
	_, err := store.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE DATABASE IF NOT EXISTS %s
	`, store.database))
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	_, err = store.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			timestamp DateTime,
			metric_name LowCardinality(String),
			metric_unit String,
			metric_type LowCardinality(String),
			qty Float64 DEFAULT 0,
			max Float64 DEFAULT 0,
			min Float64 DEFAULT 0,
			avg Float64 DEFAULT 0,
			asleep Float64 DEFAULT 0,
			in_bed Float64 DEFAULT 0,
			sleep_source String DEFAULT '',
			in_bed_source String DEFAULT '',
			source String DEFAULT '',
			batch_id UUID,
			inserted_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(inserted_at)
		ORDER BY (metric_name, timestamp, source)
	`, store.table()))
	if err != nil {
		return fmt.Errorf("failed to create metrics table: %w", err)
	}

	return nil
}

func (store *ClickHouseMetricStore) Close() error {
	return store.db.Close()
}
