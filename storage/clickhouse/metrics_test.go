package clickhouse

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeecarter/health-gateway/gateway"
	"github.com/joeecarter/health-gateway/request"
)

func TestBuildQueries(t *testing.T) {
	queries := buildQueries(map[string]string{"distance": "distance_cycling", "weight": ""})

	assert.Equal(t, "distance_cycling", queries["distance"].metric)
	assert.Equal(t, request.BodyMass, queries["weight"].metric)
	assert.Equal(t, "avg(avg)", queries["heart_rate"].expr)
	for _, k := range gateway.Kinds() {
		assert.Contains(t, queries, string(k))
	}
}

func TestQuerySQL(t *testing.T) {
	store := &ClickHouseMetricStore{database: "health", metricsTable: "metrics", queries: buildQueries(nil)}

	q, err := store.query(gateway.Sleep)
	require.NoError(t, err)
	assert.Contains(t, store.aggregateSQL(q), "SELECT count(), sum(asleep)")
	assert.Contains(t, store.aggregateSQL(q), "FROM health.metrics FINAL")

	q, err = store.query(gateway.Height)
	require.NoError(t, err)
	assert.Contains(t, store.latestSQL(q), "ORDER BY timestamp DESC")

	_, err = store.query(gateway.Kind("mood"))
	assert.Error(t, err)
}

func TestSampleRow(t *testing.T) {
	at := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	r := sampleRow(&request.MinMaxAvgSample{Date: request.NewTimestamp(at), Min: 50, Avg: 60, Max: 70, Source: "Watch"})
	assert.Equal(t, at, r.timestamp)
	assert.Equal(t, 60.0, r.avg)
	assert.Equal(t, "Watch", r.source)

	r = sampleRow(&request.SleepSample{Asleep: 7, InBed: 8, SleepSource: "Watch"})
	assert.False(t, r.timestamp.IsZero(), "missing timestamps fall back to now")
	assert.Equal(t, 7.0, r.asleep)
	assert.Equal(t, "Watch", r.source)
}

// TestClickHouseRoundTrip needs a disposable server; set CLICKHOUSE_TEST_DSN
// to run it.
func TestClickHouseRoundTrip(t *testing.T) {
	dsn := os.Getenv("CLICKHOUSE_TEST_DSN")
	if dsn == "" {
		t.Skip("CLICKHOUSE_TEST_DSN not set")
	}
	ctx := context.Background()
	store, err := NewClickHouseMetricStore(ClickHouseConfig{
		DSN:          dsn,
		Database:     "health_gateway_test",
		MetricsTable: fmt.Sprintf("metrics_%d", time.Now().UnixNano()),
		CreateTables: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = store.db.Exec("DROP TABLE IF EXISTS " + store.table())
		_ = store.Close()
	})

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	steps := request.Metric{Name: request.StepCount, Unit: "count", Samples: []request.Sample{
		&request.QtySample{Date: request.NewTimestamp(day.Add(9 * time.Hour)), Qty: 3000, Source: "iPhone"},
		&request.QtySample{Date: request.NewTimestamp(day.Add(18 * time.Hour)), Qty: 2000, Source: "iPhone"},
	}}
	weight := request.Metric{Name: request.BodyMass, Unit: "kg", Samples: []request.Sample{
		&request.QtySample{Date: request.NewTimestamp(day.Add(-48 * time.Hour)), Qty: 81},
		&request.QtySample{Date: request.NewTimestamp(day), Qty: 80.5},
	}}
	require.NoError(t, store.Store(ctx, []request.Metric{steps, weight}))
	require.NoError(t, store.Store(ctx, []request.Metric{steps}))
	require.NoError(t, store.OptimizeTables(ctx))

	v, err := store.Aggregate(ctx, gateway.Steps, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 5000.0, v, "re-sent samples are not counted twice")

	_, err = store.Aggregate(ctx, gateway.Steps, day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	assert.ErrorIs(t, err, gateway.ErrNoData)

	v, err = store.Latest(ctx, gateway.Weight)
	require.NoError(t, err)
	assert.Equal(t, 80.5, v)

	_, err = store.Latest(ctx, gateway.Height)
	assert.ErrorIs(t, err, gateway.ErrNoData)
}
