package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joeecarter/health-gateway/gateway"
	"github.com/joeecarter/health-gateway/request"
)

// kindQuery says which Auto Export metric backs a gateway kind and how a
// day of its samples is reduced to one value.
type kindQuery struct {
	metric string
	expr   string
}

var defaultQueries = map[string]kindQuery{
	string(gateway.Steps):        {metric: request.StepCount, expr: "sum(qty)"},
	string(gateway.HeartRate):    {metric: request.HeartRate, expr: "avg(avg)"},
	string(gateway.ActiveEnergy): {metric: request.ActiveEnergy, expr: "sum(qty)"},
	string(gateway.Distance):     {metric: request.WalkingRunningDistance, expr: "sum(qty)"},
	string(gateway.Sleep):        {metric: request.SleepAnalysis, expr: "sum(asleep)"},
	string(gateway.Weight):       {metric: request.BodyMass, expr: "qty"},
	string(gateway.Height):       {metric: request.Height, expr: "qty"},
}

func buildQueries(overrides map[string]string) map[string]kindQuery {
	queries := make(map[string]kindQuery, len(defaultQueries))
	for kind, q := range defaultQueries {
		if name, ok := overrides[kind]; ok && name != "" {
			q.metric = name
		}
		queries[kind] = q
	}
	return queries
}

func (store *ClickHouseMetricStore) query(kind gateway.Kind) (kindQuery, error) {
	q, ok := store.queries[string(kind)]
	if !ok {
		return kindQuery{}, fmt.Errorf("no metric mapped for %s", kind)
	}
	return q, nil
}

// Available is true for any constructed store; construction already pinged
// the server.
func (store *ClickHouseMetricStore) Available() bool {
	return store.db != nil
}

func (store *ClickHouseMetricStore) aggregateSQL(q kindQuery) string {
	return fmt.Sprintf(`
		SELECT count(), %s
		FROM %s FINAL
		WHERE metric_name = ? AND timestamp >= ? AND timestamp < ?
	`, q.expr, store.table())
}

func (store *ClickHouseMetricStore) latestSQL(q kindQuery) string {
	return fmt.Sprintf(`
		SELECT %s
		FROM %s FINAL
		WHERE metric_name = ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, q.expr, store.table())
}

// Aggregate reduces the samples of kind in [from, to).
func (store *ClickHouseMetricStore) Aggregate(ctx context.Context, kind gateway.Kind, from, to time.Time) (float64, error) {
	q, err := store.query(kind)
	if err != nil {
		return 0, err
	}

	var (
		count uint64
		value float64
	)
	err = store.db.QueryRowContext(ctx, store.aggregateSQL(q), q.metric, from, to).Scan(&count, &value)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate %s: %w", q.metric, err)
	}
	if count == 0 {
		return 0, gateway.ErrNoData
	}
	return value, nil
}

// Latest returns the most recent sample of kind.
func (store *ClickHouseMetricStore) Latest(ctx context.Context, kind gateway.Kind) (float64, error) {
	q, err := store.query(kind)
	if err != nil {
		return 0, err
	}

	var value float64
	err = store.db.QueryRowContext(ctx, store.latestSQL(q), q.metric).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, gateway.ErrNoData
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read latest %s: %w", q.metric, err)
	}
	return value, nil
}
