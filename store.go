package server

import (
	"context"

	"github.com/joeecarter/health-gateway/gateway"
	"github.com/joeecarter/health-gateway/request"
)

// MetricStore encapsulates a storage backend for the metrics provided by the Auto Export app.
// There is a possibility of the same metrics arriving twice so all MetricStores must not store
// duplicate metrics.
type MetricStore interface {
	Name() string
	Store(ctx context.Context, metrics []request.Metric) error
	OptimizeTables(ctx context.Context) error
	Close() error
}

// ReadableMetricStore is a MetricStore the gateway can also read from.
type ReadableMetricStore interface {
	MetricStore
	gateway.Store
}

// readableStore returns the first store that can serve gateway reads.
func readableStore(stores []MetricStore) gateway.Store {
	for _, s := range stores {
		if r, ok := s.(ReadableMetricStore); ok {
			return r
		}
	}
	return nil
}
