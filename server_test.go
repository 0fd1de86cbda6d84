package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joeecarter/health-gateway/gateway"
	"github.com/joeecarter/health-gateway/permission"
	"github.com/joeecarter/health-gateway/request"
)

// memStore is an in-memory ReadableMetricStore for unit tests.
type memStore struct {
	mu        sync.Mutex
	name      string
	stored    []request.Metric
	optimized int
	closed    bool
	storeErr  error
	readErr   error
	values    map[gateway.Kind]float64
}

func newMemStore() *memStore {
	return &memStore{name: "memory", values: make(map[gateway.Kind]float64)}
}

func (s *memStore) Name() string    { return s.name }
func (s *memStore) Available() bool { return true }

func (s *memStore) Store(_ context.Context, metrics []request.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, metrics...)
	return nil
}

func (s *memStore) OptimizeTables(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.optimized++
	return nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) Aggregate(_ context.Context, kind gateway.Kind, _, _ time.Time) (float64, error) {
	return s.read(kind)
}

func (s *memStore) Latest(_ context.Context, kind gateway.Kind) (float64, error) {
	return s.read(kind)
}

func (s *memStore) read(kind gateway.Kind) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	v, ok := s.values[kind]
	if !ok {
		return 0, gateway.ErrNoData
	}
	return v, nil
}

func (s *memStore) storedMetrics() []request.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]request.Metric(nil), s.stored...)
}

// writeOnlyStore accepts uploads but cannot serve reads.
type writeOnlyStore struct{}

func (writeOnlyStore) Name() string                                  { return "write-only" }
func (writeOnlyStore) Store(context.Context, []request.Metric) error { return nil }
func (writeOnlyStore) OptimizeTables(context.Context) error          { return nil }
func (writeOnlyStore) Close() error                                  { return nil }

var errBoom = errors.New("boom")

func newTestApp(cfg Config, stores []MetricStore, decision gateway.AuthorizationStatus) *App {
	app, err := newApp(cfg, zap.NewNop(), stores, permission.NewStatic(decision, nil), nil)
	if err != nil {
		panic(err)
	}
	return app
}
