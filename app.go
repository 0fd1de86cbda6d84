package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joeecarter/health-gateway/gateway"
)

// App is the wired process: metric stores, the permission authority and the
// one Gateway every consumer shares.
type App struct {
	logger         *zap.Logger
	stores         []MetricStore
	gateway        *gateway.Gateway
	imports        *ImportHandler
	metrics        *Metrics
	handler        http.Handler
	closeAuthority func()
}

// NewApp loads stores and the authority from cfg and builds the gateway over
// the first store that supports reads. Gateway and HTTP spans go to tp, or to
// the global provider when tp is nil.
func NewApp(ctx context.Context, cfg Config, logger *zap.Logger, tp trace.TracerProvider) (*App, error) {
	stores, err := LoadMetricStores(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric stores: %w", err)
	}

	authority, closeAuthority, err := LoadAuthority(ctx, cfg.Permissions)
	if err != nil {
		closeStores(stores)
		return nil, fmt.Errorf("failed to load permission authority: %w", err)
	}

	app, err := newApp(cfg, logger, stores, authority, tp)
	if err != nil {
		closeAuthority()
		closeStores(stores)
		return nil, err
	}
	app.closeAuthority = closeAuthority
	return app, nil
}

func newApp(cfg Config, logger *zap.Logger, stores []MetricStore, authority gateway.Authority, tp trace.TracerProvider) (*App, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	loc := time.Local
	if cfg.Location != "" {
		var err error
		loc, err = time.LoadLocation(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("invalid location: %w", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.HTTP.RateLimit > 0 {
		burst := cfg.HTTP.Burst
		if burst <= 0 {
			burst = int(cfg.HTTP.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RateLimit), burst)
	}

	metrics := NewMetrics()
	gw := gateway.New(readableStore(stores), authority,
		gateway.WithLocation(loc),
		gateway.WithTracerProvider(tp),
		gateway.WithQueryObserver(metrics.ObserveQuery),
	)
	app := &App{
		logger:         logger,
		stores:         stores,
		gateway:        gw,
		metrics:        metrics,
		closeAuthority: func() {},
	}
	if len(stores) > 0 {
		app.imports = NewImportHandler(stores, logger, app.metrics)
	}
	app.handler = NewRouter(app.gateway, app.imports, app.metrics, logger, limiter, tp)
	return app, nil
}

// Gateway returns the process's gateway. Every call returns the same instance.
func (app *App) Gateway() *gateway.Gateway { return app.gateway }

func (app *App) Handler() http.Handler { return app.handler }

func (app *App) Stores() []MetricStore { return app.stores }

// Close waits for pending uploads, then releases stores and the authority.
func (app *App) Close() error {
	if app.imports != nil {
		app.imports.Wait()
	}
	app.closeAuthority()
	var firstErr error
	for _, s := range app.stores {
		if err := s.Close(); err != nil {
			app.logger.Error("Failed to close metric store", zap.String("store", s.Name()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
