// Package gateway is the single access point to an external health store.
//
// A Gateway checks availability and the authority's permission for a metric
// kind, then issues one read-only query. It holds no state of its own: values
// and permission decisions are never cached, so repeated calls always reach the
// store and the authority.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/joeecarter/health-gateway/gateway"

// Result is the single (value, error) pair delivered by an asynchronous read.
// Value is zero whenever Err is set.
type Result struct {
	Value float64
	Err   error
}

// PermissionResult is delivered by RequestPermissions.
type PermissionResult struct {
	Granted bool
	Err     error
}

type Gateway struct {
	store     Store
	authority Authority
	loc       *time.Location
	tracer    trace.Tracer
	observe   QueryObserver
}

// QueryObserver is told the outcome of every Query, including the reads made
// by CollectDay and CollectRange.
type QueryObserver func(kind Kind, err error, elapsed time.Duration)

type Option func(*Gateway)

// WithLocation sets the time zone calendar days are resolved in. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(g *Gateway) {
		if loc != nil {
			g.loc = loc
		}
	}
}

func WithQueryObserver(fn QueryObserver) Option {
	return func(g *Gateway) {
		g.observe = fn
	}
}

// WithTracerProvider replaces the global provider used for gateway spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Gateway) {
		if tp != nil {
			g.tracer = tp.Tracer(tracerName)
		}
	}
}

// New builds a gateway over store and authority. A nil store makes the
// gateway report health data as unavailable; a nil authority denies every
// kind.
func New(store Store, authority Authority, opts ...Option) *Gateway {
	if authority == nil {
		authority = denyAll{}
	}
	g := &Gateway{
		store:     store,
		authority: authority,
		loc:       time.Local,
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// IsHealthDataAvailable reports whether a store is configured and able to
// serve reads. It never consults permissions.
func (g *Gateway) IsHealthDataAvailable() bool {
	return g.store != nil && g.store.Available()
}

// Location returns the time zone calendar days are resolved in.
func (g *Gateway) Location() *time.Location { return g.loc }

// Initialize asks the authority for read access to every metric kind and
// reports whether all of them were granted.
func (g *Gateway) Initialize(ctx context.Context) (bool, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.RequestPermissions")
	defer span.End()

	if !g.IsHealthDataAvailable() {
		return false, endSpan(span, ErrUnavailable)
	}
	if err := g.authority.RequestAuthorization(ctx, Kinds()); err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return false, endSpan(span, err)
		}
		return false, endSpan(span, fmt.Errorf("request authorization: %w", err))
	}
	return true, nil
}

// RequestPermissions is the asynchronous form of Initialize. The returned
// channel receives exactly one result and is then closed.
func (g *Gateway) RequestPermissions(ctx context.Context) <-chan PermissionResult {
	ch := make(chan PermissionResult, 1)
	go func() {
		defer close(ch)
		granted, err := g.Initialize(ctx)
		ch <- PermissionResult{Granted: granted, Err: err}
	}()
	return ch
}

// Query reads kind for day. The day is ignored for kinds that are not Dated.
func (g *Gateway) Query(ctx context.Context, kind Kind, day Day) (value float64, err error) {
	if g.observe != nil {
		start := time.Now()
		defer func() { g.observe(kind, err, time.Since(start)) }()
	}

	ctx, span := g.tracer.Start(ctx, "gateway.Query", trace.WithAttributes(
		attribute.String("health.kind", string(kind)),
	))
	defer span.End()

	if !kind.Valid() {
		return 0, endSpan(span, fmt.Errorf("unknown metric kind %q", kind))
	}
	if kind.Dated() && !day.Valid() {
		return 0, endSpan(span, fmt.Errorf("invalid day %s for %s", day, kind))
	}
	if !g.IsHealthDataAvailable() {
		return 0, endSpan(span, ErrUnavailable)
	}

	status, err := g.authority.AuthorizationStatus(ctx, kind)
	if err != nil {
		return 0, endSpan(span, &QueryError{Kind: kind, Err: fmt.Errorf("authorization status: %w", err)})
	}
	if status != Granted {
		return 0, endSpan(span, fmt.Errorf("%w: %s is %s", ErrPermissionDenied, kind, status))
	}

	if kind.Dated() {
		span.SetAttributes(attribute.String("health.day", day.String()))
		from, to := day.Bounds(g.loc)
		value, err = g.store.Aggregate(ctx, kind, from, to)
	} else {
		value, err = g.store.Latest(ctx, kind)
	}
	if err != nil {
		if errors.Is(err, ErrNoData) {
			if kind.Dated() {
				return 0, endSpan(span, fmt.Errorf("%s on %s: %w", kind, day, ErrNoData))
			}
			return 0, endSpan(span, fmt.Errorf("%s: %w", kind, ErrNoData))
		}
		return 0, endSpan(span, &QueryError{Kind: kind, Err: err})
	}
	return value, nil
}

func (g *Gateway) GetSteps(ctx context.Context, day Day) <-chan Result {
	return g.async(ctx, Steps, day)
}

func (g *Gateway) GetHeartRate(ctx context.Context, day Day) <-chan Result {
	return g.async(ctx, HeartRate, day)
}

func (g *Gateway) GetActiveEnergy(ctx context.Context, day Day) <-chan Result {
	return g.async(ctx, ActiveEnergy, day)
}

func (g *Gateway) GetDistance(ctx context.Context, day Day) <-chan Result {
	return g.async(ctx, Distance, day)
}

func (g *Gateway) GetSleepData(ctx context.Context, day Day) <-chan Result {
	return g.async(ctx, Sleep, day)
}

func (g *Gateway) GetWeight(ctx context.Context) <-chan Result {
	return g.async(ctx, Weight, Day{})
}

func (g *Gateway) GetHeight(ctx context.Context) <-chan Result {
	return g.async(ctx, Height, Day{})
}

// async runs Query on its own goroutine. The channel is buffered so the
// result is never lost when the caller stops listening.
func (g *Gateway) async(ctx context.Context, kind Kind, day Day) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		value, err := g.Query(ctx, kind, day)
		ch <- Result{Value: value, Err: err}
	}()
	return ch
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

type denyAll struct{}

func (denyAll) RequestAuthorization(_ context.Context, kinds []Kind) error {
	return fmt.Errorf("%w: no permission authority configured", ErrPermissionDenied)
}

func (denyAll) AuthorizationStatus(context.Context, Kind) (AuthorizationStatus, error) {
	return Denied, nil
}
