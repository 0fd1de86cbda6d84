package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joeecarter/health-gateway/gateway"
)

// maxSnapshotDays bounds a single /v1/snapshots request.
const maxSnapshotDays = 366

// NewRouter serves the query API, the Auto Export upload endpoint and
// /metrics. imports may be nil when no store accepts uploads. Gateway metric
// reads are counted by the gateway's query observer, not here.
func NewRouter(gw *gateway.Gateway, imports *ImportHandler, metrics *Metrics, logger *zap.Logger, limiter *rate.Limiter, tp trace.TracerProvider) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID, traceRequests(tp), accessLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if imports != nil {
		r.Method(http.MethodPost, "/upload", imports)
	}

	api := &queryAPI{gw: gw, logger: logger}
	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimit(limiter))
		r.Get("/available", api.available)
		r.Post("/permissions", api.permissions)
		r.Get("/status", api.status)
		r.Get("/metrics/{metric}", api.metric)
		r.Get("/snapshots", api.snapshots)
	})
	return r
}

type queryAPI struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

type metricResponse struct {
	Metric gateway.Kind `json:"metric"`
	Date   string       `json:"date,omitempty"`
	Value  float64      `json:"value"`
}

type permissionResponse struct {
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type snapshotsResponse struct {
	Days    []gateway.Snapshot `json:"days"`
	Summary gateway.Summary    `json:"summary"`
}

func (a *queryAPI) available(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"available": a.gw.IsHealthDataAvailable()})
}

func (a *queryAPI) permissions(w http.ResponseWriter, r *http.Request) {
	res := <-a.gw.RequestPermissions(r.Context())
	if res.Err != nil {
		status := a.errorStatus(r, res.Err)
		writeJSON(w, status, permissionResponse{Granted: false, Error: res.Err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, permissionResponse{Granted: res.Granted})
}

func (a *queryAPI) status(w http.ResponseWriter, r *http.Request) {
	st, err := a.gw.Status(r.Context())
	if err != nil {
		writeError(w, a.errorStatus(r, err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *queryAPI) metric(w http.ResponseWriter, r *http.Request) {
	kind, err := gateway.ParseKind(chi.URLParam(r, "metric"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var day gateway.Day
	if kind.Dated() {
		day, err = a.dayParam(r, "date")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	res := <-a.read(r.Context(), kind, day)
	if res.Err != nil {
		writeError(w, a.errorStatus(r, res.Err), res.Err.Error())
		return
	}

	resp := metricResponse{Metric: kind, Value: res.Value}
	if kind.Dated() {
		resp.Date = day.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *queryAPI) snapshots(w http.ResponseWriter, r *http.Request) {
	start, err := gateway.ParseDay(r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := a.dayParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, _ := start.Bounds(time.UTC)
	to, _ := end.Bounds(time.UTC)
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "start is after end")
		return
	}
	if to.Sub(from) >= maxSnapshotDays*24*time.Hour {
		writeError(w, http.StatusBadRequest, "range is longer than a year")
		return
	}

	days, err := a.gw.CollectRange(r.Context(), start, end)
	if err != nil {
		writeError(w, a.errorStatus(r, err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshotsResponse{Days: days, Summary: gateway.Summarize(days)})
}

// read dispatches to the gateway accessor for kind.
func (a *queryAPI) read(ctx context.Context, kind gateway.Kind, day gateway.Day) <-chan gateway.Result {
	switch kind {
	case gateway.Steps:
		return a.gw.GetSteps(ctx, day)
	case gateway.HeartRate:
		return a.gw.GetHeartRate(ctx, day)
	case gateway.ActiveEnergy:
		return a.gw.GetActiveEnergy(ctx, day)
	case gateway.Distance:
		return a.gw.GetDistance(ctx, day)
	case gateway.Sleep:
		return a.gw.GetSleepData(ctx, day)
	case gateway.Weight:
		return a.gw.GetWeight(ctx)
	default:
		return a.gw.GetHeight(ctx)
	}
}

// dayParam parses a YYYY-MM-DD query parameter, defaulting to today in the
// gateway's location.
func (a *queryAPI) dayParam(r *http.Request, name string) (gateway.Day, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return gateway.DayOf(time.Now().In(a.gw.Location())), nil
	}
	return gateway.ParseDay(v)
}

// errorStatus maps the gateway's error taxonomy to HTTP and logs failures
// that are not the caller's fault.
func (a *queryAPI) errorStatus(r *http.Request, err error) int {
	var qe *gateway.QueryError
	switch {
	case errors.Is(err, gateway.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, gateway.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &qe):
		a.logger.Error("Health store query failed",
			zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		return http.StatusBadGateway
	default:
		a.logger.Error("Request failed",
			zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
