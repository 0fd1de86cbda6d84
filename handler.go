package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/joeecarter/health-gateway/request"
)

// ImportHandler accepts Auto Export uploads and writes them to every metric
// store in the background.
type ImportHandler struct {
	MetricStores []MetricStore
	logger       *zap.Logger
	metrics      *Metrics
	pending      sync.WaitGroup
}

func NewImportHandler(metricStores []MetricStore, logger *zap.Logger, metrics *Metrics) *ImportHandler {
	return &ImportHandler{MetricStores: metricStores, logger: logger, metrics: metrics}
}

func (handler *ImportHandler) ServeHTTP(wr http.ResponseWriter, req *http.Request) {
	msg, err := handler.handle(req)
	if err == nil {
		wr.WriteHeader(http.StatusOK)
		wr.Write([]byte(msg + "\n"))
	} else {
		wr.WriteHeader(http.StatusBadRequest)
		wr.Write([]byte("ERROR: " + err.Error() + "\n"))
	}
}

// Wait blocks until every background upload has finished.
func (handler *ImportHandler) Wait() {
	handler.pending.Wait()
}

func (handler *ImportHandler) handle(req *http.Request) (string, error) {
	logger := handler.logger.With(zap.String("request_id", RequestID(req.Context())))
	logger.Info("Received upload", zap.String("user_agent", req.Header.Get("User-Agent")))

	b, err := io.ReadAll(req.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	export, err := request.Parse(b)
	if err != nil {
		return "", err
	}

	populatedMetrics := export.PopulatedMetrics()
	totalMetrics := len(export.Metrics)
	populatedMetricsCount := len(populatedMetrics)
	totalSamples := export.TotalSamples()

	logger.Info("Parsed upload",
		zap.Int("metrics", totalMetrics),
		zap.Int("populated", populatedMetricsCount),
		zap.Int("samples", totalSamples))
	handler.metrics.AddSamples(totalSamples)

	responseMsg := fmt.Sprintf("Processing request. Received %d metrics (%d populated) and %d samples.",
		totalMetrics, populatedMetricsCount, totalSamples)

	if populatedMetricsCount == 0 {
		return responseMsg, nil
	}

	handler.pending.Add(1)
	go func() {
		defer handler.pending.Done()
		handler.upload(context.WithoutCancel(req.Context()), logger, populatedMetrics)
	}()

	return responseMsg, nil
}

func (handler *ImportHandler) upload(ctx context.Context, logger *zap.Logger, metrics []request.Metric) {
	for _, metricStore := range handler.MetricStores {
		storeLogger := logger.With(zap.String("store", metricStore.Name()))
		storeLogger.Info("Starting upload to metric store")

		err := metricStore.Store(ctx, metrics)
		handler.metrics.ObserveUpload(metricStore.Name(), err)
		if err != nil {
			storeLogger.Error("Failed upload metrics to metric store", zap.Error(err))
			continue
		}

		if err := metricStore.OptimizeTables(ctx); err != nil {
			storeLogger.Error("Failed to optimize tables in metric store", zap.Error(err))
			continue
		}

		storeLogger.Info("Finished upload to metric store and optimized tables")
	}
}
