package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeecarter/health-gateway/gateway"
)

const upload = `{
  "data": {
    "metrics": [
      {"name": "step_count", "units": "count", "data": [
        {"qty": 4000, "date": "2024-01-01 09:00:00 +0000", "source": "iPhone"},
        {"qty": 1000, "date": "2024-01-01 19:00:00 +0000", "source": "iPhone"}
      ]},
      {"name": "heart_rate", "units": "count/min", "data": [
        {"Min": 52, "Avg": 64, "Max": 130, "date": "2024-01-01 09:00:00 +0000"}
      ]},
      {"name": "height", "units": "cm", "data": []}
    ]
  }
}`

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	req.Header.Set("User-Agent", "Auto Export/7.0")
	h.ServeHTTP(rec, req)
	return rec
}

func TestImportHandler_StoresPopulatedMetrics(t *testing.T) {
	first, second := newMemStore(), newMemStore()
	second.name = "second"
	app := newTestApp(DefaultConfig(), []MetricStore{first, second}, gateway.Granted)

	rec := post(t, app.Handler(), upload)
	app.imports.Wait()

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Received 3 metrics (2 populated) and 3 samples.")

	for _, s := range []*memStore{first, second} {
		stored := s.storedMetrics()
		require.Len(t, stored, 2, s.name)
		assert.Equal(t, "step_count", stored[0].Name)
		assert.Equal(t, 1, s.optimized)
	}
}

func TestImportHandler_FailingStoreDoesNotBlockOthers(t *testing.T) {
	failing, healthy := newMemStore(), newMemStore()
	failing.storeErr = errBoom
	app := newTestApp(DefaultConfig(), []MetricStore{failing, healthy}, gateway.Granted)

	rec := post(t, app.Handler(), upload)
	app.imports.Wait()

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, failing.optimized)
	assert.Len(t, healthy.storedMetrics(), 2)

	metrics := do(t, app.Handler(), http.MethodGet, "/metrics").Body.String()
	assert.Contains(t, metrics, `health_gateway_uploads_total{outcome="error",store="memory"} 1`)
	assert.Contains(t, metrics, `health_gateway_samples_ingested_total 3`)
}

func TestImportHandler_BadPayload(t *testing.T) {
	store := newMemStore()
	app := newTestApp(DefaultConfig(), []MetricStore{store}, gateway.Granted)

	rec := post(t, app.Handler(), `{"data": {"metrics": "nope"}}`)
	app.imports.Wait()

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ERROR: "))
	assert.Empty(t, store.storedMetrics())
}

func TestImportHandler_NothingPopulated(t *testing.T) {
	store := newMemStore()
	app := newTestApp(DefaultConfig(), []MetricStore{store}, gateway.Granted)

	rec := post(t, app.Handler(), `{"data": {"metrics": [{"name": "height", "units": "cm", "data": []}]}}`)
	app.imports.Wait()

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, store.optimized)
}

func TestApp_CloseWaitsAndClosesStores(t *testing.T) {
	store := newMemStore()
	app := newTestApp(DefaultConfig(), []MetricStore{store}, gateway.Granted)

	post(t, app.Handler(), upload)
	require.NoError(t, app.Close())

	assert.Len(t, store.storedMetrics(), 2)
	assert.True(t, store.closed)
}
