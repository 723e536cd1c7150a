package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/altafino/attachment-fetcher/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Report(t *testing.T) {
	m := New()

	m.Report(models.Event{Status: models.StatusPending})
	m.Report(models.Event{Status: models.StatusInProgress, Attempt: 1})
	m.Report(models.Event{Status: models.StatusInProgress, Attempt: 1, Err: errors.New("throttled")})
	m.Report(models.Event{Status: models.StatusDone, Attempt: 2, Bytes: 100})
	m.Report(models.Event{Status: models.StatusInProgress, Attempt: 1})
	m.Report(models.Event{Status: models.StatusFailed, Attempt: 1})
	m.Report(models.Event{Status: models.StatusFailed, Attempt: 0})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobs.WithLabelValues("done")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobs.WithLabelValues("failed")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestMetrics_ObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun("p1", &models.Summary{Duration: time.Second, Skipped: 3}, nil)
	m.ObserveRun("p1", &models.Summary{Canceled: true}, nil)
	m.ObserveRun("p1", nil, errors.New("auth"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("p1", RunSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("p1", RunCanceled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("p1", RunError)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.skipped.WithLabelValues("p1")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.runSeconds))
}

func TestServer_Handler(t *testing.T) {
	m := New()
	m.Report(models.Event{Status: models.StatusDone, Bytes: 5})

	srv := httptest.NewServer(newMux(m, "/custom"))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/custom")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "fetcher_downloaded_bytes_total 5")

	res, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}
