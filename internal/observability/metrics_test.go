package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(c.Middleware)
	r.Get("/liaisons/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/liaisons/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/liaisons/{id}", "GET", "404")))
}

func TestObserveHelpers(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)

	c.ObserveLocalization(true, "medium", false)
	c.ObserveLocalization(false, "low", true)
	c.ObserveTopologyEdit("insert_point", nil)
	c.ObserveTopologyEdit("insert_point", errors.New("conflict"))
	c.ObserveDelivery("websocket", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Localizations.WithLabelValues("matched", "medium", "persist")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Localizations.WithLabelValues("unmatched", "low", "simulate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FaultsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TopologyEdits.WithLabelValues("insert_point", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NotificationDeliveries.WithLabelValues("websocket", "ok")))
}

func TestNewCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.FaultsCreated.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.FaultsCreated))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	require.NoError(t, err)
	c.FaultsCreated.Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "fibermap_faults_created_total 1"))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveLocalization(true, "high", false)
	c.ObserveDelivery("archive", nil)
	c.ObserveFaultTransition("RESOLVED")
}
