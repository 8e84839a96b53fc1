package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector збирає метрики Prometheus для HTTP-шару, локалізації обривів
// і редагування топології.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	Localizations          *prometheus.CounterVec
	FaultsCreated          prometheus.Counter
	FaultTransitions       *prometheus.CounterVec
	TopologyEdits          *prometheus.CounterVec
	NotificationDeliveries *prometheus.CounterVec
}

// NewCollector реєструє метрики в reg, для nil - у глобальному реєстрі.
// Повторна реєстрація повертає вже наявні колектори.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibermap_http_requests_total",
		Help: "Handled HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"}), "fibermap_http_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fibermap_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route", "method"}), "fibermap_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	localizations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibermap_localizations_total",
		Help: "OTDR localizations by outcome (matched, unmatched), precision and mode (persist, simulate).",
	}, []string{"outcome", "precision", "mode"}), "fibermap_localizations_total")
	if err != nil {
		return nil, err
	}

	faults, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fibermap_faults_created_total",
		Help: "Faults materialized from OTDR readings.",
	}), "fibermap_faults_created_total")
	if err != nil {
		return nil, err
	}

	transitions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibermap_fault_transitions_total",
		Help: "Fault status changes by target status.",
	}, []string{"status"}), "fibermap_fault_transitions_total")
	if err != nil {
		return nil, err
	}

	edits, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibermap_topology_edits_total",
		Help: "Topology maintenance operations by operation and result.",
	}, []string{"operation", "result"}), "fibermap_topology_edits_total")
	if err != nil {
		return nil, err
	}

	deliveries, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fibermap_notification_deliveries_total",
		Help: "Fault notifications delivered per sink and result.",
	}, []string{"sink", "result"}), "fibermap_notification_deliveries_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:               gatherer,
		HTTPRequests:           requests,
		HTTPDurations:          durations,
		Localizations:          localizations,
		FaultsCreated:          faults,
		FaultTransitions:       transitions,
		TopologyEdits:          edits,
		NotificationDeliveries: deliveries,
	}, nil
}

// Middleware рахує запити та їхню тривалість за шаблоном маршруту chi
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if c == nil {
			return
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveLocalization рахує один запуск локалізації
func (c *Collector) ObserveLocalization(matched bool, precision string, simulate bool) {
	if c == nil {
		return
	}
	outcome, mode := "unmatched", "persist"
	if matched {
		outcome = "matched"
	}
	if simulate {
		mode = "simulate"
	}
	c.Localizations.WithLabelValues(outcome, precision, mode).Inc()
	if !simulate {
		c.FaultsCreated.Inc()
	}
}

// ObserveFaultTransition рахує зміну статусу обриву
func (c *Collector) ObserveFaultTransition(status string) {
	if c == nil {
		return
	}
	c.FaultTransitions.WithLabelValues(status).Inc()
}

// ObserveTopologyEdit рахує одну операцію обслуговування топології
func (c *Collector) ObserveTopologyEdit(operation string, err error) {
	if c == nil {
		return
	}
	c.TopologyEdits.WithLabelValues(operation, result(err)).Inc()
}

// ObserveDelivery рахує одну доставку події
func (c *Collector) ObserveDelivery(sink string, err error) {
	if c == nil {
		return
	}
	c.NotificationDeliveries.WithLabelValues(sink, result(err)).Inc()
}

// Handler повертає готовий обробник /metrics
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
