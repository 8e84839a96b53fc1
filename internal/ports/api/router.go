package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"fibermap/internal/application"
	"fibermap/internal/logging"
	"fibermap/internal/observability"
	"fibermap/internal/ports"
	"fibermap/internal/ports/ws"
)

// RouterDeps - залежності HTTP шару. Archive, Feed і Metrics необов'язкові.
type RouterDeps struct {
	Topology       *application.TopologyService
	Faults         *application.FaultService
	Navigation     *application.NavigationService
	Archive        ports.IncidentArchive
	Feed           *ws.FaultFeed
	Metrics        *observability.Collector
	Log            logging.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter збирає chi роутер з усіма маршрутами під /api/v1
func NewRouter(d RouterDeps) http.Handler {
	if d.Log == nil {
		d.Log = logging.Noop()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 60 * time.Second
	}
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = []string{"*"}
	}

	liaisonHandler := NewLiaisonHandler(d.Topology, d.Faults, d.Archive, d.Log)
	faultHandler := NewFaultHandler(d.Faults, d.Log)
	navigationHandler := NewNavigationHandler(d.Navigation, d.Log)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(middleware.Recoverer)
	r.Use(d.Metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"Link", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			// websocket живе довше за таймаут запиту
			if d.Feed != nil {
				r.Get("/ws/faults", d.Feed.HandleConnection)
			}

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(d.RequestTimeout))

				liaisonHandler.RegisterRoutes(r)
				faultHandler.RegisterRoutes(r)
				navigationHandler.RegisterRoutes(r)
			})
		})
	})

	return r
}

// requestLogger пише один рядок на запит і кладе request id у контекст логера
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := middleware.GetReqID(ctx); id != "" {
				ctx = logging.ContextWithRequestID(ctx, id)
				w.Header().Set("X-Request-Id", id)
			}
			r = r.WithContext(ctx)

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.Int("status", status),
				logging.Int("bytes", ww.BytesWritten()),
				logging.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				log.Error(ctx, "http request", fields...)
				return
			}
			log.Info(ctx, "http request", fields...)
		})
	}
}
