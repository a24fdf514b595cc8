package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"golang.org/x/time/rate"

	"github.com/avishkarn/smsledger/pkg/middleware"
	"github.com/avishkarn/smsledger/pkg/observability"
)

// SetupRouter configures all routes and returns the HTTP handler
func SetupRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	tracer := otel.GetTracerProvider().Tracer("smsledger/api")

	route := func(pattern, routeLabel string, h http.HandlerFunc) {
		handler := middleware.Chain(
			observability.InstrumentHandler(routeLabel, h),
			middleware.Tracing(tracer, routeLabel),
		)
		mux.Handle(pattern, handler)
		deps.Logger.Info("registered route", "pattern", pattern)
	}

	route("POST /v1/messages", "/v1/messages", deps.IngestHandler.HandleIngestMessage)
	route("POST /v1/messages/batch", "/v1/messages/batch", deps.IngestHandler.HandleIngestBatch)
	route("GET /v1/jobs/{id}", "/v1/jobs/{id}", deps.IngestHandler.HandleGetJob)
	route("GET /v1/transactions", "/v1/transactions", deps.IngestHandler.HandleListTransactions)
	route("GET /v1/transactions/summary", "/v1/transactions/summary", deps.IngestHandler.HandleTransactionSummary)
	route("GET /v1/transactions/stats", "/v1/transactions/stats", deps.IngestHandler.HandleMerchantStats)
	route("GET /v1/registry", "/v1/registry", deps.IngestHandler.HandleGetRegistry)
	route("PUT /v1/registry", "/v1/registry", deps.IngestHandler.HandlePutRegistry)

	registerUtilityRoutes(mux, deps)

	chain := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Recovery(deps.Logger),
		middleware.Logging(deps.Logger),
	}
	if deps.Config.Server.RateLimitPerSecond > 0 && deps.Config.Server.RateLimitBurst > 0 {
		limiter := rate.NewLimiter(
			rate.Limit(float64(deps.Config.Server.RateLimitPerSecond)),
			deps.Config.Server.RateLimitBurst,
		)
		chain = append(chain, middleware.RateLimit(limiter))
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		MaxAge:         7200,
	})

	return corsHandler.Handler(middleware.Chain(mux, chain...))
}

// registerUtilityRoutes registers health check, metrics, and other utility routes
func registerUtilityRoutes(mux *http.ServeMux, deps *Dependencies) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if err := deps.DB.Health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			if _, writeErr := w.Write([]byte("database unhealthy")); writeErr != nil {
				deps.Logger.Error("failed to write health response", "error", writeErr)
			}
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			deps.Logger.Error("failed to write health response", "error", err)
		}
	})
	deps.Logger.Info("registered health check", "path", "/health")

	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ready")); err != nil {
			deps.Logger.Error("failed to write readiness response", "error", err)
		}
	})
	deps.Logger.Info("registered readiness check", "path", "/ready")

	if deps.Config.Observability.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		deps.Logger.Info("registered metrics endpoint", "path", "/metrics")
	}
}
