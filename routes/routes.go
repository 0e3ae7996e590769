package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/ai-integration-platform/app"
	"github.com/upb/ai-integration-platform/handlers"
)

// requestTimeoutMargin is added to the chain deadline so the router, not the
// HTTP layer, decides when a route call has run out of time
const requestTimeoutMargin = 5 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.Config.Routing.ChainTimeout + requestTimeoutMargin))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-User-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var store handlers.ReadinessChecker
	if deps.Store != nil {
		store = deps
	}
	healthHandler := handlers.NewHealthHandler(store, deps.Registry, deps.Logger)
	routeHandler := handlers.NewRouteHandler(deps.Router, deps.Config.Routing.ExposeAttempts, deps.Logger)
	providerHandler := handlers.NewProviderHandler(deps.Registry, deps.Health, deps.Breaker, deps.Logger)
	spendHandler := handlers.NewSpendHandler(deps.Ledger, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.Audit, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		// Operator endpoints
		r.Get("/providers", providerHandler.HandleList)
		r.Get("/providers/health", providerHandler.HandleHealth)

		// Caller endpoints (require an identity)
		r.Group(func(r chi.Router) {
			r.Use(deps.Identity.Resolve)
			r.Post("/route", routeHandler.HandleRoute)
			r.Post("/route/plan", routeHandler.HandlePlan)
			r.Get("/spend", spendHandler.HandleSpend)
			r.Get("/routes", auditHandler.HandleList)
			r.Get("/routes/{requestID}", auditHandler.HandleGet)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
