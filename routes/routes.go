package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/llm-access-gate/app"
	"github.com/upb/llm-access-gate/handlers"
	"github.com/upb/llm-access-gate/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var storeCheck handlers.StoreChecker
	if deps.DB != nil {
		storeCheck = deps.DB
	}
	healthHandler := handlers.NewHealthHandler(storeCheck, deps.Config.Storage.Backend, deps.Resolver, deps.Logger)
	policyHandler := handlers.NewTenantPolicyHandler(deps.TenantPolicies, deps.Resolver, deps.Logger)
	secretsHandler := handlers.NewSecretsHandler(deps.TenantPolicies, deps.UserSecrets, deps.Logger)
	accessHandler := handlers.NewAccessHandler(deps.Resolver, deps.Logger)

	// Health check endpoints
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/access/infer-provider", accessHandler.HandleInferProvider)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireTenantMatch)

			// Policy override management
			r.Route("/policy", func(r chi.Router) {
				r.Get("/", policyHandler.HandleGetPolicy)
				r.Put("/", policyHandler.HandleUpsertPolicy)
				r.Delete("/", policyHandler.HandleDeletePolicy)
				r.Get("/effective", policyHandler.HandleGetEffectivePolicy)
			})

			// Model registry, filtered through the effective gate
			r.Get("/models", policyHandler.HandleListModels)

			// Credential management (write/delete only, never read back)
			r.Route("/secrets", func(r chi.Router) {
				r.Put("/{provider}", secretsHandler.HandleSetTenantSecret)
				r.Delete("/{provider}", secretsHandler.HandleDeleteTenantSecret)
			})
			r.Route("/users/{userID}/secrets", func(r chi.Router) {
				r.Get("/", secretsHandler.HandleListUserSecretProviders)
				r.Put("/{provider}", secretsHandler.HandleSetUserSecret)
				r.Delete("/{provider}", secretsHandler.HandleDeleteUserSecret)
			})

			// Access decisions for the inference path
			r.Route("/access", func(r chi.Router) {
				r.Post("/check", accessHandler.HandleCheckAccess)
				r.Post("/favorites", accessHandler.HandleFilterFavorites)
				r.Post("/keys", accessHandler.HandleResolveKeys)
			})
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
