// Package handlers contains reusable pieces of the ops HTTP server:
// health aggregation and middleware.
//
// # Health Checks
//
// Checks are registered by name and run in parallel on every probe:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.NewPingCheck(repo))
//	checker.AddOptionalCheck("artifact_cache", handlers.NewPingCheck(cache))
//
// A failing optional check is reported in the response but keeps the
// worker healthy; the artifact cache only speeds up rendering.
//
// # Middleware
//
// APIKeyAuth guards the /api/v1 routes when HTTP_API_KEY is set:
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", cfg.HTTP.APIKey)
//	mux.Handle("/api/v1/", auth.Middleware(api))
package handlers
