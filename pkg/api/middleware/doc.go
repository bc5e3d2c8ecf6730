// Package middleware provides the HTTP middleware of the benchmark API.
//
// Every middleware has the shape func(http.Handler) http.Handler so they
// chain directly:
//
//	handler := middleware.PanicRecovery(logger)(mux)
//	handler = middleware.Logging(logger)(handler)
//	handler = middleware.RequestID()(handler)
//
// Metrics is applied per route so that the route pattern, not the raw
// path, labels each series.
package middleware
