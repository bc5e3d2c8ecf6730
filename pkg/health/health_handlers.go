package health

import (
	"encoding/json"
	"net/http"
)

func writeResponse(w http.ResponseWriter, response Response, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HTTPHandler returns an HTTP handler for the health check endpoint
func (hc *HealthChecker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.Check(r.Context())

		// degraded still serves traffic
		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, response, code)
	}
}

// ReadinessHandler returns an HTTP handler for readiness checks
func (hc *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckReadiness(r.Context())

		// readiness is binary
		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, response, code)
	}
}

// LivenessHandler returns an HTTP handler for liveness checks
func (hc *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := hc.CheckLiveness(r.Context())

		code := http.StatusOK
		if response.Status != StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		writeResponse(w, response, code)
	}
}
