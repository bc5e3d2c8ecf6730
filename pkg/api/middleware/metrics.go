package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsRecorder receives per-route request observations
type MetricsRecorder interface {
	ObserveRequest(method, route, code string, d time.Duration)
	ObserveResponseSize(method, route string, size float64)
	RequestStarted()
	RequestFinished()
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and bytes written
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *metricsResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

func (w *metricsResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Metrics tracks requests under the route label. An empty route falls back
// to the request path.
func Metrics(recorder MetricsRecorder, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder.RequestStarted()
			defer recorder.RequestFinished()

			wrapper := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			label := route
			if label == "" {
				label = r.URL.Path
			}
			recorder.ObserveRequest(r.Method, label, strconv.Itoa(wrapper.statusCode), time.Since(start))
			recorder.ObserveResponseSize(r.Method, label, float64(wrapper.bytesWritten))
		})
	}
}
