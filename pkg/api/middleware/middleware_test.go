package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("ok"))
})

// --- BodySizeLimit Tests ---

func TestBodySizeLimit_AllowsSmallRequest(t *testing.T) {
	handler := BodySizeLimit(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small body"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != "small body" {
		t.Errorf("Body = %q", rr.Body.String())
	}
}

func TestBodySizeLimit_RejectsLargeContentLength(t *testing.T) {
	handler := BodySizeLimit(100)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called for oversized request")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	req.ContentLength = 1000
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("error body is not JSON: %v", err)
	}
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Code = %d", resp.Code)
	}
}

func TestBodySizeLimit_LimitsActualBody(t *testing.T) {
	var readErr error
	handler := BodySizeLimit(10)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if readErr == nil {
		t.Error("Expected error reading oversized chunked body")
	}
}

// --- PanicRecovery Tests ---

func TestPanicRecovery_HandlesNormalRequest(t *testing.T) {
	handler := PanicRecovery(nil)(okHandler)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestPanicRecovery_RecoversPanic(t *testing.T) {
	logger := logging.NewCaptureLogger()
	handler := PanicRecovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret internal detail")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	if strings.Contains(rr.Body.String(), "secret") {
		t.Error("panic value leaked to client")
	}
	if !logger.Has(logging.ErrorLevel, "panic in http handler") {
		t.Error("panic was not logged")
	}
}

// --- Logging Tests ---

func TestLogging_Levels(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
		level  logging.Level
	}{
		{"poll", http.MethodGet, http.StatusOK, logging.DebugLevel},
		{"submit", http.MethodPost, http.StatusAccepted, logging.InfoLevel},
		{"failure", http.MethodGet, http.StatusInternalServerError, logging.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.NewCaptureLogger()
			logger.SetLevel(logging.DebugLevel)
			handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, "/x", nil))

			if !logger.Has(tt.level, "http request") {
				t.Errorf("no %s entry in %+v", tt.level, logger.Entries())
			}
		})
	}
}

func TestLogging_IncludesRequestID(t *testing.T) {
	logger := logging.NewCaptureLogger()
	handler := RequestID()(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logger.Entries()
	if len(entries) != 1 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Fields["request_id"] != "req-42" {
		t.Errorf("request_id = %v", entries[0].Fields["request_id"])
	}
}

// --- RequestID Tests ---

func TestRequestID_GeneratesNew(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("Expected request ID in context")
	}
	if rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("header %q != context %q", rr.Header().Get(RequestIDHeader), seen)
	}
}

func TestSanitizeRequestID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"abc-123", "abc-123"},
		{"a_b.c", "a_b.c"},
		{"<script>alert(1)</script>", "scriptalert1script"},
		{"with space", "withspace"},
		{strings.Repeat("a", 100), strings.Repeat("a", 64)},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sanitizeRequestID(tt.input); got != tt.expected {
			t.Errorf("sanitizeRequestID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestGetRequestID_NoContext(t *testing.T) {
	if id := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil)); id != "" {
		t.Errorf("Expected empty ID, got %q", id)
	}
}

// --- CORS Tests ---

func TestCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}

	tests := []struct {
		name       string
		config     *CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantHeader string
	}{
		{"allowed origin", cfg, http.MethodGet, "http://localhost:3000", false, http.StatusOK, "http://localhost:3000"},
		{"disallowed origin", cfg, http.MethodGet, "http://evil.example", false, http.StatusOK, ""},
		{"wildcard", &CORSConfig{AllowedOrigins: []string{"*"}}, http.MethodGet, "http://any.example", false, http.StatusOK, "http://any.example"},
		{"preflight allowed", cfg, http.MethodOptions, "http://localhost:3000", true, http.StatusNoContent, "http://localhost:3000"},
		{"preflight disallowed", cfg, http.MethodOptions, "http://evil.example", true, http.StatusForbidden, ""},
		{"nil config", nil, http.MethodGet, "http://localhost:3000", false, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(tt.config)(okHandler)
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

// --- Metrics Tests ---

type mockRecorder struct {
	mu       sync.Mutex
	paths    []string
	statuses []string
	sizes    []float64
	inFlight int
	peak     int
}

func (m *mockRecorder) ObserveRequest(method, path, status string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
	m.statuses = append(m.statuses, status)
}

func (m *mockRecorder) ObserveResponseSize(method, path string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sizes = append(m.sizes, size)
}

func (m *mockRecorder) RequestStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
}

func (m *mockRecorder) RequestFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inFlight--
}

func TestMetrics_RecordsRouteLabel(t *testing.T) {
	rec := &mockRecorder{}
	handler := Metrics(rec, "/api/benchmark/status/{id}")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/benchmark/status/abc", nil))

	if len(rec.paths) != 1 || rec.paths[0] != "/api/benchmark/status/{id}" {
		t.Errorf("paths = %v", rec.paths)
	}
	if rec.statuses[0] != "404" {
		t.Errorf("status = %s", rec.statuses[0])
	}
	if rec.sizes[0] != float64(len("missing")) {
		t.Errorf("size = %v", rec.sizes[0])
	}
	if rec.inFlight != 0 || rec.peak != 1 {
		t.Errorf("in flight = %d, peak = %d", rec.inFlight, rec.peak)
	}
}

func TestMetrics_FallsBackToPath(t *testing.T) {
	rec := &mockRecorder{}
	Metrics(rec, "")(okHandler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/raw", nil))

	if len(rec.paths) != 1 || rec.paths[0] != "/raw" {
		t.Errorf("paths = %v", rec.paths)
	}
}

func TestMetrics_NilRecorder(t *testing.T) {
	rr := httptest.NewRecorder()
	Metrics(nil, "/x")(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

// --- Streaming Tests ---

func TestWrappersSupportFlush(t *testing.T) {
	wrappers := map[string]func(http.Handler) http.Handler{
		"logging": Logging(nil),
		"metrics": Metrics(&mockRecorder{}, "GET /events/{id}"),
	}
	for name, wrap := range wrappers {
		t.Run(name, func(t *testing.T) {
			var isFlusher bool
			var flushErr error
			handler := wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, isFlusher = w.(http.Flusher)
				w.Write([]byte("data: x\n\n"))
				flushErr = http.NewResponseController(w).Flush()
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/events/abc", nil))

			if !isFlusher {
				t.Error("wrapped writer does not implement http.Flusher")
			}
			if flushErr != nil {
				t.Errorf("Flush through ResponseController: %v", flushErr)
			}
			if !rr.Flushed {
				t.Error("underlying recorder was not flushed")
			}
		})
	}
}

func TestWrappersUnwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	if got := (&statusRecorder{ResponseWriter: rr}).Unwrap(); got != rr {
		t.Errorf("statusRecorder.Unwrap = %v", got)
	}
	if got := (&metricsResponseWriter{ResponseWriter: rr}).Unwrap(); got != rr {
		t.Errorf("metricsResponseWriter.Unwrap = %v", got)
	}
}
