package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dd0wney/cluso-bench/pkg/logging"
)

// PanicRecovery turns a handler panic into a 500 reply. The panic value
// and stack are logged, never sent to the client.
func PanicRecovery(logger logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic in http handler",
						logging.String("method", r.Method),
						logging.Path(r.URL.Path),
						logging.String("request_id", GetRequestID(r)),
						logging.String("panic", fmt.Sprint(err)),
						logging.String("stack", string(debug.Stack())))
					WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
