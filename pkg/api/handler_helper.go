package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dd0wney/cluso-bench/pkg/api/middleware"
	"github.com/dd0wney/cluso-bench/pkg/logging"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	middleware.WriteError(w, status, message)
}

// requestDecoder fills a request struct from an optional JSON body and then
// from query parameters, which take precedence.
type requestDecoder struct {
	r          *http.Request
	err        error
	statusCode int
}

func newRequestDecoder(r *http.Request) *requestDecoder {
	return &requestDecoder{r: r}
}

func (rd *requestDecoder) fail(status int, err error) {
	if rd.err == nil {
		rd.err = err
		rd.statusCode = status
	}
}

// DecodeJSON decodes the body into v. An empty body is not an error.
func (rd *requestDecoder) DecodeJSON(v any) *requestDecoder {
	if rd.err != nil || rd.r.Body == nil {
		return rd
	}
	dec := json.NewDecoder(rd.r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
	case errors.As(err, &tooLarge):
		rd.fail(http.StatusRequestEntityTooLarge, errors.New("request body too large"))
	default:
		rd.fail(http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
	}
	return rd
}

// Int overrides *dst with the query parameter when present
func (rd *requestDecoder) Int(name string, dst *int) *requestDecoder {
	raw := rd.r.URL.Query().Get(name)
	if rd.err != nil || raw == "" {
		return rd
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		rd.fail(http.StatusBadRequest, fmt.Errorf("%s: must be an integer", name))
		return rd
	}
	*dst = n
	return rd
}

// String overrides *dst with the query parameter when present
func (rd *requestDecoder) String(name string, dst *string) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	if raw := rd.r.URL.Query().Get(name); raw != "" {
		*dst = raw
	}
	return rd
}

// Validate runs fn once decoding succeeded
func (rd *requestDecoder) Validate(fn func() error) *requestDecoder {
	if rd.err != nil {
		return rd
	}
	if err := fn(); err != nil {
		rd.fail(http.StatusBadRequest, err)
	}
	return rd
}

// RespondError sends the error response and returns true if there was an error.
func (rd *requestDecoder) RespondError(w http.ResponseWriter) bool {
	if rd.err == nil {
		return false
	}
	middleware.WriteError(w, rd.statusCode, rd.err.Error())
	return true
}
