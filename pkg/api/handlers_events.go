package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dd0wney/cluso-bench/pkg/events"
	"github.com/dd0wney/cluso-bench/pkg/logging"
	"github.com/dd0wney/cluso-bench/pkg/tasks"
)

// statusPollInterval is how often an event stream checks for a terminal state
const statusPollInterval = time.Second

// handleEvents streams a task's progress as server-sent events. The stream
// ends with a "status" event once the task is completed or failed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if v := s.jobs.Status(id); v.Status == tasks.StatusNotFound {
		s.respondError(w, http.StatusNotFound, "Task not found")
		return
	}
	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := s.jobs.Bus().Subscribe(r.Context(), id)
	defer sub.Unsubscribe()
	if s.metrics != nil {
		s.metrics.StreamOpened()
		defer s.metrics.StreamClosed()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream flush failed", logging.Error(err))
		return
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	send := func(event string, v any) bool {
		data, err := json.Marshal(v)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return false
		}
		if rc.Flush() != nil {
			return false
		}
		if s.metrics != nil {
			s.metrics.FrameSent(event)
		}
		return true
	}

	for {
		// a task may finish before the first tick
		if v := s.jobs.Status(id); v.Status.Terminal() {
			drain(sub, func(p events.Progress) bool { return send("progress", p) })
			send("status", v)
			return
		}
		select {
		case <-r.Context().Done():
			return
		case p, open := <-sub.Channel():
			if !open {
				return
			}
			if !send("progress", p) {
				return
			}
		case <-ticker.C:
		}
	}
}

// drain forwards progress already buffered for sub without waiting
func drain(sub *events.Subscription, fn func(events.Progress) bool) {
	for {
		select {
		case p, open := <-sub.Channel():
			if !open || !fn(p) {
				return
			}
		default:
			return
		}
	}
}
