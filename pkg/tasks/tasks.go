// Package tasks tracks asynchronous generation and benchmark jobs. Each
// entry is written by the goroutine that owns the job and read by pollers
// through immutable snapshots, so readers never block.
package tasks

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of work a task performs
type Kind string

const (
	KindGeneration Kind = "generation"
	KindBenchmark  Kind = "benchmark"
)

// Status is the lifecycle state of a task
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusNotFound  Status = "not_found"
)

// Terminal reports whether no further transition can happen
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrTaskNotFound is returned when writing to an unknown task
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskFinished is returned when writing to a completed or failed task
	ErrTaskFinished = errors.New("task already finished")
)

// DefaultEstimate is the expected duration used for time-based progress
const DefaultEstimate = 30 * time.Second

// State is the mutable part of a task as seen by its writer
type State struct {
	Status      Status
	Message     string
	CurrentStep int
	TotalSteps  int
	Result      any
	Error       string
	EndTime     time.Time
}

// View is a point-in-time document returned to pollers
type View struct {
	ID          string     `json:"task_id"`
	Kind        Kind       `json:"kind,omitempty"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message"`
	CurrentStep int        `json:"current_step,omitempty"`
	TotalSteps  int        `json:"total_steps,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"results,omitempty"`
}

type entry struct {
	id      string
	kind    Kind
	started time.Time
	writeMu sync.Mutex
	state   atomic.Pointer[State]
	// high-water mark so a running task never reports less than before
	progress atomic.Int64
}

// Registry is an in-memory task store safe for concurrent use
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	estimate time.Duration
	now      func() time.Time
}

// Option customizes a Registry
type Option func(*Registry)

// WithEstimate sets the expected duration for tasks without step counts
func WithEstimate(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.estimate = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[string]*entry),
		estimate: DefaultEstimate,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns "<kind>_<unix>_<8 hex>"
func NewID(kind Kind, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", kind, at.Unix(), suffix)
}

// Create registers a running task and returns its id
func (r *Registry) Create(kind Kind, message string) string {
	now := r.now()
	e := &entry{kind: kind, started: now}
	e.state.Store(&State{Status: StatusRunning, Message: message})

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := NewID(kind, now)
		if _, taken := r.entries[id]; !taken {
			e.id = id
			r.entries[id] = e
			return id
		}
	}
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// Update applies fn to a copy of the running state and publishes it
func (r *Registry) Update(id string, fn func(*State)) error {
	return r.transition(id, func(s *State) {
		fn(s)
		// terminal states are reached only through Complete and Fail
		s.Status = StatusRunning
	})
}

// Complete marks the task completed with its result
func (r *Registry) Complete(id string, result any, message string) error {
	return r.transition(id, func(s *State) {
		s.Status = StatusCompleted
		s.Result = result
		s.Message = message
		s.CurrentStep = s.TotalSteps
		s.EndTime = r.now()
	})
}

// Fail marks the task failed with err's text
func (r *Registry) Fail(id string, err error) error {
	return r.transition(id, func(s *State) {
		s.Status = StatusFailed
		if err != nil {
			s.Error = err.Error()
			s.Message = "Error: " + err.Error()
		}
		s.EndTime = r.now()
	})
}

func (r *Registry) transition(id string, fn func(*State)) error {
	e, ok := r.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cur := e.state.Load()
	if cur.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskFinished, id, cur.Status)
	}
	next := *cur
	fn(&next)
	e.state.Store(&next)
	return nil
}

// Get returns the current view. Unknown ids yield a not_found document.
func (r *Registry) Get(id string) View {
	e, ok := r.lookup(id)
	if !ok {
		return View{
			ID:      id,
			Status:  StatusNotFound,
			Message: "Task not found",
		}
	}
	return r.view(e)
}

// Exists reports whether id was created by this registry
func (r *Registry) Exists(id string) bool {
	_, ok := r.lookup(id)
	return ok
}

func (r *Registry) view(e *entry) View {
	s := e.state.Load()
	start := e.started
	v := View{
		ID:          e.id,
		Kind:        e.kind,
		Status:      s.Status,
		Message:     s.Message,
		CurrentStep: s.CurrentStep,
		TotalSteps:  s.TotalSteps,
		StartTime:   &start,
		Error:       s.Error,
	}

	switch s.Status {
	case StatusCompleted:
		v.Progress = 100
		v.Result = s.Result
	case StatusFailed:
		v.Progress = 0
	default:
		p := int64(r.progress(s, r.now().Sub(e.started)))
		for {
			seen := e.progress.Load()
			if p <= seen {
				p = seen
				break
			}
			if e.progress.CompareAndSwap(seen, p) {
				break
			}
		}
		v.Progress = int(p)
	}

	if !s.EndTime.IsZero() {
		end := s.EndTime
		v.EndTime = &end
		v.Duration = end.Sub(start).Seconds()
	}
	return v
}

// progress derives a running task's percentage, capped at 99
func (r *Registry) progress(s *State, elapsed time.Duration) int {
	var p int
	if s.TotalSteps > 0 {
		p = int(math.Round(100 * float64(s.CurrentStep) / float64(s.TotalSteps)))
	} else {
		p = int(100 * elapsed / r.estimate)
	}
	if p < 0 {
		p = 0
	}
	if p > 99 {
		p = 99
	}
	return p
}

// List returns the views of every task of kind, or of all kinds when kind
// is empty, ordered by start time
func (r *Registry) List(kind Kind) []View {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		if kind == "" || e.kind == kind {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].started.Equal(entries[j].started) {
			return entries[i].started.Before(entries[j].started)
		}
		return entries[i].id < entries[j].id
	})

	views := make([]View, len(entries))
	for i, e := range entries {
		views[i] = r.view(e)
	}
	return views
}

// Latest returns the most recently started completed task of kind
func (r *Registry) Latest(kind Kind) (View, bool) {
	views := r.List(kind)
	for i := len(views) - 1; i >= 0; i-- {
		if views[i].Status == StatusCompleted {
			return views[i], true
		}
	}
	return View{}, false
}
