// Package events carries live progress of generation and benchmark tasks to
// in-process subscribers and, optionally, to external observers over a
// mangos PUB socket. Publishing never blocks the producer.
package events

import (
	"time"
)

// Progress is one observation of a running task
type Progress struct {
	TaskID     string        `json:"task_id"`
	Kind       string        `json:"kind"`
	Phase      string        `json:"phase"`
	Step       int           `json:"step,omitempty"`
	TotalSteps int           `json:"total_steps,omitempty"`
	Done       int64         `json:"done,omitempty"`
	Total      int64         `json:"total,omitempty"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	Remaining  time.Duration `json:"remaining_ns,omitempty"`
	MemoryMB   float64       `json:"memory_mb,omitempty"`
	Message    string        `json:"message,omitempty"`
	Time       time.Time     `json:"time"`
}

// Sink receives progress. Implementations must return promptly.
type Sink interface {
	Publish(p Progress)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(p Progress)

// Publish calls f
func (f SinkFunc) Publish(p Progress) {
	f(p)
}

type discard struct{}

func (discard) Publish(Progress) {}

// Discard drops everything
var Discard Sink = discard{}

// Tee fans one observation out to several sinks in order
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(p Progress) {
		for _, s := range sinks {
			if s != nil {
				s.Publish(p)
			}
		}
	})
}

// Estimate projects the remaining time from the fraction done so far
func Estimate(elapsed time.Duration, done, total int64) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	return time.Duration(float64(elapsed) * float64(total-done) / float64(done))
}
