package generator

import (
	"context"
	"errors"
)

// Action is what the generator does after a batched write attempt
type Action int

const (
	// ActionAccept keeps the batch as written
	ActionAccept Action = iota
	// ActionRetry repeats the batched write
	ActionRetry
	// ActionPerItem writes the batch one entity at a time
	ActionPerItem
	// ActionFail counts every entity of the batch as failed
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionAccept:
		return "accept"
	case ActionRetry:
		return "retry"
	case ActionPerItem:
		return "per_item"
	case ActionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// FallbackPolicy decides how a failed batched write is recovered
type FallbackPolicy struct {
	// BatchRetries is how many more times a failed batch is retried as a whole
	BatchRetries int `yaml:"batch_retries" json:"batch_retries" env:"BATCH_RETRIES"`
	// PerItemFallback switches to single-entity writes once retries are spent
	PerItemFallback bool `yaml:"per_item_fallback" json:"per_item_fallback" env:"PER_ITEM"`
	// MaxConsecutiveFailures abandons a per-item loop; 0 never abandons
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" json:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES"`
}

// DefaultFallbackPolicy retries once then falls back to per-item writes
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		BatchRetries:    1,
		PerItemFallback: true,
	}
}

// Decide maps the outcome of batched attempt number attempt (1-based) to
// the next action. Cancellation is never retried.
func (p FallbackPolicy) Decide(attempt int, err error) Action {
	if err == nil {
		return ActionAccept
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFail
	}
	if attempt <= p.BatchRetries {
		return ActionRetry
	}
	if p.PerItemFallback {
		return ActionPerItem
	}
	return ActionFail
}

// ShouldAbandon reports whether a per-item loop gives up after consecutive
// failures in a row
func (p FallbackPolicy) ShouldAbandon(consecutive int) bool {
	return p.MaxConsecutiveFailures > 0 && consecutive >= p.MaxConsecutiveFailures
}
