// Package lookup models best-effort lookups whose failure is tolerated but
// must stay visible. A Result distinguishes "definitively empty" from
// "lookup failed", even where callers treat both the same way.
package lookup

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Outcome classifies a lookup.
type Outcome int

const (
	// Empty means the lookup succeeded and found nothing.
	Empty Outcome = iota
	// Found means the lookup succeeded with a value.
	Found
	// Failed means the lookup could not be completed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "empty"
	}
}

// Result carries a value together with how it was obtained.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Reason  error
}

// FoundValue wraps a successful lookup.
func FoundValue[T any](v T) Result[T] {
	return Result[T]{Value: v, Outcome: Found}
}

// None is a successful lookup with no value.
func None[T any]() Result[T] {
	return Result[T]{Outcome: Empty}
}

// Fail records a failed lookup.
func Fail[T any](reason error) Result[T] {
	return Result[T]{Outcome: Failed, Reason: reason}
}

// OK reports whether the lookup produced a value.
func (r Result[T]) OK() bool { return r.Outcome == Found }

// OrZero returns the value, or the zero value on Empty and Failed.
func (r Result[T]) OrZero() T {
	if r.Outcome != Found {
		var zero T
		return zero
	}
	return r.Value
}

var (
	counterOnce sync.Once
	failures    metric.Int64Counter
)

func failureCounter() metric.Int64Counter {
	counterOnce.Do(func() {
		meter := otel.Meter("github.com/Coykto/debug-mcp/lookup")
		c, err := meter.Int64Counter("debug_mcp_lenient_lookup_failures_total",
			metric.WithDescription("Lookups whose failure was tolerated and treated as empty"),
		)
		if err == nil {
			failures = c
		}
	})
	return failures
}

// Report logs and counts a failed lookup. Found and Empty results are
// left alone. kind names the lookup, e.g. "jira_epic_children".
func Report[T any](ctx context.Context, logger *zap.Logger, kind string, r Result[T], fields ...zap.Field) {
	if r.Outcome != Failed {
		return
	}
	if logger != nil {
		logger.Warn("lenient lookup failed; treating as empty",
			append([]zap.Field{zap.String("kind", kind), zap.Error(r.Reason)}, fields...)...,
		)
	}
	if c := failureCounter(); c != nil {
		c.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
