// internal/extract/cascade.go
package extract

import "strings"

// Reason explains why a strategy produced no value.
type Reason string

const (
	ReasonOK        Reason = ""
	ReasonNotFound  Reason = "not_found"
	ReasonMalformed Reason = "malformed"
)

// Result is the outcome of one extraction strategy.
type Result struct {
	Value    string
	Reason   Reason
	Strategy string
}

// OK reports whether the strategy produced a value.
func (r Result) OK() bool {
	return r.Reason == ReasonOK && r.Value != ""
}

// Found builds a successful Result.
func Found(value string) Result {
	value = strings.TrimSpace(value)
	if value == "" {
		return NotFound()
	}
	return Result{Value: value}
}

// NotFound builds a Result for a strategy that had nothing to offer.
func NotFound() Result {
	return Result{Reason: ReasonNotFound}
}

// Malformed builds a Result for a strategy that found something unusable.
func Malformed() Result {
	return Result{Reason: ReasonMalformed}
}

// Strategy is a named extraction step over some input.
type Strategy[T any] struct {
	Name string
	Run  func(T) Result
}

// Cascade runs strategies in order and returns the first success, tagged with
// the strategy name. When every strategy fails the last failure is returned.
func Cascade[T any](in T, strategies ...Strategy[T]) Result {
	last := NotFound()
	for _, s := range strategies {
		r := s.Run(in)
		r.Strategy = s.Name
		if r.OK() {
			return r
		}
		if r.Reason == ReasonOK {
			r.Reason = ReasonNotFound
		}
		last = r
	}
	return last
}
