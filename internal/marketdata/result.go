package marketdata

import "time"

// State is the freshness of a cache lookup result, replacing the
// exception-driven upstream-failure handling of the source (spec.md §9)
// with an explicit sum type evaluators branch on.
type State string

const (
	StateFresh  State = "fresh"
	StateStale  State = "stale"
	StateAbsent State = "absent"
)

// Result is what Get/GetAll return for a single key.
type Result struct {
	State State
	Value any
	// Age is populated for Stale results: how long ago the value was
	// fetched.
	Age time.Duration
}

// Fresh builds a Fresh result.
func Fresh(v any) Result { return Result{State: StateFresh, Value: v} }

// Stale builds a Stale result.
func Stale(v any, age time.Duration) Result { return Result{State: StateStale, Value: v, Age: age} }

// AbsentResult is the Result for a key with no usable value.
var AbsentResult = Result{State: StateAbsent}

// Ok reports whether the result carries a usable value (Fresh or Stale).
func (r Result) Ok() bool { return r.State == StateFresh || r.State == StateStale }
