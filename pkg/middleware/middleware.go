// Package middleware provides the HTTP middleware stack applied per module,
// plus request IDs, request logging, panic recovery, and CORS.
package middleware

import (
	"net/http"
	"slices"
)

// Func wraps a handler with cross-cutting behaviour.
type Func = func(http.Handler) http.Handler

// System is an ordered middleware stack. The first registered Func runs
// outermost.
type System interface {
	Use(mw Func)
	Apply(handler http.Handler) http.Handler
}

type stack struct {
	fns []Func
}

// New creates a stack seeded with fns.
func New(fns ...Func) System {
	return &stack{fns: slices.Clone(fns)}
}

func (s *stack) Use(fn Func) {
	s.fns = append(s.fns, fn)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for _, fn := range slices.Backward(s.fns) {
		handler = fn(handler)
	}
	return handler
}
