package server

import (
	"net/http"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Router defines HTTP routing with a shared middleware stack.
type Router interface {
	Use(middleware ...Middleware)                                          // Use adds middleware applied to every route
	Handle(method, path string, handler http.Handler, extra ...Middleware) // Handle registers a handler for method and path
	ServeHTTP(w http.ResponseWriter, r *http.Request)                      // ServeHTTP implements http.Handler for the entire router
}
