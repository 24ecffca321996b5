// Package server is an in-process implementation of the movie backend's HTTP contract.
//
// # Router
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] uses
// [http.ServeMux] method patterns, so a path registered for one method answers 405 for others.
// [Middleware] wraps handlers in reverse order (last added executes first). Per-route middleware
// passed to [BasicRouter.Handle] runs inside the router-level stack.
//
// # Tokens
//
// [TokenIssuer] signs HS256 access tokens whose subject is the numeric user id and whose expiry
// defaults to one day. [RequireBearer] rejects a missing header with "Not authenticated" and any
// invalid, expired or revoked token with "Could not validate credentials", both as 401 with a
// WWW-Authenticate header.
//
// # Stub
//
// [Stub] serves the endpoints the client depends on:
//
//	POST   /token/                  form username & password, returns a bearer token
//	POST   /register/  /users/      create an account
//	GET    /users/me                profile
//	GET    /recommendations/        up to ten unrated movies
//	GET    /recommendations/{id}    legacy anonymous variant
//	GET    /users/me/ratings        ratings in submission order
//	POST   /ratings/                create or replace a rating
//	GET    /users/me/watchlist      watchlist entries with embedded movies
//	POST   /watchlist/              idempotent add
//	DELETE /watchlist/{movie_id}    204, or 404 when absent
//	GET    /movies/                 search or genre filter with limit & skip
//	GET    /movies/{movie_id}       single movie
//
// Errors use the backend's shape: {"detail": "..."} or, for 422, a list of {loc, msg, type}.
// Every request is recorded so tests can assert on exactly what the client sent.
package server
