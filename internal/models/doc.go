// Package models defines the client-side projections of backend data for marquee.
//
// All types are read-only views of server state:
//   - [Movie] : catalog entry; identity is ID, genres arrive as one comma-delimited string
//   - [User] : the authenticated profile returned by /users/me
//   - [Rating] : one (movie, score) pair; the client holds them as [Ratings] for O(1) lookup
//   - [WatchlistEntry] : a saved movie with its embedded [Movie]
//   - [Token] : decoded (unverified) view of the bearer token
//
// [ScoreScale] bounds rating scores. It is configurable because the backend has accepted
// both whole-star and half-star scores.
package models
