// Package tasks keeps the client's session-scoped collections consistent with the movie backend.
//
// # Fetching
//
// [Engine] loads recommendations, ratings, the watchlist and filtered movie lists. [Engine.LoadAll]
// issues the initial loads concurrently and applies each result as it settles. Every fetch captures
// the engine epoch before calling the backend; a logout bumps the epoch, so results that arrive
// afterwards are dropped with [ErrStale] instead of repopulating cleared state. Search and genre
// queries also carry a per-channel sequence number and only the newest response is kept.
//
// # Inputs and views
//
// [Engine.SetSearch] and [Engine.SetGenre] update the filter immediately, clear the other one and
// schedule a debounced fetch through [Debouncer]. [ResolveView] is a pure function that picks the
// collection to display from already-fetched data.
//
// # Mutations
//
// Ratings and watchlist changes go through a small apply/persist/commit helper:
//   - [Engine.Rate] updates the local score first and keeps it if the write fails
//   - [Engine.AddToWatchlist] waits for the backend entry before touching local state
//   - [Engine.RemoveFromWatchlist] removes locally first and restores on failure
//
// Mutations on the same movie are serialized.
//
// # Updates
//
// Progress and failures are sent on an optional channel of [Update] values without blocking.
// Loading state is tracked per [Phase], so a background refresh never looks like the initial load.
//
// # Caching
//
// The optional [MovieCacher] receives every movie the engine fetches (repositories.MovieCacheAdapter).
// Cache failures are logged and ignored.
package tasks
