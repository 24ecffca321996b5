// Package repositories implements SQLite persistence for client-side state.
//
// Key Implementations:
//   - [TokenRepository] : the access token under a well-known key in client_state; satisfies session.TokenStore
//   - [MovieRepository] : local cache of movie projections seen in backend responses
//   - [MovieCacheAdapter] : adapts [MovieRepository] to tasks.MovieCacher
//
// The cache is never authoritative. The engine always renders server responses; cached movies
// back offline listing (marquee cache list) only.
package repositories
