// Package services defines the [Backend] interface for the movie recommendation API and implements it
// with [MovieAPI] on top of a [Gateway].
//
// # Gateway
//
// Every outbound call goes through [Gateway.Do]:
//   - Authorization: Bearer header only when the bound [TokenProvider] has a token
//   - X-Request-ID on every request
//   - client-side rate limiting (golang.org/x/time/rate)
//   - circuit breaker (sony/gobreaker) counting 5xx and transport failures; 4xx never trips it
//
// # Error Handling
//
// Responses are classified uniformly, whatever the call site:
//   - 401 on an authenticated call : [shared.AuthError] wrapping [shared.ErrSessionExpired]; the unauthorized hook runs first
//   - 404 : [shared.APIError] unwrapping to [shared.ErrNotFound]
//   - other non-2xx : [shared.APIError] with the server's detail
//   - transport failure or open circuit : [shared.NetworkError]
//
// The server's detail field may be a string or a list of validation entries; [ParseDetail] renders both.
//
// # Token Exchange
//
// [MovieAPI.Token] uses the OAuth2 password grant (form-encoded username and password, credentials in params).
// The backend issues a JWT without expires_in, so expiry is read from the token's claims by the session.
package services
