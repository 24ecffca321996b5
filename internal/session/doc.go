// Package session owns the client's authentication lifecycle.
//
// A single [Store] holds the current bearer token and user profile and moves through
//
//	Anonymous -> Authenticating -> ProfileLoading -> Ready
//
// with Authenticating -> Anonymous on a failed login and any state -> Anonymous on logout.
// Restoring a persisted token enters ProfileLoading directly; the token is not validated
// until [Store.Validate] fetches the profile.
//
// Other components react to session changes through [Store.Subscribe]. Every transition into
// Anonymous is delivered as an [Event], which is how collections owned elsewhere are cleared
// when a session ends, including when the server rejects the token mid-session.
package session
