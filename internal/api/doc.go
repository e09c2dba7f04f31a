// Package api is the REST client for the sqlgym backend.
//
// # Authentication
//
// Requests to paths outside the public allow-list (see [IsPublic]) carry the session's bearer token.
// A 401 from such a path triggers one single-flight refresh through the [Session] and one retry.
// A second 401 is returned as an [*HTTPError] rather than retried again. When the refresh itself fails
// the session has already been expired and the refresh error (wrapping [shared.ErrRefreshFailed] or
// [shared.ErrNoRefreshToken]) is returned.
//
// # Errors
//
// Non-2xx responses are returned as [*HTTPError] carrying the server's message field when present.
// HTTPError unwraps to [shared.ErrAPIRequest].
//
// # Throttling
//
// An optional client-side rate limit ([golang.org/x/time/rate]) and per-request timeout apply to every
// attempt. A zero timeout leaves the transport default in place.
package api
