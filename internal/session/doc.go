// Package session owns the access/refresh token lifecycle.
//
// A [Manager] keeps the credential pair in two places: a local [storage.Store] that is read first,
// and a [storage.CookieJar] scoped to the shared parent domain that other processes observe.
// Reads fall back from the store to the cookie and backfill the store.
//
// # Refresh
//
// [Manager.RefreshAccessToken] is single-flight: concurrent callers share one renewal request and its outcome.
// A failed renewal is terminal for the session. Tokens are cleared and the [Notifier] is told to send
// the user back to login.
//
// # Expiry
//
// Three paths end a session: a failed refresh, the periodic [Manager.Sweep] finding an invalid pair,
// and [Manager.WatchStorage] observing another process remove a token. All of them go through
// [Manager.Expire], which notifies at most once until [Manager.SetTokens] stores a new pair.
package session
