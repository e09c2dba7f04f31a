// Package storage provides the persistence collaborators of the session layer.
//
// # Local Store
//
// [Store] is a flat string key/value cache. [SQLiteStore] keeps it in the kv_store table so every
// process pointed at the same database shares it; [MemoryStore] keeps it per process and is used in tests.
//
// # Cookie Jar
//
// [CookieJar] persists cookies as JSON with their Domain, Path, Max-Age, Secure and SameSite attributes.
// Entries expire by max-age against an injectable clock. The file is re-read on every access so a
// cookie written by one process is visible to the others.
//
// # Change Notification
//
// [Watcher] observes the file backing a store with fsnotify and emits an [Event] for each key whose
// value changed since the previous snapshot. Delivery is best-effort and eventually consistent,
// bounded only by the platform's file notification latency.
package storage
