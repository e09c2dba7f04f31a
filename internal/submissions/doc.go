// Package submissions folds asynchronously delivered verdicts into local submission state.
//
// [Reconcile] is the pure rule: exactly the entry whose id matches the verdict changes.
// [Tracker] applies it to a mutex-guarded list of submissions owned by one process, lets callers
// block on a single submission's verdict with [Tracker.Wait], and writes through to a
// [Persister] (usually the sqlite submission cache) when one is configured.
//
// Verdicts can overtake the REST acknowledgement of a submission, so the tracker holds verdicts
// for unknown ids until the matching submission is tracked.
package submissions
