// Package repositories implements SQLite persistence for cached platform data.
//
// The local cache lets history and pending submissions be listed without a network round trip and
// keeps verdicts that arrived over the push channel after the process that submitted exits.
//
// Key Implementations:
//   - [SubmissionRepository] : submission history keyed by server-assigned id, with verdict application
//
// Tables are created by the embedded migrations in the shared package ([shared.RunMigrations]).
package repositories
