//go:build !unix

package storage

// lockFile is a no-op where flock is unavailable; writers are then serialized per process only.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
