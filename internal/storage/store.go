package storage

// Store is a string key/value cache.
//
// Get returns "" with a nil error when the key is absent.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Snapshot() (map[string]string, error)
}

// Event describes a change to one key observed by a [Watcher].
type Event struct {
	Key      string
	OldValue string
	NewValue string
}

// Removed reports whether the key held a value before and holds none now.
func (e Event) Removed() bool {
	return e.OldValue != "" && e.NewValue == ""
}

// Diff returns one [Event] per key whose value differs between prev and next, ordered by key.
func Diff(prev, next map[string]string) []Event {
	keys := make(map[string]struct{}, len(prev)+len(next))
	for k := range prev {
		keys[k] = struct{}{}
	}
	for k := range next {
		keys[k] = struct{}{}
	}

	var events []Event
	for _, k := range sortedKeys(keys) {
		if prev[k] != next[k] {
			events = append(events, Event{Key: k, OldValue: prev[k], NewValue: next[k]})
		}
	}
	return events
}
