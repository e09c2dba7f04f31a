package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultCookieMaxAge is seven days in seconds.
const DefaultCookieMaxAge = 604800

// CookieOptions are the attributes written with a cookie.
type CookieOptions struct {
	Domain   string
	Path     string
	MaxAge   int // seconds; <= 0 deletes the cookie
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieOptions returns the attributes used for session cookies on domain.
func DefaultCookieOptions(domain string, secure bool) CookieOptions {
	return CookieOptions{
		Domain:   domain,
		Path:     "/",
		MaxAge:   DefaultCookieMaxAge,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type cookieRecord struct {
	Value     string    `json:"value"`
	Domain    string    `json:"domain,omitempty"`
	Path      string    `json:"path"`
	MaxAge    int       `json:"max_age"`
	Secure    bool      `json:"secure,omitempty"`
	SameSite  string    `json:"same_site,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CookieJar is a file-backed cookie store.
//
// Writes hold an advisory lock on a sibling ".lock" file across load and save, so jars in
// different processes sharing one file do not lose each other's updates. An empty path keeps
// cookies in memory only.
type CookieJar struct {
	mu       sync.Mutex
	path     string
	defaults CookieOptions
	now      func() time.Time
	records  map[string]cookieRecord
}

// NewCookieJar creates a [CookieJar] persisted at path and written with defaults.
func NewCookieJar(path string, defaults CookieOptions) *CookieJar {
	if defaults.Path == "" {
		defaults.Path = "/"
	}
	return &CookieJar{
		path:     path,
		defaults: defaults,
		now:      time.Now,
		records:  make(map[string]cookieRecord),
	}
}

// SetClock replaces the clock used for expiry.
func (j *CookieJar) SetClock(now func() time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.now = now
}

// Path returns the backing file path, "" for an in-memory jar.
func (j *CookieJar) Path() string {
	return j.path
}

// Get returns the value of the named cookie, or "" when it is absent or expired.
func (j *CookieJar) Get(name string) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.load(); err != nil {
		return ""
	}
	rec, ok := j.records[name]
	if !ok || j.expired(rec) {
		return ""
	}
	return rec.Value
}

// Set writes the named cookie with the jar's default attributes.
func (j *CookieJar) Set(name, value string) error {
	return j.SetWithOptions(name, value, j.defaults)
}

// SetWithOptions writes the named cookie with explicit attributes.
// A non-positive MaxAge deletes the cookie.
func (j *CookieJar) SetWithOptions(name, value string, opts CookieOptions) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.path != "" {
		unlock, err := lockFile(j.path)
		if err != nil {
			return err
		}
		defer unlock()
	}

	if err := j.load(); err != nil {
		return err
	}

	if opts.MaxAge <= 0 {
		delete(j.records, name)
		return j.save()
	}

	if opts.Path == "" {
		opts.Path = "/"
	}

	j.records[name] = cookieRecord{
		Value:     value,
		Domain:    opts.Domain,
		Path:      opts.Path,
		MaxAge:    opts.MaxAge,
		Secure:    opts.Secure,
		SameSite:  sameSiteName(opts.SameSite),
		ExpiresAt: j.now().Add(time.Duration(opts.MaxAge) * time.Second),
	}
	return j.save()
}

// Delete removes the named cookie. Deleting an absent cookie is not an error.
func (j *CookieJar) Delete(name string) error {
	opts := j.defaults
	opts.MaxAge = 0
	return j.SetWithOptions(name, "", opts)
}

// Cookie returns the named cookie with its attributes, or nil when absent or expired.
func (j *CookieJar) Cookie(name string) *http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.load(); err != nil {
		return nil
	}
	rec, ok := j.records[name]
	if !ok || j.expired(rec) {
		return nil
	}
	return &http.Cookie{
		Name:     name,
		Value:    rec.Value,
		Domain:   rec.Domain,
		Path:     rec.Path,
		MaxAge:   rec.MaxAge,
		Secure:   rec.Secure,
		SameSite: parseSameSite(rec.SameSite),
	}
}

// Header renders the Set-Cookie value for the named cookie, or "" when it is absent.
func (j *CookieJar) Header(name string) string {
	c := j.Cookie(name)
	if c == nil {
		return ""
	}
	return c.String()
}

// Snapshot returns every unexpired cookie name and value.
func (j *CookieJar) Snapshot() (map[string]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.load(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(j.records))
	for name, rec := range j.records {
		if !j.expired(rec) {
			out[name] = rec.Value
		}
	}
	return out, nil
}

func (j *CookieJar) expired(rec cookieRecord) bool {
	return !j.now().Before(rec.ExpiresAt)
}

// load re-reads the backing file so writes from other processes are observed.
func (j *CookieJar) load() error {
	if j.path == "" {
		return nil
	}

	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		clear(j.records)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cookie file: %w", err)
	}

	records := make(map[string]cookieRecord)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to parse cookie file: %w", err)
		}
	}
	j.records = records
	return nil
}

func (j *CookieJar) save() error {
	if j.path == "" {
		return nil
	}

	live := maps.Clone(j.records)
	maps.DeleteFunc(live, func(_ string, rec cookieRecord) bool { return j.expired(rec) })

	data, err := json.MarshalIndent(live, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cookies-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cookie file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cookies: %w", err)
	}
	if err := os.Rename(tmp.Name(), j.path); err != nil {
		return fmt.Errorf("failed to replace cookie file: %w", err)
	}
	return nil
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

func parseSameSite(s string) http.SameSite {
	switch s {
	case "Lax":
		return http.SameSiteLaxMode
	case "Strict":
		return http.SameSiteStrictMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
