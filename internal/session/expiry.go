package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/storage"
)

// Expire ends the session: tokens are always cleared, and the [Notifier] is told once per session.
//
// The notification latch is re-armed when a new pair is stored or observed in shared storage, so
// the manager's own clearing, which other watchers observe as removals, cannot produce a second
// redirect while a later session still gets one.
func (m *Manager) Expire(reason error) {
	m.mu.Lock()
	err := m.clearLocked()
	first := m.expired.CompareAndSwap(false, true)
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to clear tokens", "error", err)
	}
	if !first {
		m.logger.Debug("session already expired", "reason", reason)
		return
	}

	m.logger.Warn("session expired", "reason", reason)
	m.notifier.SessionExpired(reason)
	m.notifier.RedirectToLogin()
}

// rearm clears the expiry latch when both tokens are present again, e.g. after another process signed in.
func (m *Manager) rearm() {
	if !m.expired.Load() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		local, _ := m.store.Get(key)
		if shared.Unquote(local) == "" && shared.Unquote(m.cookies.Get(key)) == "" {
			return
		}
	}
	if m.expired.CompareAndSwap(true, false) {
		m.logger.Info("new session observed in shared storage")
	}
}

// Expired reports whether the session has been expired since tokens were last stored.
func (m *Manager) Expired() bool {
	return m.expired.Load()
}

// Sweep checks token validity immediately and then every sweep interval until ctx is done.
func (m *Manager) Sweep(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		if !m.HasValidTokens() {
			m.Expire(shared.ErrAuthExpired)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// HandleStorageEvent expires the session when another process removes either token.
// A token written by another process re-arms expiry notification.
func (m *Manager) HandleStorageEvent(ev storage.Event) {
	if ev.Key != AccessTokenKey && ev.Key != RefreshTokenKey {
		return
	}
	if !ev.Removed() {
		m.rearm()
		return
	}

	m.logger.Info("token removed by another process", "key", ev.Key)
	m.Expire(fmt.Errorf("%w: %s removed", shared.ErrAuthExpired, ev.Key))
}

// WatchStorage applies [Manager.HandleStorageEvent] to each event until ctx is done or events is closed.
func (m *Manager) WatchStorage(ctx context.Context, events <-chan storage.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.HandleStorageEvent(ev)
		}
	}
}

// LogNotifier is the terminal [Notifier]: it logs the reason and prints a hint to sign in again.
type LogNotifier struct {
	logger *log.Logger
	out    io.Writer
}

// NewLogNotifier creates a [LogNotifier]. Hints go to out, which defaults to [os.Stderr].
func NewLogNotifier(logger *log.Logger, out io.Writer) *LogNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &LogNotifier{logger: logger, out: out}
}

func (n *LogNotifier) SessionExpired(reason error) {
	n.logger.Error("session expired", "reason", reason)
}

func (n *LogNotifier) RedirectToLogin() {
	fmt.Fprintln(n.out, "Your session has expired. Run `sqlgym auth login` to sign in again.")
}
