package main

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/session"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/submissions"
	"github.com/desertthunder/sqlgym/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch runs the TUI that follows the user's submissions and verdicts live.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if path := cmd.String("log-file"); path != "" {
		logger, err := shared.NewFileLogger(shared.ExpandPath(path))
		if err != nil {
			return err
		}
		if cmd.Bool("verbose") {
			shared.SetLogLevel(logger, log.DebugLevel)
		}
		r.SetLogger(logger)
	}

	next := r.notifier
	if next == nil {
		next = session.NewLogNotifier(r.logger, r.output)
	}
	relay := &expiryRelay{next: next}
	r.notifier = relay

	if err := r.requireSession(); err != nil {
		return err
	}
	uid, err := r.userID(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := submissions.NewTracker(r.repo, r.logger)
	if cached, err := r.repo.ListByUser(uid, 0); err != nil {
		r.logger.Warn("failed to load cached history", "error", err)
	} else {
		tracker.Load(cached)
	}

	model := ui.NewWatchModel(ctx, uid, r.api, tracker)
	relay.attach(model.HandleExpired)

	client := r.newLiveClient()
	client.OnStateChange(model.HandleState)
	if err := client.Subscribe(live.TopicForUser(uid), model.HandleVerdict); err != nil {
		return err
	}
	defer client.Disconnect()

	go func() {
		if err := client.Connect(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("live updates unavailable", "error", err)
		}
	}()
	r.watchSession(ctx)
	go r.manager.Sweep(ctx)

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return err
	}

	relay.flush()
	return model.Expired()
}

// expiryRelay forwards expiry to the TUI and holds the sign-in hint until the terminal is released.
type expiryRelay struct {
	mu      sync.Mutex
	next    session.Notifier
	hook    func(error)
	pending bool
}

func (e *expiryRelay) attach(hook func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hook = hook
}

func (e *expiryRelay) SessionExpired(reason error) {
	e.mu.Lock()
	hook := e.hook
	e.mu.Unlock()

	e.next.SessionExpired(reason)
	if hook != nil {
		hook(reason)
	}
}

func (e *expiryRelay) RedirectToLogin() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = true
}

// flush delivers a held sign-in hint.
func (e *expiryRelay) flush() {
	e.mu.Lock()
	pending := e.pending
	e.pending = false
	e.mu.Unlock()

	if pending {
		e.next.RedirectToLogin()
	}
}
