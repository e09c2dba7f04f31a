package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/api"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/repositories"
	"github.com/desertthunder/sqlgym/internal/session"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/storage"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The session stack (database, cookie jar, session manager and REST client) is opened on first use
// so that commands such as `setup database` run without it.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	notifier   session.Notifier
	dialer     live.Dialer

	once    sync.Once
	openErr error
	db      *sql.DB
	store   *storage.SQLiteStore
	jar     *storage.CookieJar
	manager *session.Manager
	api     *api.Client
	repo    *repositories.SubmissionRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Notifier   session.Notifier // defaults to a [session.LogNotifier] writing to Output
	Dialer     live.Dialer      // defaults to a WebSocket dialer for the configured push URL
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		notifier:   opts.Notifier,
		dialer:     opts.Dialer,
	}
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
// It must be called before the session stack is opened.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, questionsCommand, submitCommand, historyCommand, leaderboardCommand, contestsCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// app returns the root command.
func (r *Runner) app() *cli.Command {
	return &cli.Command{
		Name:     "sqlgym",
		Usage:    "Practice SQL from the terminal",
		Version:  "0.3.0",
		Commands: r.register(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Log debug output",
				Sources: cli.EnvVars("SQLGYM_DEBUG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("verbose") {
				shared.SetLogLevel(r.logger, log.DebugLevel)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return r.Close()
		},
	}
}

// open builds the session stack once.
func (r *Runner) open() error {
	r.once.Do(func() { r.openErr = r.openSession() })
	return r.openErr
}

func (r *Runner) openSession() error {
	cfg := r.config

	dbPath := shared.ExpandPath(cfg.Database.Path)
	if err := ensureDir(dbPath); err != nil {
		return err
	}
	db, err := shared.NewDatabase(dbPath)
	if err != nil {
		return err
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	cookiePath := shared.ExpandPath(cfg.Session.CookieFile)
	if err := ensureDir(cookiePath); err != nil {
		db.Close()
		return err
	}
	cookieOpts := storage.DefaultCookieOptions(cfg.Session.CookieDomain, cfg.API.SecureOrigin())
	if cfg.Session.CookiePath != "" {
		cookieOpts.Path = cfg.Session.CookiePath
	}
	if cfg.Session.CookieMaxAge > 0 {
		cookieOpts.MaxAge = cfg.Session.CookieMaxAge
	}

	notifier := r.notifier
	if notifier == nil {
		notifier = session.NewLogNotifier(r.logger, r.output)
	}

	store := storage.NewSQLiteStore(db)
	jar := storage.NewCookieJar(cookiePath, cookieOpts)
	manager, err := session.NewManager(session.Options{
		Store:         store,
		Cookies:       jar,
		Renewer:       session.NewHTTPRenewer(cfg.API.BaseURL, r.httpClient),
		Notifier:      notifier,
		Logger:        r.logger,
		SweepInterval: cfg.Session.SweepInterval,
	})
	if err != nil {
		db.Close()
		return err
	}
	if err := manager.InitializeFromCookies(); err != nil {
		r.logger.Warn("failed to reconcile stored tokens", "error", err)
	}

	r.db = db
	r.store = store
	r.jar = jar
	r.manager = manager
	r.repo = repositories.NewSubmissionRepository(db)
	r.api = api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: r.httpClient,
		Session:    manager,
		Logger:     r.logger,
		RateLimit:  cfg.API.RateLimit,
		Timeout:    cfg.API.RequestTimeout,
	})
	return nil
}

// Close releases the session stack.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	db := r.db
	r.db = nil
	return db.Close()
}

// requireSession opens the session stack and fails with [shared.ErrNotAuthenticated] without a valid token pair.
func (r *Runner) requireSession() error {
	if err := r.open(); err != nil {
		return err
	}
	if !r.manager.HasValidTokens() {
		return fmt.Errorf("%w: run `sqlgym auth login` first", shared.ErrNotAuthenticated)
	}
	return nil
}

// userID returns the signed-in user's id, fetching and caching the profile when unknown.
func (r *Runner) userID(ctx context.Context) (string, error) {
	if id := r.manager.UserID(); id != "" {
		return id, nil
	}

	info, err := r.api.UserInfo(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load user profile: %w", err)
	}
	if err := r.rememberUser(info.ID, info); err != nil {
		r.logger.Warn("failed to cache user profile", "error", err)
	}
	return info.ID, nil
}

func (r *Runner) rememberUser(id string, info any) error {
	if err := r.manager.SetUserID(id); err != nil {
		return err
	}
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.store.Set(session.UserInfoKey, string(data))
}

// newLiveClient creates a push client authenticated by the session manager.
func (r *Runner) newLiveClient() *live.Client {
	dialer := r.dialer
	if dialer == nil {
		ws := live.NewWebSocketDialer(r.config.Push.URL)
		ws.HTTPClient = r.httpClient
		dialer = ws
	}
	return live.NewClient(live.Options{
		Dialer:               dialer,
		URL:                  r.config.Push.URL,
		Tokens:               r.manager,
		Logger:               r.logger,
		ReconnectDelay:       r.config.Push.ReconnectDelay,
		MaxReconnectDelay:    r.config.Push.MaxReconnectDelay,
		MaxReconnectAttempts: r.config.Push.MaxReconnectAttempts,
	})
}

// watchSession runs the cross-process watchers on the database and cookie file until ctx is done.
func (r *Runner) watchSession(ctx context.Context) {
	watchers := []*storage.Watcher{
		storage.NewWatcher(shared.ExpandPath(r.config.Database.Path), r.store.Snapshot, r.logger),
		storage.NewWatcher(r.jar.Path(), r.jar.Snapshot, r.logger),
	}
	for _, w := range watchers {
		if err := w.Prime(); err != nil {
			r.logger.Warn("failed to read storage snapshot", "error", err)
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				r.logger.Warn("storage watcher stopped", "error", err)
			}
		}()
		go r.manager.WatchStorage(ctx, w.Events())
	}
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
