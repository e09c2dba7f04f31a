package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/session"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/storage"
	tu "github.com/desertthunder/sqlgym/internal/testing"
)

func newPlatform(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "ada" || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"message": "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(models.AuthResponse{Status: "success", AccessToken: "acc", RefreshToken: "ref"})
	})
	mux.HandleFunc("POST /user/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /question/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "q1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(models.Question{ID: "q1", Title: "Select All", Difficulty: "easy"})
	})
	mux.HandleFunc("POST /executor/submit", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer acc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req models.SubmitRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.SQL == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(models.SubmitResponse{SubmissionID: "s1", Status: models.StatusPending})
	})
	mux.HandleFunc("GET /submit-history/user/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Submission{{ID: "s1", UserID: r.PathValue("id"), Status: models.StatusAccepted}})
	})
	mux.HandleFunc("GET /submit-history/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "no such submission"})
	})
	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("expected limit=2, got %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode([]models.LeaderboardEntry{{Rank: 1, Username: "ada"}, {Rank: 2, Username: "bob"}})
	})
	mux.HandleFunc("GET /contest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.Contest{{ID: "c1", Title: "Weekly 1"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEndpoints(t *testing.T) {
	srv := newPlatform(t)
	ctx := context.Background()

	t.Run("Login stores tokens", func(t *testing.T) {
		m, _ := newManager(t, srv.URL)
		c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: shared.NewLogger(io.Discard)})

		resp, err := c.Login(ctx, models.LoginRequest{Username: "ada", Password: "secret", Remember: true})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.AccessToken != "acc" {
			t.Errorf("unexpected response: %+v", resp)
		}
		if m.AccessToken() != "acc" || m.RefreshToken() != "ref" {
			t.Errorf("expected tokens stored, got %q/%q", m.AccessToken(), m.RefreshToken())
		}
	})

	t.Run("Login with bad credentials", func(t *testing.T) {
		m, _ := newManager(t, srv.URL)
		c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: shared.NewLogger(io.Discard)})

		_, err := c.Login(ctx, models.LoginRequest{Username: "ada", Password: "nope"})
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
		if m.HasValidTokens() {
			t.Error("expected no tokens after failed login")
		}
	})

	t.Run("Login requires credentials", func(t *testing.T) {
		c := NewClient(Options{BaseURL: srv.URL, Logger: shared.NewLogger(io.Discard)})
		if _, err := c.Login(ctx, models.LoginRequest{}); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Logout clears tokens even when server fails", func(t *testing.T) {
		m, notifier := newManager(t, srv.URL)
		m.SetTokens("acc", "ref")
		c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: shared.NewLogger(io.Discard)})

		if err := c.Logout(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if m.HasValidTokens() {
			t.Error("expected tokens cleared")
		}
		if notifier.Redirects() != 0 {
			t.Error("logout should not be reported as an expired session")
		}
	})

	t.Run("Question", func(t *testing.T) {
		c := NewClient(Options{BaseURL: srv.URL, Logger: shared.NewLogger(io.Discard)})
		q, err := c.Question(ctx, "q1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if q.Title != "Select All" {
			t.Errorf("unexpected question: %+v", q)
		}

		_, err = c.Question(ctx, "missing")
		if !errors.Is(err, shared.ErrQuestionNotFound) {
			t.Errorf("expected ErrQuestionNotFound, got %v", err)
		}
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.Status != http.StatusNotFound {
			t.Errorf("expected wrapped 404 HTTPError, got %v", err)
		}

		if _, err := c.Question(ctx, ""); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Submit", func(t *testing.T) {
		m, _ := newManager(t, srv.URL)
		m.SetTokens("acc", "ref")
		c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: shared.NewLogger(io.Discard)})

		resp, err := c.Submit(ctx, models.SubmitRequest{QuestionID: "q1", SQL: "SELECT 1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.SubmissionID != "s1" || resp.Status != models.StatusPending {
			t.Errorf("unexpected response: %+v", resp)
		}

		if _, err := c.Submit(ctx, models.SubmitRequest{QuestionID: "q1"}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("SubmitHistory and Submission", func(t *testing.T) {
		m, _ := newManager(t, srv.URL)
		m.SetTokens("acc", "ref")
		c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: shared.NewLogger(io.Discard)})

		subs, err := c.SubmitHistory(ctx, "u1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(subs) != 1 || subs[0].UserID != "u1" {
			t.Errorf("unexpected history: %+v", subs)
		}

		_, err = c.Submission(ctx, "s9")
		if !errors.Is(err, shared.ErrSubmissionNotFound) {
			t.Errorf("expected ErrSubmissionNotFound, got %v", err)
		}
	})

	t.Run("Leaderboard and Contests", func(t *testing.T) {
		c := NewClient(Options{BaseURL: srv.URL, Logger: shared.NewLogger(io.Discard)})

		entries, err := c.Leaderboard(ctx, 2)
		if err != nil || len(entries) != 2 {
			t.Fatalf("unexpected leaderboard: %v %v", entries, err)
		}

		contests, err := c.Contests(ctx)
		if err != nil || len(contests) != 1 || contests[0].ID != "c1" {
			t.Fatalf("unexpected contests: %v %v", contests, err)
		}
	})
}

// TestLoginThenRemovalElsewhere logs in, then removes only the access token cookie from another
// process's jar. The watching process must clear its tokens and redirect to login exactly once.
func TestLoginThenRemovalElsewhere(t *testing.T) {
	srv := newPlatform(t)
	cookiePath := filepath.Join(t.TempDir(), "cookies.json")
	opts := storage.DefaultCookieOptions(".sqlgym.dev", false)
	logger := shared.NewLogger(io.Discard)

	jar := storage.NewCookieJar(cookiePath, opts)
	notifier := &tu.RecordingNotifier{}
	m, err := session.NewManager(session.Options{
		Store:    storage.NewMemoryStore(),
		Cookies:  jar,
		Renewer:  session.NewHTTPRenewer(srv.URL, nil),
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		t.Fatal(err)
	}

	c := NewClient(Options{BaseURL: srv.URL, Session: m, Logger: logger})
	if _, err := c.Login(context.Background(), models.LoginRequest{Username: "ada", Password: "secret"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !m.HasValidTokens() {
		t.Fatal("expected valid tokens after login")
	}

	watcher := storage.NewWatcher(cookiePath, jar.Snapshot, logger)
	if err := watcher.Prime(); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Run(ctx)
	go m.WatchStorage(ctx, watcher.Events())
	time.Sleep(100 * time.Millisecond)

	other := storage.NewCookieJar(cookiePath, opts)
	if err := other.Delete(session.AccessTokenKey); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for notifier.Redirects() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	if got := notifier.Redirects(); got != 1 {
		t.Fatalf("expected exactly 1 redirect, got %d", got)
	}
	if m.HasValidTokens() {
		t.Error("expected tokens cleared")
	}
}
