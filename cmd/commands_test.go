package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	tu "github.com/desertthunder/sqlgym/internal/testing"
)

type offlineDialer struct{}

func (offlineDialer) Dial(context.Context) (live.Conn, error) {
	return nil, errors.New("offline")
}

func quietLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func testConfig(t *testing.T, baseURL string) *shared.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := shared.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.WebURL = baseURL
	cfg.API.RateLimit = 0
	cfg.Push.URL = "ws://127.0.0.1:0/ws"
	cfg.Session.CookieDomain = "127.0.0.1"
	cfg.Session.CookieFile = filepath.Join(dir, "cookies.json")
	cfg.Database.Path = filepath.Join(dir, "sqlgym.db")
	return cfg
}

func runApp(t *testing.T, cfg *shared.Config, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:   cfg,
		Logger:   quietLogger(),
		Output:   out,
		Notifier: &tu.RecordingNotifier{},
		Dialer:   offlineDialer{},
	})
	err := runner.app().Run(context.Background(), append([]string{"sqlgym"}, args...))
	return out.String(), err
}

func signIn(t *testing.T, cfg *shared.Config) {
	t.Helper()
	runner := NewRunner(RunnerOpts{Config: cfg, Logger: quietLogger(), Output: &bytes.Buffer{}})
	defer runner.Close()

	if err := runner.open(); err != nil {
		t.Fatalf("failed to open session stack: %v", err)
	}
	if err := runner.manager.SetTokens("a1", "r1"); err != nil {
		t.Fatalf("failed to set tokens: %v", err)
	}
	if err := runner.manager.SetUserID("u1"); err != nil {
		t.Fatalf("failed to set user id: %v", err)
	}
}

func historyFixture() []models.Submission {
	day := func(d int) time.Time { return time.Date(2026, 1, d, 12, 0, 0, 0, time.UTC) }
	return []models.Submission{
		{ID: "sub-a", UserID: "u1", QuestionID: "q1", Status: models.StatusWrongAnswer, TestsPassed: 1, TestsTotal: 3, SubmittedAt: day(1)},
		{ID: "sub-b", UserID: "u1", QuestionID: "q2", Status: models.StatusAccepted, TestsPassed: 2, TestsTotal: 2, SubmittedAt: day(2)},
		{ID: "sub-c", UserID: "u1", QuestionID: "q1", Status: models.StatusAccepted, TestsPassed: 3, TestsTotal: 3, SubmittedAt: day(3)},
	}
}

func ids(subs []models.Submission) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// newFakeAPI serves the endpoints the commands use. Bearer a1 and c1 are accepted.
func newFakeAPI(t *testing.T) *httptest.Server {
	t.Helper()
	authorized := func(r *http.Request) bool {
		h := r.Header.Get("Authorization")
		return h == "Bearer a1" || h == "Bearer c1"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTestJSON(w, models.AuthResponse{Status: "ok", AccessToken: "a1", RefreshToken: "r1"})
	})
	mux.HandleFunc("POST /user/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /user/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer r1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTestJSON(w, models.AuthResponse{Status: "ok", AccessToken: "a1"})
	})
	mux.HandleFunc("GET /user/info", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTestJSON(w, models.UserInfo{ID: "u1", Username: "ada", Solved: 3})
	})
	mux.HandleFunc("GET /question", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.QuestionPage{
			Items: []models.Question{{ID: "q1", Title: "Select all users", Difficulty: "EASY"}},
			Total: 1,
			Page:  1,
			Size:  20,
		})
	})
	mux.HandleFunc("GET /question/q1", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, models.Question{ID: "q1", Title: "Select all users", Difficulty: "EASY", Description: "Return every user."})
	})
	mux.HandleFunc("GET /submit-history/user/u1", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeTestJSON(w, historyFixture())
	})
	mux.HandleFunc("POST /executor/submit", func(w http.ResponseWriter, r *http.Request) {
		var req models.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SQL == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeTestJSON(w, models.SubmitResponse{SubmissionID: "sub-" + req.QuestionID, Status: models.StatusPending})
	})
	mux.HandleFunc("GET /submit-history/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		status := models.StatusAccepted
		if id == "sub-q2" {
			status = models.StatusWrongAnswer
		}
		writeTestJSON(w, models.Submission{
			ID:              id,
			UserID:          "u1",
			QuestionID:      strings.TrimPrefix(id, "sub-"),
			Status:          status,
			ExecutionTimeMs: 12,
			TestsPassed:     1,
			TestsTotal:      2,
			SubmittedAt:     time.Now(),
		})
	})
	mux.HandleFunc("GET /leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeTestJSON(w, []models.LeaderboardEntry{
			{Rank: 1, UserID: "u1", Username: "ada", Solved: 3, Score: 300},
			{Rank: 2, UserID: "u2", Username: "grace", Solved: 2, Score: 200},
		})
	})
	mux.HandleFunc("GET /contest", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, []models.Contest{{ID: "c1", Title: "Winter Joins", Status: "UPCOMING"}})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAuthCommands(t *testing.T) {
	server := newFakeAPI(t)

	t.Run("login, status and logout", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		out, err := runApp(t, cfg, "auth", "login", "-u", "ada", "-p", "secret")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ Signed in as ada") {
			t.Errorf("unexpected login output %q", out)
		}
		tu.AssertFileExists(t, cfg.Session.CookieFile)

		out, err = runApp(t, cfg, "auth", "status", "--verify")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"✓ Signed in", "User: u1", "Verified: ada (3 solved)"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected status output to contain %q, got %q", want, out)
			}
		}

		out, err = runApp(t, cfg, "auth", "refresh")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ Access token renewed") {
			t.Errorf("unexpected refresh output %q", out)
		}

		out, err = runApp(t, cfg, "auth", "logout")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ Signed out") {
			t.Errorf("unexpected logout output %q", out)
		}

		out, err = runApp(t, cfg, "auth", "status")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✗ Not signed in") {
			t.Errorf("expected signed out status, got %q", out)
		}
	})

	t.Run("login with wrong password", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		_, err := runApp(t, cfg, "auth", "login", "-u", "ada", "-p", "nope")
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected invalid credentials, got %v", err)
		}
	})

	t.Run("login from a cURL command", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		curl := `curl 'https://sqlgym.dev/api/user/info' -b 'access_token=c1; refresh_token=c2'`
		out, err := runApp(t, cfg, "auth", "login", "--curl", curl)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ Signed in as ada") {
			t.Errorf("unexpected login output %q", out)
		}
	})

	t.Run("cURL without session cookies", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		_, err := runApp(t, cfg, "auth", "login", "--curl", `curl 'https://sqlgym.dev/api' -b 'theme=dark'`)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected missing credentials, got %v", err)
		}
	})

	t.Run("both cURL flags", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		_, err := runApp(t, cfg, "auth", "login", "--curl", "curl x", "--curl-file", "x.sh")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected invalid argument, got %v", err)
		}
	})

	t.Run("logout when signed out", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		out, err := runApp(t, cfg, "auth", "logout")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Not signed in") {
			t.Errorf("unexpected output %q", out)
		}
	})
}

func TestSetupDatabase(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	configPath := filepath.Join(t.TempDir(), "config.toml")

	out, err := runApp(t, cfg, "setup", "database", "--config", configPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "✓ Database ready at "+cfg.Database.Path) {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(out, "schema version 0") {
		t.Errorf("expected schema version in output, got %q", out)
	}
	tu.AssertFileExists(t, configPath)
	tu.AssertFileExists(t, cfg.Database.Path)
}

func TestQuestionsCommands(t *testing.T) {
	server := newFakeAPI(t)
	cfg := testConfig(t, server.URL)
	signIn(t, cfg)

	t.Run("list", func(t *testing.T) {
		out, err := runApp(t, cfg, "questions", "list", "--format", "csv")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "q1,Select all users,EASY") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("show", func(t *testing.T) {
		out, err := runApp(t, cfg, "q", "show", "q1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "Select all users") || !strings.Contains(out, "Return every user.") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("show without id", func(t *testing.T) {
		_, err := runApp(t, cfg, "questions", "show")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := runApp(t, cfg, "questions", "list", "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected invalid flag, got %v", err)
		}
	})
}

func TestHistoryCommand(t *testing.T) {
	server := newFakeAPI(t)

	t.Run("requires a session", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		_, err := runApp(t, cfg, "history")
		if !shared.IsAuthError(err) {
			t.Errorf("expected auth error, got %v", err)
		}
	})

	t.Run("fetches, caches and filters", func(t *testing.T) {
		cfg := testConfig(t, server.URL)
		signIn(t, cfg)

		out, err := runApp(t, cfg, "history", "--format", "csv")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !(strings.Index(out, "sub-c") < strings.Index(out, "sub-b") && strings.Index(out, "sub-b") < strings.Index(out, "sub-a")) {
			t.Errorf("expected newest first, got %q", out)
		}

		out, err = runApp(t, cfg, "history", "--cached", "--question", "q1", "--format", "csv")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "sub-a") || !strings.Contains(out, "sub-c") || strings.Contains(out, "sub-b") {
			t.Errorf("expected cached q1 submissions only, got %q", out)
		}

		out, err = runApp(t, cfg, "history", "--limit", "1", "--format", "csv")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "sub-c") || strings.Contains(out, "sub-a") {
			t.Errorf("expected only the newest submission, got %q", out)
		}
	})

	t.Run("writes to a file", func(t *testing.T) {
		cfg := testConfig(t, server.URL)
		signIn(t, cfg)
		path := filepath.Join(t.TempDir(), "history.md")

		out, err := runApp(t, cfg, "history", "-o", path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ Wrote 3 submissions to "+path) {
			t.Errorf("unexpected output %q", out)
		}

		content := tu.MustReadFile(t, path)
		if !strings.Contains(content, "| sub-c |") {
			t.Errorf("expected markdown table, got %q", content)
		}
	})
}

func TestSubmitCommand(t *testing.T) {
	server := newFakeAPI(t)

	t.Run("polls for a verdict while offline", func(t *testing.T) {
		cfg := testConfig(t, server.URL)
		signIn(t, cfg)
		path := filepath.Join(t.TempDir(), "q1.sql")
		os.WriteFile(path, []byte("SELECT * FROM users;"), 0644)

		out, err := runApp(t, cfg, "submit", "--file", path, "--json", "--timeout", "10s", "q1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var sub models.Submission
		if err := json.Unmarshal([]byte(out), &sub); err != nil {
			t.Fatalf("expected JSON output, got %q: %v", out, err)
		}
		if sub.ID != "sub-q1" || sub.Status != models.StatusAccepted {
			t.Errorf("unexpected submission %+v", sub)
		}

		out, err = runApp(t, cfg, "history", "--cached", "--format", "csv")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "sub-q1") || !strings.Contains(out, "accepted") {
			t.Errorf("expected judged submission in cache, got %q", out)
		}
	})

	t.Run("submits a directory", func(t *testing.T) {
		cfg := testConfig(t, server.URL)
		signIn(t, cfg)
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "q1.sql"), []byte("SELECT 1;"), 0644)
		os.WriteFile(filepath.Join(dir, "q2.sql"), []byte("SELECT 2;"), 0644)

		out, err := runApp(t, cfg, "submit", "--dir", dir, "--timeout", "10s")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(out, "✓ 1 accepted, 1 rejected, 0 failed") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("missing question", func(t *testing.T) {
		cfg := testConfig(t, server.URL)

		_, err := runApp(t, cfg, "submit")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected missing argument, got %v", err)
		}
	})
}

func TestLeaderboardAndContests(t *testing.T) {
	server := newFakeAPI(t)
	cfg := testConfig(t, server.URL)
	signIn(t, cfg)

	out, err := runApp(t, cfg, "lb", "--limit", "2", "--format", "csv")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "1,ada,3,300") || !strings.Contains(out, "2,grace,2,200") {
		t.Errorf("unexpected leaderboard %q", out)
	}

	out, err = runApp(t, cfg, "contests", "--format", "csv")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "c1,Winter Joins,UPCOMING") {
		t.Errorf("unexpected contests %q", out)
	}
}
