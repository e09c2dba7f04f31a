package shared

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestUnquote(t *testing.T) {
	tc := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain value", in: "tok123", want: "tok123"},
		{name: "quoted value", in: `"tok123"`, want: "tok123"},
		{name: "surrounding whitespace", in: "  tok123 \n", want: "tok123"},
		{name: "quoted with inner whitespace", in: `" tok123 "`, want: "tok123"},
		{name: "lone quote", in: `"`, want: `"`},
		{name: "empty quotes", in: `""`, want: ""},
		{name: "blank", in: "   ", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Unquote(tt.in); got != tt.want {
				t.Errorf("Unquote(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatMillis(t *testing.T) {
	if got := FormatMillis(42); got != "42ms" {
		t.Errorf("expected 42ms, got %s", got)
	}
	if got := FormatMillis(1250); got != "1.25s" {
		t.Errorf("expected 1.25s, got %s", got)
	}
}

func TestIsAuthError(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want bool
	}{
		{name: "no refresh token", err: ErrNoRefreshToken, want: true},
		{name: "wrapped refresh failure", err: fmt.Errorf("%w: status 500", ErrRefreshFailed), want: true},
		{name: "expired", err: ErrAuthExpired, want: true},
		{name: "transport", err: ErrTransport, want: false},
		{name: "other", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestLoggers(t *testing.T) {
	t.Run("NewLogger writes to the given writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := WithLogger(NewLogger(&buf), "component", "test")
		logger.Info("hello")

		if !strings.Contains(buf.String(), "hello") || !strings.Contains(buf.String(), "component=test") {
			t.Errorf("unexpected log output: %q", buf.String())
		}
	})

	t.Run("NewFileLogger creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dir", "sqlgym.log")
		logger, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger() error = %v", err)
		}
		logger.Info("written")
	})

	t.Run("GenerateID is unique", func(t *testing.T) {
		if GenerateID() == GenerateID() {
			t.Error("expected distinct ids")
		}
	})
}

func TestDataSource(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{":memory:", ":memory:"},
		{"/tmp/sqlgym.db", "/tmp/sqlgym.db?_busy_timeout=5000"},
		{"/tmp/sqlgym.db?mode=ro", "/tmp/sqlgym.db?mode=ro"},
	}
	for _, tt := range tests {
		if got := dataSource(tt.path); got != tt.want {
			t.Errorf("dataSource(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
