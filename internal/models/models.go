package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the outcome classification of a submission.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusAccepted          Status = "ACCEPTED"
	StatusWrongAnswer       Status = "WRONG_ANSWER"
	StatusTimeLimitExceeded Status = "TIME_LIMIT_EXCEEDED"
	StatusCompileError      Status = "COMPILE_ERROR"
)

// IsFinal reports whether the status is a judging verdict rather than [StatusPending].
func (s Status) IsFinal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded, StatusCompileError:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return strings.ReplaceAll(strings.ToLower(string(s)), "_", " ")
}

// Verdict is the push message carrying a submission's judging result.
type Verdict struct {
	SubmissionID    string `json:"submissionId"`
	Status          Status `json:"status"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	TestsPassed     int    `json:"testsPassed"`
	TestsTotal      int    `json:"testsTotal"`
}

// Validate checks that a decoded verdict names a submission and carries a final status.
func (v Verdict) Validate() error {
	if strings.TrimSpace(v.SubmissionID) == "" {
		return fmt.Errorf("missing submissionId")
	}
	if !v.Status.IsFinal() {
		return fmt.Errorf("unknown status %q", v.Status)
	}
	if v.TestsPassed < 0 || v.TestsTotal < 0 || v.TestsPassed > v.TestsTotal {
		return fmt.Errorf("invalid test counts %d/%d", v.TestsPassed, v.TestsTotal)
	}
	return nil
}

// LoginRequest is the body of POST /user/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// AuthResponse is returned by the login and refresh endpoints. RefreshToken is optional on refresh.
type AuthResponse struct {
	Status       string `json:"status"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// UserInfo is the profile returned by GET /user/info.
type UserInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	Solved      int    `json:"solved"`
	Rank        int    `json:"rank,omitempty"`
}

// Question is a practice problem.
type Question struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Difficulty  string   `json:"difficulty"`
	Description string   `json:"description,omitempty"`
	Schema      string   `json:"schema,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Acceptance  float64  `json:"acceptance,omitempty"`
}

// QuestionPage is one page of GET /question.
type QuestionPage struct {
	Items []Question `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
}

// SubmitRequest is the body of POST /executor/submit. Mock runs are executed without judging.
type SubmitRequest struct {
	QuestionID string `json:"questionId"`
	SQL        string `json:"sql"`
	Mock       bool   `json:"mock,omitempty"`
}

// SubmitResponse acknowledges a queued submission.
type SubmitResponse struct {
	SubmissionID string `json:"submissionId"`
	Status       Status `json:"status"`
}

// Submission is one entry of a user's submission history.
type Submission struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	QuestionID      string    `json:"questionId"`
	Status          Status    `json:"status"`
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	TestsPassed     int       `json:"testsPassed"`
	TestsTotal      int       `json:"testsTotal"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// WithVerdict returns a copy of s with the verdict's result applied.
func (s Submission) WithVerdict(v Verdict) Submission {
	s.Status = v.Status
	s.ExecutionTimeMs = v.ExecutionTimeMs
	s.TestsPassed = v.TestsPassed
	s.TestsTotal = v.TestsTotal
	return s
}

// LeaderboardEntry is one row of GET /leaderboard.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Solved   int    `json:"solved"`
	Score    int    `json:"score"`
}

// Contest is an entry of GET /contest.
type Contest struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
	Status   string    `json:"status"`
}
