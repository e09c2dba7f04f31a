package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
)

// Login authenticates with username and password and stores the returned pair in the session.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", shared.ErrMissingCredentials)
	}

	var resp models.AuthResponse
	if err := c.Do(ctx, http.MethodPost, "/user/auth/login", req, &resp); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", shared.ErrInvalidCredentials, err)
		}
		return nil, err
	}

	if shared.Unquote(resp.AccessToken) == "" || shared.Unquote(resp.RefreshToken) == "" {
		return nil, fmt.Errorf("%w: login response missing tokens", shared.ErrAuthFailed)
	}

	if c.session != nil {
		if err := c.session.SetTokens(resp.AccessToken, resp.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to store tokens: %w", err)
		}
	}
	return &resp, nil
}

// Logout tells the server to end the session and clears local tokens.
//
// The server call is best-effort: it is not retried on 401 and its failure is only logged.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/user/auth/logout", nil, nil, maxRetryDepth); err != nil {
		c.logger.Warn("logout request failed", "error", err)
	}
	if c.session == nil {
		return nil
	}
	return c.session.ClearTokens()
}

// UserInfo returns the signed-in user's profile.
func (c *Client) UserInfo(ctx context.Context) (*models.UserInfo, error) {
	var info models.UserInfo
	if err := c.Do(ctx, http.MethodGet, "/user/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Questions returns one page of questions. A non-empty difficulty filters the list.
func (c *Client) Questions(ctx context.Context, page, size int, difficulty string) (*models.QuestionPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}

	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if difficulty != "" {
		q.Set("difficulty", difficulty)
	}

	var resp models.QuestionPage
	if err := c.Do(ctx, http.MethodGet, "/question?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Question returns a single question by id.
func (c *Client) Question(ctx context.Context, id string) (*models.Question, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: question id", shared.ErrMissingArgument)
	}

	var q models.Question
	if err := c.Do(ctx, http.MethodGet, "/question/"+url.PathEscape(id), nil, &q); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrQuestionNotFound, id, err)
		}
		return nil, err
	}
	return &q, nil
}

// Submit queues a solution for judging. The verdict arrives later over the push channel.
func (c *Client) Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error) {
	if req.QuestionID == "" {
		return nil, fmt.Errorf("%w: question id", shared.ErrMissingArgument)
	}
	if req.SQL == "" {
		return nil, fmt.Errorf("%w: sql", shared.ErrMissingArgument)
	}

	var resp models.SubmitResponse
	if err := c.Do(ctx, http.MethodPost, "/executor/submit", req, &resp); err != nil {
		return nil, err
	}
	if resp.SubmissionID == "" {
		return nil, fmt.Errorf("%w: submit response missing submissionId", shared.ErrAPIRequest)
	}
	return &resp, nil
}

// SubmitHistory returns the submissions made by userID, newest first.
func (c *Client) SubmitHistory(ctx context.Context, userID string) ([]models.Submission, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}

	var subs []models.Submission
	if err := c.Do(ctx, http.MethodGet, "/submit-history/user/"+url.PathEscape(userID), nil, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Submission returns a single submission by id.
func (c *Client) Submission(ctx context.Context, id string) (*models.Submission, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: submission id", shared.ErrMissingArgument)
	}

	var sub models.Submission
	if err := c.Do(ctx, http.MethodGet, "/submit-history/"+url.PathEscape(id), nil, &sub); err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", shared.ErrSubmissionNotFound, id, err)
		}
		return nil, err
	}
	return &sub, nil
}

// Leaderboard returns the top limit users.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	path := "/leaderboard"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var entries []models.LeaderboardEntry
	if err := c.Do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Contests returns upcoming, running and past contests.
func (c *Client) Contests(ctx context.Context) ([]models.Contest, error) {
	var contests []models.Contest
	if err := c.Do(ctx, http.MethodGet, "/contest", nil, &contests); err != nil {
		return nil, err
	}
	return contests, nil
}

func isNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
