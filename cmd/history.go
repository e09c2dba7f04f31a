package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/sqlgym/internal/formatter"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/urfave/cli/v3"
)

// History lists the user's submissions, newest first.
//
// The server's history is written through to the local cache; --cached reads only the cache.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.requireSession(); err != nil {
		return err
	}
	uid, err := r.userID(ctx)
	if err != nil {
		return err
	}

	limit := cmd.Int("limit")
	questionID := cmd.String("question")

	var subs []models.Submission
	if cmd.Bool("cached") {
		subs, err = r.repo.List(map[string]any{
			"user_id":     uid,
			"question_id": questionID,
			"limit":       limit,
		})
		if err != nil {
			return err
		}
	} else {
		if subs, err = r.fetchHistory(ctx, uid); err != nil {
			return err
		}
		subs = filterHistory(subs, questionID, limit)
	}

	if path := cmd.String("output"); path != "" {
		if !cmd.IsSet("format") {
			format = ""
		}
		path = shared.ExpandPath(path)
		if err := formatter.WriteFile(path, format, subs); err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d submissions to %s\n", len(subs), path)
	}
	return formatter.Render(r.output, format, subs)
}

// fetchHistory loads the server's history and refreshes the local cache with it.
func (r *Runner) fetchHistory(ctx context.Context, uid string) ([]models.Submission, error) {
	subs, err := r.api.SubmitHistory(ctx, uid)
	if err != nil {
		return nil, err
	}

	for _, sub := range subs {
		if sub.UserID == "" {
			sub.UserID = uid
		}
		if err := r.repo.Upsert(sub); err != nil {
			r.logger.Warn("failed to cache submission", "id", sub.ID, "error", err)
		}
	}
	return subs, nil
}

// filterHistory keeps submissions for questionID (all when empty), newest first, up to limit (all when 0).
func filterHistory(subs []models.Submission, questionID string, limit int) []models.Submission {
	out := make([]models.Submission, 0, len(subs))
	for _, sub := range subs {
		if questionID != "" && sub.QuestionID != questionID {
			continue
		}
		out = append(out, sub)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortNewestFirst(subs []models.Submission) {
	slices.SortStableFunc(subs, func(a, b models.Submission) int {
		return b.SubmittedAt.Compare(a.SubmittedAt)
	})
}

// Leaderboard prints the global ranking.
func (r *Runner) Leaderboard(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	limit := cmd.Int("limit")
	if limit < 0 {
		return fmt.Errorf("%w: --limit must not be negative", shared.ErrInvalidFlag)
	}
	entries, err := r.api.Leaderboard(ctx, limit)
	if err != nil {
		return err
	}
	return formatter.Render(r.output, format, entries)
}

// Contests prints the contest list.
func (r *Runner) Contests(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	contests, err := r.api.Contests(ctx)
	if err != nil {
		return err
	}
	return formatter.Render(r.output, format, contests)
}
