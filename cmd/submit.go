package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/submissions"
	"github.com/desertthunder/sqlgym/internal/tasks"
	"github.com/urfave/cli/v3"
)

const defaultVerdictTimeout = 2 * time.Minute

// Submit sends one solution (or a directory of them) and waits for the verdicts.
//
// Verdicts arrive over the push channel; while it is down the judge falls back to polling.
func (r *Runner) Submit(ctx context.Context, cmd *cli.Command) error {
	questionID := cmd.StringArg("question")
	dir := cmd.String("dir")

	var (
		solutions map[string]string
		sql       string
		err       error
	)
	switch {
	case dir != "":
		if solutions, err = readSolutions(dir); err != nil {
			return err
		}
	case questionID == "":
		return fmt.Errorf("%w: question id (or --dir)", shared.ErrMissingArgument)
	default:
		if sql, err = readSolution(cmd.String("file"), os.Stdin); err != nil {
			return err
		}
	}

	if err := r.requireSession(); err != nil {
		return err
	}
	uid, err := r.userID(ctx)
	if err != nil {
		return err
	}

	tracker := submissions.NewTracker(r.repo, r.logger)
	client := r.newLiveClient()
	if err := client.Connect(ctx); err != nil {
		r.logger.Warn("live updates unavailable, polling instead", "error", err)
	}
	defer client.Disconnect()
	if err := client.Subscribe(live.TopicForUser(uid), tracker.Handle); err != nil {
		return err
	}

	judge, err := tasks.NewJudge(tasks.JudgeOptions{
		API:     r.api,
		Tracker: tracker,
		Live:    client,
		UserID:  uid,
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}

	asJSON := cmd.Bool("json")
	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if !asJSON {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	timeout := cmd.Duration("timeout")
	if solutions != nil {
		timeout *= time.Duration(max(len(solutions), 1))
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if solutions != nil {
		result, err := judge.SubmitBatch(ctx, progress, solutions, tasks.BatchOpts{
			NumWorkers: cmd.Int("workers"),
			RateLimit:  r.config.API.RateLimit,
			Mock:       cmd.Bool("mock"),
		})
		close(progress)
		wg.Wait()
		if result != nil {
			if asJSON {
				if jsonErr := r.writeJSON(result, true); jsonErr != nil {
					return jsonErr
				}
			} else {
				r.writePlain("\n✓ %d accepted, %d rejected, %d failed\n", result.Accepted, result.Rejected, result.Failed)
			}
		}
		return err
	}

	sub, err := judge.SubmitAndWait(ctx, progress, models.SubmitRequest{
		QuestionID: questionID,
		SQL:        sql,
		Mock:       cmd.Bool("mock"),
	})
	close(progress)
	wg.Wait()
	if err != nil {
		return err
	}

	if asJSON {
		return r.writeJSON(sub, true)
	}
	return nil
}

// readSolution reads SQL from path, or from stdin when path is empty or "-".
func readSolution(path string, stdin io.Reader) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(shared.ExpandPath(path))
	}
	if err != nil {
		return "", fmt.Errorf("failed to read solution: %w", err)
	}

	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", fmt.Errorf("%w: solution is empty", shared.ErrMissingArgument)
	}
	return sql, nil
}

// readSolutions loads every *.sql file in dir, keyed by question id (the file's base name).
func readSolutions(dir string) (map[string]string, error) {
	paths, err := filepath.Glob(filepath.Join(shared.ExpandPath(dir), "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no .sql files in %s", shared.ErrMissingArgument, dir)
	}

	solutions := make(map[string]string, len(paths))
	for _, path := range paths {
		sql, err := readSolution(path, nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		solutions[strings.TrimSuffix(filepath.Base(path), ".sql")] = sql
	}
	return solutions, nil
}
