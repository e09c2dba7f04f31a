package tasks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/desertthunder/sqlgym/internal/models"
	"golang.org/x/time/rate"
)

// BatchOpts contains configuration for judging several solutions at once.
type BatchOpts struct {
	NumWorkers int     // Concurrent workers (default: 3)
	RateLimit  float64 // Submissions per second (default: 1)
	Mock       bool    // Run without judging
}

// BatchItemResult is the outcome of one solution in a batch.
type BatchItemResult struct {
	QuestionID string
	Submission *models.Submission
	Error      error
}

// BatchResult summarizes a batch run. Results are in completion order.
type BatchResult struct {
	Results  []BatchItemResult
	Accepted int
	Rejected int
	Failed   int
}

// SubmitBatch judges each solution (question id → SQL) with a bounded worker pool.
//
// Submissions are rate limited to respect the judge's queue. A failed item does not stop the batch.
func (j *Judge) SubmitBatch(ctx context.Context, prog chan<- ProgressUpdate, solutions map[string]string, opts BatchOpts) (*BatchResult, error) {
	if len(solutions) == 0 {
		return &BatchResult{}, nil
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 3
	}
	if opts.NumWorkers > 10 {
		opts.NumWorkers = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 1.0
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)

	jobs := make(chan models.SubmitRequest, len(solutions))
	results := make(chan BatchItemResult, len(solutions))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go j.batchWorker(ctx, &wg, limiter, jobs, results)
	}

	for _, id := range sortedKeys(solutions) {
		jobs <- models.SubmitRequest{QuestionID: id, SQL: solutions[id], Mock: opts.Mock}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	result := &BatchResult{Results: make([]BatchItemResult, 0, len(solutions))}
	completed := 0
	for res := range results {
		completed++
		result.Results = append(result.Results, res)

		switch {
		case res.Error != nil:
			result.Failed++
		case res.Submission.Status == models.StatusAccepted:
			result.Accepted++
		default:
			result.Rejected++
		}
		sendProgress(prog, batchItemUpdate(completed, len(solutions), res))
	}

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch interrupted: %w", err)
	}
	return result, nil
}

func (j *Judge) batchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	limiter *rate.Limiter,
	jobs <-chan models.SubmitRequest,
	results chan<- BatchItemResult,
) {
	defer wg.Done()

	for req := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			results <- BatchItemResult{QuestionID: req.QuestionID, Error: err}
			continue
		}

		sub, err := j.SubmitAndWait(ctx, nil, req)
		results <- BatchItemResult{QuestionID: req.QuestionID, Submission: sub, Error: err}
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
