package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/desertthunder/sqlgym/internal/submissions"
	"golang.org/x/time/rate"
)

// DefaultPollInterval spaces REST lookups while the push channel is down.
const DefaultPollInterval = 2 * time.Second

// Executor is the subset of the REST client used to judge solutions.
type Executor interface {
	Submit(ctx context.Context, req models.SubmitRequest) (*models.SubmitResponse, error)
	Submission(ctx context.Context, id string) (*models.Submission, error)
}

// Connectivity reports whether verdicts are currently being pushed.
type Connectivity interface {
	IsConnected() bool
}

// StateNotifier is implemented by push clients that report connection transitions.
type StateNotifier interface {
	OnStateChange(fn func(live.State))
}

// JudgeOptions configures a [Judge].
type JudgeOptions struct {
	API          Executor
	Tracker      *submissions.Tracker
	Live         Connectivity // nil means always poll
	UserID       string
	PollInterval time.Duration
	Logger       *log.Logger
}

// Judge submits solutions and waits for their verdicts.
//
// Verdicts normally arrive on the push channel and are folded in by the tracker. While the push
// channel is disconnected the judge polls the submission over REST instead, and after every
// reconnect it looks the submission up once, since a verdict pushed during the gap is lost.
type Judge struct {
	api        Executor
	tracker    *submissions.Tracker
	live       Connectivity
	userID     string
	interval   time.Duration
	logger     *log.Logger
	reconnects atomic.Uint64
}

// NewJudge creates a new Judge.
func NewJudge(opts JudgeOptions) (*Judge, error) {
	if opts.API == nil || opts.Tracker == nil {
		return nil, fmt.Errorf("%w: judge requires an API client and a tracker", shared.ErrInvalidConfig)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	j := &Judge{
		api:      opts.API,
		tracker:  opts.Tracker,
		live:     opts.Live,
		userID:   opts.UserID,
		interval: opts.PollInterval,
		logger:   shared.WithLogger(opts.Logger, "component", "judge"),
	}
	if n, ok := opts.Live.(StateNotifier); ok {
		n.OnStateChange(func(s live.State) {
			if s == live.StateConnected {
				j.reconnects.Add(1)
			}
		})
	}
	return j, nil
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// SubmitAndWait submits req and blocks until its verdict arrives or ctx is done.
func (j *Judge) SubmitAndWait(ctx context.Context, progress chan<- ProgressUpdate, req models.SubmitRequest) (*models.Submission, error) {
	if req.QuestionID == "" || req.SQL == "" {
		return nil, fmt.Errorf("%w: question id and SQL are required", shared.ErrMissingArgument)
	}

	sendProgress(progress, submittingUpdate(req))
	epoch := j.reconnects.Load()

	resp, err := j.api.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.SubmissionID == "" {
		return nil, fmt.Errorf("%w: submit response has no submission id", shared.ErrAPIRequest)
	}

	sendProgress(progress, queuedUpdate(resp))

	status := resp.Status
	if status == "" {
		status = models.StatusPending
	}
	j.tracker.Track(models.Submission{
		ID:          resp.SubmissionID,
		UserID:      j.userID,
		QuestionID:  req.QuestionID,
		Status:      status,
		SubmittedAt: time.Now(),
	})

	sendProgress(progress, judgingUpdate(resp.SubmissionID, !j.connected()))

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go j.poll(waitCtx, resp.SubmissionID, epoch)

	sub, err := j.tracker.Wait(waitCtx, resp.SubmissionID)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, verdictUpdate(sub))
	return &sub, nil
}

func (j *Judge) connected() bool {
	return j.live != nil && j.live.IsConnected()
}

// poll looks the submission up over REST whenever the push channel is down, until ctx is done.
// While connected it only looks up once per reconnect observed since epoch.
func (j *Judge) poll(ctx context.Context, id string, epoch uint64) {
	limiter := rate.NewLimiter(rate.Every(j.interval), 1)
	wasDown := false

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if j.connected() {
			n := j.reconnects.Load()
			if n == epoch && !wasDown {
				continue
			}
			epoch, wasDown = n, false
			j.logger.Debug("push channel reconnected, catching up", "id", id)
		} else {
			wasDown = true
		}

		sub, err := j.api.Submission(ctx, id)
		if err != nil {
			if ctx.Err() == nil {
				j.logger.Debug("poll failed", "id", id, "error", err)
			}
			continue
		}
		if sub.Status.IsFinal() {
			j.tracker.Apply(models.Verdict{
				SubmissionID:    id,
				Status:          sub.Status,
				ExecutionTimeMs: sub.ExecutionTimeMs,
				TestsPassed:     sub.TestsPassed,
				TestsTotal:      sub.TestsTotal,
			})
			return
		}
	}
}
