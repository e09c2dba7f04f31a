package tasks

import (
	"fmt"

	"github.com/desertthunder/sqlgym/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Submitting Phase = iota
	Queued
	Judging
	Verdict
)

func (p Phase) String() string {
	switch p {
	case Submitting:
		return "submitting"
	case Queued:
		return "queued"
	case Judging:
		return "judging"
	case Verdict:
		return "verdict"
	default:
		return ""
	}
}

const judgeSteps = 4

func submittingUpdate(req models.SubmitRequest) ProgressUpdate {
	kind := "Submitting"
	if req.Mock {
		kind = "Running"
	}
	return ProgressUpdate{
		Phase:   Submitting,
		Step:    1,
		Total:   judgeSteps,
		Message: fmt.Sprintf("%s solution for %s...", kind, req.QuestionID),
	}
}

func queuedUpdate(resp *models.SubmitResponse) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Queued,
		Step:    2,
		Total:   judgeSteps,
		Message: fmt.Sprintf("Queued as %s", resp.SubmissionID),
		Data:    resp,
	}
}

func judgingUpdate(id string, polling bool) ProgressUpdate {
	msg := fmt.Sprintf("Waiting for verdict on %s...", id)
	if polling {
		msg = fmt.Sprintf("Waiting for verdict on %s (polling)...", id)
	}
	return ProgressUpdate{
		Phase:   Judging,
		Step:    3,
		Total:   judgeSteps,
		Message: msg,
	}
}

func verdictUpdate(sub models.Submission) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Verdict,
		Step:    4,
		Total:   judgeSteps,
		Message: fmt.Sprintf("%s: %s (%d/%d tests, %dms)", sub.ID, sub.Status, sub.TestsPassed, sub.TestsTotal, sub.ExecutionTimeMs),
		Data:    sub,
	}
}

func batchItemUpdate(step, total int, res BatchItemResult) ProgressUpdate {
	if res.Error != nil {
		return ProgressUpdate{
			Phase:   Verdict,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.QuestionID, res.Error),
			Data:    res,
		}
	}
	return ProgressUpdate{
		Phase:   Verdict,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, res.QuestionID, res.Submission.Status),
		Data:    res,
	}
}
