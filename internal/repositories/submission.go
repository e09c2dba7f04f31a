package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
)

const submissionColumns = `id, user_id, question_id, status, execution_time_ms, tests_passed, tests_total, submitted_at`

// SubmissionRepository caches submission history.
type SubmissionRepository struct {
	db *sql.DB
}

// NewSubmissionRepository creates a new SubmissionRepository with the given database connection
func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Upsert inserts sub or replaces the cached copy with the same id
func (r *SubmissionRepository) Upsert(sub models.Submission) error {
	if sub.ID == "" || sub.UserID == "" {
		return fmt.Errorf("%w: submission requires id and user id", shared.ErrInvalidInput)
	}
	if sub.Status == "" {
		sub.Status = models.StatusPending
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}

	query := `
		INSERT INTO submissions (` + submissionColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			execution_time_ms = excluded.execution_time_ms,
			tests_passed = excluded.tests_passed,
			tests_total = excluded.tests_total,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		sub.ID,
		sub.UserID,
		sub.QuestionID,
		string(sub.Status),
		sub.ExecutionTimeMs,
		sub.TestsPassed,
		sub.TestsTotal,
		sub.SubmittedAt,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert submission: %w", err)
	}
	return nil
}

// Get retrieves a submission by id
func (r *SubmissionRepository) Get(id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`

	sub, err := scanSubmission(r.db.QueryRow(query, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSubmissionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// ApplyVerdict stores a verdict on the matching submission.
//
// It returns [shared.ErrSubmissionNotFound] when the submission is not cached.
func (r *SubmissionRepository) ApplyVerdict(v models.Verdict) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	query := `
		UPDATE submissions
		SET status = ?, execution_time_ms = ?, tests_passed = ?, tests_total = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query, string(v.Status), v.ExecutionTimeMs, v.TestsPassed, v.TestsTotal, time.Now(), v.SubmissionID)
	if err != nil {
		return fmt.Errorf("failed to apply verdict: %w", err)
	}
	return mustAffect(result, fmt.Errorf("%w: %s", shared.ErrSubmissionNotFound, v.SubmissionID))
}

// List retrieves submissions matching the given criteria, newest first.
//
// Supported criteria: "user_id", "question_id", "status" (string or [models.Status]) and "limit" (int).
func (r *SubmissionRepository) List(criteria map[string]any) ([]models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE 1 = 1`
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}

	if questionID, ok := criteria["question_id"].(string); ok && questionID != "" {
		query += " AND question_id = ?"
		args = append(args, questionID)
	}

	switch status := criteria["status"].(type) {
	case models.Status:
		query += " AND status = ?"
		args = append(args, string(status))
	case string:
		if status != "" {
			query += " AND status = ?"
			args = append(args, status)
		}
	}

	query += " ORDER BY submitted_at DESC, id ASC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return subs, nil
}

// ListByUser retrieves up to limit of the user's submissions, newest first. A limit of 0 returns all.
func (r *SubmissionRepository) ListByUser(userID string, limit int) ([]models.Submission, error) {
	return r.List(map[string]any{"user_id": userID, "limit": limit})
}

// Pending retrieves the user's submissions still waiting for a verdict
func (r *SubmissionRepository) Pending(userID string) ([]models.Submission, error) {
	return r.List(map[string]any{"user_id": userID, "status": models.StatusPending})
}

// scanSubmission scans a single row into a [models.Submission]. [sql.ErrNoRows] is returned unwrapped.
func scanSubmission(row scanner) (*models.Submission, error) {
	var (
		sub    models.Submission
		status string
	)

	err := row.Scan(&sub.ID, &sub.UserID, &sub.QuestionID, &status, &sub.ExecutionTimeMs, &sub.TestsPassed, &sub.TestsTotal, &sub.SubmittedAt)
	if isNoRows(err) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission: %w", err)
	}

	sub.Status = models.Status(status)
	return &sub, nil
}
