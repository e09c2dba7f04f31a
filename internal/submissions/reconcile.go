package submissions

import "github.com/desertthunder/sqlgym/internal/models"

// Reconcile returns a copy of list with v applied to the entry whose id is v.SubmissionID.
// The second result reports whether such an entry exists. list is never modified.
func Reconcile(list []models.Submission, v models.Verdict) ([]models.Submission, bool) {
	out := make([]models.Submission, len(list))
	copy(out, list)

	found := false
	for i := range out {
		if out[i].ID == v.SubmissionID {
			out[i] = out[i].WithVerdict(v)
			found = true
		}
	}
	return out, found
}
