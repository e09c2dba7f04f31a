package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/sqlgym/internal/models"
)

var _ list.Item = submissionItem{}

// submissionItem wraps [models.Submission] to implement [list.Item].
type submissionItem struct {
	sub models.Submission
}

func (i submissionItem) FilterValue() string { return i.sub.QuestionID }
func (i submissionItem) Title() string {
	return fmt.Sprintf("%s  %s", i.sub.QuestionID, styles.statusStyle(i.sub.Status).Render(i.sub.Status.String()))
}
func (i submissionItem) Description() string {
	desc := i.sub.ID
	if i.sub.Status.IsFinal() {
		desc = fmt.Sprintf("%s • %d/%d tests • %dms", desc, i.sub.TestsPassed, i.sub.TestsTotal, i.sub.ExecutionTimeMs)
	}
	if !i.sub.SubmittedAt.IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, i.sub.SubmittedAt.Local().Format("Jan 2 15:04"))
	}
	return desc
}

func submissionItems(subs []models.Submission) []list.Item {
	items := make([]list.Item, len(subs))
	for i, sub := range subs {
		items[i] = submissionItem{sub: sub}
	}
	return items
}
