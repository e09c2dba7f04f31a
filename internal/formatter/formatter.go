// package formatter renders questions, submission history, leaderboards and contests as plain text,
// Markdown, CSV or JSON for the CLI.
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/shared"
)

// Format names an output format.
type Format string

const (
	Text     Format = "text"
	Markdown Format = "markdown"
	CSV      Format = "csv"
	JSON     Format = "json"
)

// ParseFormat validates a --format flag value. An empty value means [Text].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", Text:
		return Text, nil
	case "md", Markdown:
		return Markdown, nil
	case CSV, JSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (text, markdown, csv, json)", shared.ErrInvalidFlag, s)
	}
}

// table is the common shape every listing is reduced to before rendering.
type table struct {
	title   string
	headers []string
	rows    [][]string
}

// Render writes data to w in the given format.
//
// Supported values: [models.QuestionPage], [models.Question], []models.Submission,
// []models.LeaderboardEntry and []models.Contest (or pointers to them).
func Render(w io.Writer, format Format, data any) error {
	if format == JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	if q, ok := asQuestion(data); ok {
		return renderQuestion(w, format, q)
	}

	t, err := toTable(data)
	if err != nil {
		return err
	}

	switch format {
	case CSV:
		return writeCSV(w, t)
	case Markdown:
		return writeMarkdown(w, t)
	default:
		return writeText(w, t)
	}
}

// WriteFile renders data into the file at path, choosing the format from flag or, when empty, the extension.
func WriteFile(path string, format Format, data any) error {
	if format == "" {
		format = FormatForPath(path)
	}

	var buf bytes.Buffer
	if err := Render(&buf, format, data); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FormatForPath guesses a format from a file extension.
func FormatForPath(path string) Format {
	switch {
	case strings.HasSuffix(path, ".csv"):
		return CSV
	case strings.HasSuffix(path, ".md"):
		return Markdown
	case strings.HasSuffix(path, ".json"):
		return JSON
	default:
		return Text
	}
}

func asQuestion(data any) (*models.Question, bool) {
	switch v := data.(type) {
	case models.Question:
		return &v, true
	case *models.Question:
		return v, v != nil
	}
	return nil, false
}

func toTable(data any) (*table, error) {
	switch v := data.(type) {
	case *models.QuestionPage:
		return questionsTable(*v), nil
	case models.QuestionPage:
		return questionsTable(v), nil
	case []models.Submission:
		return historyTable(v), nil
	case []models.LeaderboardEntry:
		return leaderboardTable(v), nil
	case []models.Contest:
		return contestsTable(v), nil
	default:
		return nil, fmt.Errorf("%w: cannot format %T", shared.ErrInvalidArgument, data)
	}
}

func questionsTable(page models.QuestionPage) *table {
	t := &table{
		title:   fmt.Sprintf("Questions (page %d, %d total)", page.Page, page.Total),
		headers: []string{"ID", "Title", "Difficulty", "Acceptance", "Tags"},
	}
	for _, q := range page.Items {
		t.rows = append(t.rows, []string{
			q.ID,
			q.Title,
			q.Difficulty,
			strconv.FormatFloat(q.Acceptance, 'f', 1, 64) + "%",
			strings.Join(q.Tags, ", "),
		})
	}
	return t
}

func historyTable(subs []models.Submission) *table {
	t := &table{
		title:   fmt.Sprintf("Submissions (%d)", len(subs)),
		headers: []string{"ID", "Question", "Status", "Tests", "Time", "Submitted"},
	}
	for _, s := range subs {
		t.rows = append(t.rows, []string{
			s.ID,
			s.QuestionID,
			s.Status.String(),
			fmt.Sprintf("%d/%d", s.TestsPassed, s.TestsTotal),
			shared.FormatMillis(s.ExecutionTimeMs),
			formatTime(s.SubmittedAt),
		})
	}
	return t
}

func leaderboardTable(entries []models.LeaderboardEntry) *table {
	t := &table{
		title:   "Leaderboard",
		headers: []string{"Rank", "User", "Solved", "Score"},
	}
	for _, e := range entries {
		t.rows = append(t.rows, []string{
			strconv.Itoa(e.Rank),
			e.Username,
			strconv.Itoa(e.Solved),
			strconv.Itoa(e.Score),
		})
	}
	return t
}

func contestsTable(contests []models.Contest) *table {
	t := &table{
		title:   "Contests",
		headers: []string{"ID", "Title", "Status", "Starts", "Ends"},
	}
	for _, c := range contests {
		t.rows = append(t.rows, []string{c.ID, c.Title, c.Status, formatTime(c.StartsAt), formatTime(c.EndsAt)})
	}
	return t
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func writeCSV(w io.Writer, t *table) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(t.headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	return nil
}

func writeMarkdown(w io.Writer, t *table) error {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", t.title))
	buf.WriteString("| " + strings.Join(t.headers, " | ") + " |\n")
	buf.WriteString("|" + strings.Repeat(" --- |", len(t.headers)) + "\n")
	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = strings.ReplaceAll(cell, "|", `\|`)
		}
		buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func writeText(w io.Writer, t *table) error {
	if len(t.rows) == 0 {
		_, err := fmt.Fprintf(w, "%s\n\nNothing to show.\n", t.title)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\n\n", t.title)
	fmt.Fprintln(tw, strings.Join(t.headers, "\t"))
	for _, row := range t.rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func renderQuestion(w io.Writer, format Format, q *models.Question) error {
	var buf bytes.Buffer

	switch format {
	case CSV:
		return writeCSV(w, &table{
			headers: []string{"ID", "Title", "Difficulty", "Tags", "Description"},
			rows:    [][]string{{q.ID, q.Title, q.Difficulty, strings.Join(q.Tags, ", "), q.Description}},
		})
	case Markdown:
		buf.WriteString(fmt.Sprintf("# %s\n\n", q.Title))
		buf.WriteString(fmt.Sprintf("**Difficulty**: %s\n", q.Difficulty))
		if len(q.Tags) > 0 {
			buf.WriteString(fmt.Sprintf("**Tags**: %s\n", strings.Join(q.Tags, ", ")))
		}
		if q.Description != "" {
			buf.WriteString(fmt.Sprintf("\n%s\n", q.Description))
		}
		if q.Schema != "" {
			buf.WriteString(fmt.Sprintf("\n## Schema\n\n```sql\n%s\n```\n", strings.TrimSpace(q.Schema)))
		}
	default:
		buf.WriteString(fmt.Sprintf("%s [%s] (%s)\n", q.Title, q.ID, q.Difficulty))
		if len(q.Tags) > 0 {
			buf.WriteString(fmt.Sprintf("Tags: %s\n", strings.Join(q.Tags, ", ")))
		}
		if q.Description != "" {
			buf.WriteString(fmt.Sprintf("\n%s\n", q.Description))
		}
		if q.Schema != "" {
			buf.WriteString(fmt.Sprintf("\nSchema:\n%s\n", strings.TrimSpace(q.Schema)))
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}
