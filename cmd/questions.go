package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/desertthunder/sqlgym/internal/formatter"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/urfave/cli/v3"
)

// QuestionsList prints one page of questions.
func (r *Runner) QuestionsList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	difficulty := strings.ToUpper(strings.TrimSpace(cmd.String("difficulty")))
	page, err := r.api.Questions(ctx, cmd.Int("page"), cmd.Int("size"), difficulty)
	if err != nil {
		return err
	}
	return formatter.Render(r.output, format, page)
}

// QuestionsShow prints a question with its description and schema.
func (r *Runner) QuestionsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: question id", shared.ErrMissingArgument)
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}

	q, err := r.api.Question(ctx, id)
	if err != nil {
		return err
	}
	return formatter.Render(r.output, format, q)
}

// QuestionsOpen opens the question's page on the web client.
func (r *Runner) QuestionsOpen(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: question id", shared.ErrMissingArgument)
	}

	link, err := url.JoinPath(r.config.API.WebURL, "question", id)
	if err != nil {
		return fmt.Errorf("%w: web_url: %v", shared.ErrInvalidConfig, err)
	}
	r.writePlain("Opening %s\n", link)
	return shared.OpenBrowser(link)
}
