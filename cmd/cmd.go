// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, markdown, csv or json",
		Value:   "text",
	}
}

// setupCommand handles setup operations for the local database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage the sqlgym session",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with username and password, or import a browser session from a cURL command",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "username",
						Aliases: []string{"u"},
						Usage:   "Account username or email",
						Sources: cli.EnvVars("SQLGYM_USERNAME"),
					},
					&cli.StringFlag{
						Name:    "password",
						Aliases: []string{"p"},
						Usage:   "Account password",
						Sources: cli.EnvVars("SQLGYM_PASSWORD"),
					},
					&cli.BoolFlag{
						Name:  "remember",
						Usage: "Ask the server for a long-lived refresh token",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "curl",
						Usage: "cURL command from browser DevTools (Copy as cURL)",
					},
					&cli.StringFlag{
						Name:  "curl-file",
						Usage: "Path to .sh file containing cURL command",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and clear stored tokens",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show the current session state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Confirm the session with the server",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:   "refresh",
				Usage:  "Renew the access token now",
				Action: r.AuthRefresh,
			},
		},
	}
}

// questionsCommand handles question browsing
func questionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "questions",
		Aliases: []string{"q"},
		Usage:   "Browse practice questions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List questions",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number, starting at 1",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "size",
						Usage: "Questions per page",
						Value: 20,
					},
					&cli.StringFlag{
						Name:  "difficulty",
						Usage: "Filter by difficulty (easy, medium, hard)",
					},
					formatFlag(),
				},
				Action: r.QuestionsList,
			},
			{
				Name:  "show",
				Usage: "Show a question with its schema",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags:  []cli.Flag{formatFlag()},
				Action: r.QuestionsShow,
			},
			{
				Name:  "open",
				Usage: "Open a question in the browser",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.QuestionsOpen,
			},
		},
	}
}

// submitCommand submits solutions and waits for verdicts
func submitCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a solution and wait for its verdict",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "question"},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "SQL file to submit (- for stdin)",
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Submit every <question-id>.sql file in a directory",
			},
			&cli.BoolFlag{
				Name:  "mock",
				Usage: "Run against sample data without judging",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for a verdict",
				Value: defaultVerdictTimeout,
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent submissions with --dir",
				Value: 3,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Submit,
	}
}

// historyCommand lists submission history
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List your submissions",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of submissions to show (0 for all)",
				Value: 20,
			},
			&cli.StringFlag{
				Name:  "question",
				Usage: "Only show submissions for this question",
			},
			&cli.BoolFlag{
				Name:  "cached",
				Usage: "Read the local cache instead of the server",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file (format from --format or the extension)",
			},
			formatFlag(),
		},
		Action: r.History,
	}
}

// leaderboardCommand shows the global ranking
func leaderboardCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "leaderboard",
		Aliases: []string{"lb"},
		Usage:   "Show the leaderboard",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of entries",
				Value: 10,
			},
			formatFlag(),
		},
		Action: r.Leaderboard,
	}
}

// contestsCommand lists contests
func contestsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "contests",
		Usage:  "List contests",
		Flags:  []cli.Flag{formatFlag()},
		Action: r.Contests,
	}
}

// watchCommand returns the TUI command for following submissions live.
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"tui", "ui"},
		Usage:   "Follow your submissions and verdicts live",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI is running",
				Value: "~/.sqlgym/watch.log",
			},
		},
		Action: r.Watch,
	}
}
