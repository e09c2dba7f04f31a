package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/sqlgym/internal/models"
	"github.com/desertthunder/sqlgym/internal/session"
	"github.com/desertthunder/sqlgym/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin signs in with credentials, or imports the tokens of a browser session captured as a cURL command.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	if err := r.open(); err != nil {
		return err
	}

	if curlCmd != "" || curlFile != "" {
		if err := r.importSession(curlCmd, curlFile); err != nil {
			return err
		}
	} else {
		req := models.LoginRequest{
			Username: cmd.String("username"),
			Password: cmd.String("password"),
			Remember: cmd.Bool("remember"),
		}
		r.logger.Info("signing in", "username", req.Username)
		if _, err := r.api.Login(ctx, req); err != nil {
			return err
		}
	}

	info, err := r.api.UserInfo(ctx)
	if err != nil {
		return fmt.Errorf("signed in but failed to load profile: %w", err)
	}
	if err := r.rememberUser(info.ID, info); err != nil {
		r.logger.Warn("failed to cache user profile", "error", err)
	}

	return r.writePlain("✓ Signed in as %s\n", info.Username)
}

func (r *Runner) importSession(curlCmd, curlFile string) error {
	var (
		headers *shared.CurlHeaders
		err     error
	)
	if curlFile != "" {
		headers, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		headers, err = shared.ParseCurlCommand(curlCmd)
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
		r.logger.Info("parsed cURL command")
	}

	access, refresh := headers.SessionTokens(session.AccessTokenKey, session.RefreshTokenKey)
	if access == "" || refresh == "" {
		return fmt.Errorf("%w: the request carries no %s and %s cookies", shared.ErrMissingCredentials, session.AccessTokenKey, session.RefreshTokenKey)
	}
	return r.manager.SetTokens(access, refresh)
}

// AuthLogout ends the session on the server and clears local tokens.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	if !r.manager.HasValidTokens() {
		if err := r.manager.ClearTokens(); err != nil {
			return err
		}
		return r.writePlain("Not signed in\n")
	}

	if err := r.api.Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports whether a valid token pair is stored, optionally confirming it with the server.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}

	if !r.manager.HasValidTokens() {
		return r.writePlain("✗ Not signed in\n")
	}

	r.writePlain("✓ Signed in\n")
	if id := r.manager.UserID(); id != "" {
		r.writePlain("User: %s\n", id)
	}

	if !cmd.Bool("verify") {
		return nil
	}

	info, err := r.api.UserInfo(ctx)
	if err != nil {
		return fmt.Errorf("session could not be verified: %w", err)
	}
	return r.writePlain("Verified: %s (%d solved)\n", info.Username, info.Solved)
}

// AuthRefresh renews the access token immediately.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(); err != nil {
		return err
	}
	if _, err := r.manager.RefreshAccessToken(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Access token renewed\n")
}
